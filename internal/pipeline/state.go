package pipeline

import (
	"github.com/dvloznov/smart-financial-parser/internal/aggregate"
	"github.com/dvloznov/smart-financial-parser/internal/domain"
	"github.com/dvloznov/smart-financial-parser/internal/normalize"
	"github.com/dvloznov/smart-financial-parser/internal/tableio"
)

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	// Source is a local path or gs:// URI. Ignored by LoadInputStep when Input is already set.
	Source string
	// InputName picks the table format; defaults to Source.
	InputName string
	Input     []byte

	// OutputPath is where the cleaned table is written; empty keeps it in memory only.
	OutputPath string

	RunID   string
	Table   *tableio.Table
	Records []*domain.Record
	Stats   normalize.Stats

	// Output is the cleaned table encoded as CSV.
	Output  []byte
	Summary aggregate.Summary
	Report  string

	// Uploaded lists the gs:// URIs written by UploadStep.
	Uploaded []string
}

func (s *PipelineState) inputName() string {
	if s.InputName != "" {
		return s.InputName
	}
	return s.Source
}
