package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/dvloznov/smart-financial-parser/internal/aggregate"
	"github.com/dvloznov/smart-financial-parser/internal/gcsuploader"
	"github.com/dvloznov/smart-financial-parser/internal/infra/bigquery"
	"github.com/dvloznov/smart-financial-parser/internal/logger"
	"github.com/dvloznov/smart-financial-parser/internal/report"
	"github.com/dvloznov/smart-financial-parser/internal/tableio"
)

// ErrNoStorage is returned when a step needs object storage that was not configured.
var ErrNoStorage = errors.New("pipeline: GCS storage not configured")

// PipelineStep represents a single step in the cleaning pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// StartRunStep assigns the run ID, registering the run with Tracker when one is set.
type StartRunStep struct {
	Tracker RunTracker
}

func (s *StartRunStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Tracker == nil {
		state.RunID = uuid.NewString()
		return nil
	}
	runID, err := s.Tracker.StartCleaningRun(ctx, state.Source)
	if err != nil {
		return err
	}
	state.RunID = runID
	return nil
}

// LoadInputStep reads the input bytes from a local file or a gs:// URI.
type LoadInputStep struct {
	Storage StorageService
}

func (s *LoadInputStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Input != nil {
		return nil
	}

	if gcsuploader.IsURI(state.Source) {
		if s.Storage == nil {
			return ErrNoStorage
		}
		data, err := s.Storage.FetchFromGCS(ctx, state.Source)
		if err != nil {
			return err
		}
		state.Input = data
		if state.InputName == "" {
			state.InputName = gcsuploader.ExtractFilenameFromGCSURI(state.Source)
		}
		return nil
	}

	data, err := os.ReadFile(state.Source)
	if err != nil {
		return fmt.Errorf("LoadInput: %w", err)
	}
	state.Input = data
	return nil
}

// ReadTableStep decodes the input into raw rows.
type ReadTableStep struct {
	HasHeader bool
}

func (s *ReadTableStep) Execute(ctx context.Context, state *PipelineState) error {
	table, err := tableio.ReadBytes(state.Input, state.inputName(), s.HasHeader)
	if err != nil {
		return err
	}
	state.Table = table
	log := logger.FromContext(ctx)
	log.Debug().
		Int("rows", len(table.Rows)).
		Strs("header", table.Header).
		Msg("Read input table")
	return nil
}

// NormalizeStep classifies, merges and enriches the rows.
type NormalizeStep struct {
	Normalizer RecordNormalizer
}

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	records, stats, err := s.Normalizer.Normalize(ctx, state.Table.Rows)
	if err != nil {
		return err
	}
	state.Records = records
	state.Stats = stats
	return nil
}

// WriteOutputStep encodes the cleaned table and writes it to state.OutputPath when set.
type WriteOutputStep struct{}

func (s *WriteOutputStep) Execute(ctx context.Context, state *PipelineState) error {
	data, err := tableio.EncodeCSV(state.Records)
	if err != nil {
		return err
	}
	state.Output = data

	if state.OutputPath == "" {
		return nil
	}
	if err := tableio.WriteFile(state.OutputPath, state.Records); err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("path", state.OutputPath).
		Int("records", len(state.Records)).
		Msg("Wrote cleaned table")
	return nil
}

// SummarizeStep computes spend per industry and merchant and prints it to Out when set.
type SummarizeStep struct {
	Out          io.Writer
	TopMerchants int
}

func (s *SummarizeStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Summary = aggregate.Summarize(state.Records)
	if s.Out == nil {
		return nil
	}
	return state.Summary.Print(s.Out, s.TopMerchants)
}

// ReportStep generates the free-text report and writes it to Path when set.
// A nil Reporter disables the step.
type ReportStep struct {
	Reporter report.Reporter
	Path     string
}

func (s *ReportStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Reporter == nil {
		return nil
	}
	text, err := s.Reporter.Generate(ctx, state.Records)
	if err != nil {
		return err
	}
	state.Report = text

	if s.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("Report: create directory: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("Report: write %q: %w", s.Path, err)
	}
	return nil
}

// PersistStep writes the records to every configured sink. All sinks are attempted;
// the step fails if any of them failed.
type PersistStep struct {
	Sinks map[string]Sink
}

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	names := make([]string, 0, len(s.Sinks))
	for name := range s.Sinks {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := s.Sinks[name].InsertRecords(ctx, state.RunID, state.Records); err != nil {
			log.Error().Err(err).Str("sink", name).Msg("Sink failed")
			errs = append(errs, fmt.Errorf("sink %s: %w", name, err))
			continue
		}
		log.Info().Str("sink", name).Int("records", len(state.Records)).Msg("Persisted records")
	}
	return errors.Join(errs...)
}

// UploadStep copies the cleaned table and the report under Prefix/<run id>/.
// An empty Prefix disables the step.
type UploadStep struct {
	Storage StorageService
	Prefix  string
}

func (s *UploadStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Prefix == "" {
		return nil
	}
	if s.Storage == nil {
		return ErrNoStorage
	}

	base := gcsuploader.JoinURI(s.Prefix, state.RunID)

	uri := gcsuploader.JoinURI(base, "cleaned_data.csv")
	if err := s.Storage.UploadBytes(ctx, uri, state.Output, "text/csv"); err != nil {
		return err
	}
	state.Uploaded = append(state.Uploaded, uri)

	if state.Report != "" {
		uri := gcsuploader.JoinURI(base, "report.md")
		if err := s.Storage.UploadBytes(ctx, uri, []byte(state.Report), "text/markdown"); err != nil {
			return err
		}
		state.Uploaded = append(state.Uploaded, uri)
	}
	return nil
}

// MarkSuccessStep marks the run as SUCCESS with its counters.
type MarkSuccessStep struct {
	Tracker RunTracker
}

func (s *MarkSuccessStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Tracker == nil {
		return nil
	}
	return s.Tracker.MarkCleaningRunSucceeded(ctx, state.RunID, bigquery.RunStats{
		RowsIn:             state.Stats.RowsIn,
		RowsDropped:        state.Stats.RowsDropped,
		RecordsOut:         state.Stats.Records,
		CurrencyBackfilled: state.Stats.CurrencyBackfilled,
		BackfillCurrency:   state.Stats.BackfillCurrency,
		ConversionsFailed:  state.Stats.ConversionFailed,
	})
}
