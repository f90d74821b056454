package pipeline

import (
	"context"

	"github.com/dvloznov/smart-financial-parser/internal/domain"
	"github.com/dvloznov/smart-financial-parser/internal/infra/bigquery"
	"github.com/dvloznov/smart-financial-parser/internal/normalize"
)

// StorageService is the object storage the pipeline reads inputs from and uploads outputs to.
type StorageService interface {
	FetchFromGCS(ctx context.Context, uri string) ([]byte, error)
	UploadBytes(ctx context.Context, uri string, data []byte, contentType string) error
}

// RecordNormalizer turns raw rows into cleaned records.
type RecordNormalizer interface {
	Normalize(ctx context.Context, rows [][]string) ([]*domain.Record, normalize.Stats, error)
}

// Sink persists the cleaned records of a run.
type Sink interface {
	InsertRecords(ctx context.Context, runID string, records []*domain.Record) error
}

// RunTracker records the lifecycle of a cleaning run.
type RunTracker interface {
	// StartCleaningRun registers a run with status=RUNNING and returns its run ID.
	StartCleaningRun(ctx context.Context, source string) (string, error)

	// MarkCleaningRunFailed sets status=FAILED. Errors are logged by the implementation.
	MarkCleaningRunFailed(ctx context.Context, runID string, runErr error)

	// MarkCleaningRunSucceeded sets status=SUCCESS with the run counters.
	MarkCleaningRunSucceeded(ctx context.Context, runID string, stats bigquery.RunStats) error
}
