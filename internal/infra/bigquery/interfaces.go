package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/smart-financial-parser/internal/domain"
	"github.com/dvloznov/smart-financial-parser/internal/reference"
)

// ErrNoProject is returned when no GCP project is configured.
var ErrNoProject = errors.New("bigquery: GCP project not configured (set GCP_PROJECT)")

// CleaningRepository provides the BigQuery operations of one cleaning run.
type CleaningRepository interface {
	// StartCleaningRun inserts a run with status=RUNNING and returns its run_id.
	StartCleaningRun(ctx context.Context, source string) (string, error)

	// InsertRecords writes the cleaned records of a run.
	InsertRecords(ctx context.Context, runID string, records []*domain.Record) error

	// MarkCleaningRunFailed sets status=FAILED with the error message.
	MarkCleaningRunFailed(ctx context.Context, runID string, runErr error)

	// MarkCleaningRunSucceeded sets status=SUCCESS with the run counters.
	MarkCleaningRunSucceeded(ctx context.Context, runID string, stats RunStats) error
}

// Repository is the BigQuery-backed CleaningRepository and merchant reference source.
// It holds one shared client for its lifetime.
type Repository struct {
	client    *bigquery.Client
	datasetID string
	now       func() time.Time
}

var (
	_ CleaningRepository       = (*Repository)(nil)
	_ reference.MerchantSource = (*Repository)(nil)
)

// NewRepository creates a Repository for the given project and dataset.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	if projectID == "" {
		return nil, ErrNoProject
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client, datasetID: datasetID, now: time.Now}, nil
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// StartCleaningRun delegates to StartCleaningRunWithClient with the shared client.
func (r *Repository) StartCleaningRun(ctx context.Context, source string) (string, error) {
	return StartCleaningRunWithClient(ctx, r.client, r.datasetID, source)
}

// InsertRecords converts records to rows and streams them into cleaned_transactions.
func (r *Repository) InsertRecords(ctx context.Context, runID string, records []*domain.Record) error {
	rows := ToCleanedTransactionRows(runID, records, r.now())
	return InsertCleanedTransactionsWithClient(ctx, r.client, r.datasetID, rows)
}

// MarkCleaningRunFailed delegates to MarkCleaningRunFailedWithClient with the shared client.
func (r *Repository) MarkCleaningRunFailed(ctx context.Context, runID string, runErr error) {
	MarkCleaningRunFailedWithClient(ctx, r.client, r.datasetID, runID, runErr)
}

// MarkCleaningRunSucceeded delegates to MarkCleaningRunSucceededWithClient with the shared client.
func (r *Repository) MarkCleaningRunSucceeded(ctx context.Context, runID string, stats RunStats) error {
	return MarkCleaningRunSucceededWithClient(ctx, r.client, r.datasetID, runID, stats)
}

// ListMerchants reads the merchant reference table.
func (r *Repository) ListMerchants(ctx context.Context) ([]reference.Merchant, error) {
	return ListMerchantsWithClient(ctx, r.client, r.datasetID)
}

// ListCleanedTransactions returns the stored rows of one run.
func (r *Repository) ListCleanedTransactions(ctx context.Context, runID string) ([]*CleanedTransactionRow, error) {
	return ListCleanedTransactionsWithClient(ctx, r.client, r.datasetID, runID)
}

// ListRunRecords returns the stored records of one run in row order.
func (r *Repository) ListRunRecords(ctx context.Context, runID string) ([]*domain.Record, error) {
	rows, err := r.ListCleanedTransactions(ctx, runID)
	if err != nil {
		return nil, err
	}
	records := make([]*domain.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.ToRecord())
	}
	return records, nil
}
