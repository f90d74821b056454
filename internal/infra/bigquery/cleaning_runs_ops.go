package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/dvloznov/smart-financial-parser/internal/logger"
)

const cleaningRunsTable = "cleaning_runs"

// StartCleaningRunWithClient inserts a new row into cleaning_runs with status=RUNNING
// and returns the generated run_id.
func StartCleaningRunWithClient(ctx context.Context, client *bigquery.Client, datasetID, source string) (string, error) {
	runID := uuid.NewString()

	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			run_id,
			source,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@source,
			@started_ts,
			@status
		)
	`, tableRef(client, datasetID, cleaningRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "source", Value: source},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: RunStatusRunning},
	}

	if err := runAndWait(ctx, q); err != nil {
		return "", fmt.Errorf("StartCleaningRun: %w", err)
	}
	return runID, nil
}

// MarkCleaningRunFailedWithClient sets status=FAILED, finished_ts and error_message.
// Failures are logged, not returned: the caller is already handling the run error.
func MarkCleaningRunFailedWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID string, runErr error) {
	log := logger.FromContext(ctx)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		const maxLen = 2000
		if len(errMsg) > maxLen {
			errMsg = errMsg[:maxLen]
		}
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, tableRef(client, datasetID, cleaningRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}

	if err := runAndWait(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkCleaningRunFailed: update failed")
	}
}

// MarkCleaningRunSucceededWithClient sets status=SUCCESS, finished_ts and the run counters.
func MarkCleaningRunSucceededWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID string, stats RunStats) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = "",
		    rows_in = @rows_in,
		    rows_dropped = @rows_dropped,
		    records_out = @records_out,
		    currency_backfilled = @currency_backfilled,
		    backfill_currency = @backfill_currency,
		    conversions_failed = @conversions_failed
		WHERE run_id = @run_id
	`, tableRef(client, datasetID, cleaningRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "rows_in", Value: stats.RowsIn},
		{Name: "rows_dropped", Value: stats.RowsDropped},
		{Name: "records_out", Value: stats.RecordsOut},
		{Name: "currency_backfilled", Value: stats.CurrencyBackfilled},
		{Name: "backfill_currency", Value: stats.BackfillCurrency},
		{Name: "conversions_failed", Value: stats.ConversionsFailed},
		{Name: "run_id", Value: runID},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("MarkCleaningRunSucceeded: %w", err)
	}
	return nil
}

// runAndWait runs a DML query and waits for the job to finish.
func runAndWait(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
