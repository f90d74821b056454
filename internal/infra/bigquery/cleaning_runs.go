package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// Cleaning run statuses.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// CleaningRunRow is one pipeline execution in finance.cleaning_runs.
type CleaningRunRow struct {
	RunID  string `bigquery:"run_id"` // REQUIRED
	Source string `bigquery:"source"` // REQUIRED, input path or URI

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string `bigquery:"status"`        // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE

	RowsIn             bigquery.NullInt64  `bigquery:"rows_in"`
	RowsDropped        bigquery.NullInt64  `bigquery:"rows_dropped"`
	RecordsOut         bigquery.NullInt64  `bigquery:"records_out"`
	CurrencyBackfilled bigquery.NullInt64  `bigquery:"currency_backfilled"`
	BackfillCurrency   bigquery.NullString `bigquery:"backfill_currency"`
	ConversionsFailed  bigquery.NullInt64  `bigquery:"conversions_failed"`
}

// RunStats is what a successful run reports back to cleaning_runs.
type RunStats struct {
	RowsIn             int
	RowsDropped        int
	RecordsOut         int
	CurrencyBackfilled int
	BackfillCurrency   string
	ConversionsFailed  int
}
