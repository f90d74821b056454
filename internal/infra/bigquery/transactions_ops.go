package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const (
	cleanedTransactionsTable = "cleaned_transactions"

	// insertBatchSize keeps streaming insert requests under the API payload limit.
	insertBatchSize = 500
)

// InsertCleanedTransactionsWithClient streams rows into cleaned_transactions in batches.
func InsertCleanedTransactionsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, rows []*CleanedTransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := client.Dataset(datasetID).Table(cleanedTransactionsTable).Inserter()
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("InsertCleanedTransactions: inserting rows %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// ListCleanedTransactionsWithClient returns the rows of one run in source order.
func ListCleanedTransactionsWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID string) ([]*CleanedTransactionRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			row_index,
			transaction_date,
			merchant,
			canonical_merchant,
			match_score,
			industry,
			amount,
			currency,
			amount_usd,
			created_ts
		FROM %s
		WHERE run_id = @run_id
		ORDER BY row_index
	`, tableRef(client, datasetID, cleanedTransactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCleanedTransactions: query read: %w", err)
	}

	var rows []*CleanedTransactionRow
	for {
		var r CleanedTransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCleanedTransactions: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

// tableRef renders a fully qualified, quoted table name.
func tableRef(client *bigquery.Client, datasetID, table string) string {
	return "`" + client.Project() + "." + datasetID + "." + table + "`"
}
