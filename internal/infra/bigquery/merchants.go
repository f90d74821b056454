package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/smart-financial-parser/internal/reference"
)

const merchantsTable = "merchants"

// MerchantRow is one reference merchant in finance.merchants.
type MerchantRow struct {
	MerchantID    string              `bigquery:"merchant_id"`    // REQUIRED
	CanonicalName string              `bigquery:"canonical_name"` // REQUIRED
	Industry      bigquery.NullString `bigquery:"industry"`       // NULLABLE

	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"` // NULLABLE (default CURRENT_TIMESTAMP())
}

// ListMerchantsWithClient reads the merchant reference table ordered by merchant_id,
// so repeated loads give the same tie-break order.
func ListMerchantsWithClient(ctx context.Context, client *bigquery.Client, datasetID string) ([]reference.Merchant, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT merchant_id, canonical_name, industry, created_ts
		FROM %s
		ORDER BY merchant_id
	`, tableRef(client, datasetID, merchantsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListMerchants: query read: %w", err)
	}

	var out []reference.Merchant
	for {
		var r MerchantRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListMerchants: iter next: %w", err)
		}
		out = append(out, reference.Merchant{Name: r.CanonicalName, Industry: r.Industry.StringVal})
	}
	return out, nil
}
