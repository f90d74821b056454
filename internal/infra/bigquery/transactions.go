package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/smart-financial-parser/internal/domain"
)

// CleanedTransactionRow is one cleaned record in finance.cleaned_transactions.
type CleanedTransactionRow struct {
	RunID    string `bigquery:"run_id"`    // REQUIRED
	RowIndex int64  `bigquery:"row_index"` // REQUIRED, 1-based data row in the source table

	TransactionDate bigquery.NullDate `bigquery:"transaction_date"` // NULLABLE, NULL for "none"

	Merchant          bigquery.NullString `bigquery:"merchant"`           // NULLABLE
	CanonicalMerchant bigquery.NullString `bigquery:"canonical_merchant"` // NULLABLE
	MatchScore        int64               `bigquery:"match_score"`
	Industry          string              `bigquery:"industry"` // REQUIRED, UNKNOWN when unresolved

	Amount    *big.Rat            `bigquery:"amount"`     // NULLABLE NUMERIC
	Currency  bigquery.NullString `bigquery:"currency"`   // NULLABLE
	AmountUSD *big.Rat            `bigquery:"amount_usd"` // NULLABLE NUMERIC

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// ToCleanedTransactionRows maps records of one run into table rows.
func ToCleanedTransactionRows(runID string, records []*domain.Record, now time.Time) []*CleanedTransactionRow {
	rows := make([]*CleanedTransactionRow, 0, len(records))
	for _, rec := range records {
		row := &CleanedTransactionRow{
			RunID:             runID,
			RowIndex:          int64(rec.Row),
			Merchant:          nullString(rec.Merchant),
			CanonicalMerchant: nullString(rec.CanonicalMerchant),
			MatchScore:        int64(rec.MatchScore),
			Industry:          rec.Industry,
			Amount:            numeric(rec.Amount),
			Currency:          nullString(rec.Currency),
			AmountUSD:         numeric(rec.AmountInReference),
			CreatedTS:         now,
		}
		if d, ok := rec.Date.Get(); ok {
			row.TransactionDate = bigquery.NullDate{Date: d, Valid: true}
		}
		rows = append(rows, row)
	}
	return rows
}

// ToRecord maps a stored row back into a record. NULL columns become absent fields.
func (r *CleanedTransactionRow) ToRecord() *domain.Record {
	rec := domain.NewRecord(int(r.RowIndex))
	if r.TransactionDate.Valid {
		rec.Date.Set(r.TransactionDate.Date)
	} else {
		rec.Date.MarkAbsent()
	}
	setString(&rec.Merchant, r.Merchant)
	setString(&rec.CanonicalMerchant, r.CanonicalMerchant)
	rec.MatchScore = int(r.MatchScore)
	if r.Industry != "" {
		rec.Industry = r.Industry
	}
	setDecimal(&rec.Amount, r.Amount)
	setString(&rec.Currency, r.Currency)
	setDecimal(&rec.AmountInReference, r.AmountUSD)
	return rec
}

func setString(f *domain.Field[string], v bigquery.NullString) {
	if v.Valid {
		f.Set(v.StringVal)
	} else {
		f.MarkAbsent()
	}
}

func setDecimal(f *domain.Field[decimal.Decimal], v *big.Rat) {
	if v == nil {
		f.MarkAbsent()
		return
	}
	f.Set(decimal.RequireFromString(v.FloatString(9)))
}

func nullString(f domain.Field[string]) bigquery.NullString {
	v, ok := f.Get()
	return bigquery.NullString{StringVal: v, Valid: ok}
}

// numeric converts a decimal field into the *big.Rat BigQuery uses for NUMERIC; nil means NULL.
// It rounds to the 9 fractional digits a BigQuery NUMERIC holds.
func numeric(f domain.Field[decimal.Decimal]) *big.Rat {
	v, ok := f.Get()
	if !ok {
		return nil
	}
	return v.Round(9).Rat()
}
