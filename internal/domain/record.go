package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

const (
	// UnknownIndustry is reported when a merchant is missing or has no reference entry.
	UnknownIndustry = "UNKNOWN"

	// MissingDate is written in place of a date for rows that had no date cell.
	MissingDate = "none"

	// ReferenceCurrency is the currency every amount is converted into.
	ReferenceCurrency = "USD"
)

// OutputColumns is the ordered column set of the cleaned table.
// Other tools read this file, so names and order must not change.
var OutputColumns = []string{
	"date",
	"merchant",
	"normalized company name",
	"industry",
	"amount",
	"currency",
	"amount in USD",
}

// Record represents one normalized transaction built from a single input row.
// This is a domain struct, not a storage row; sinks map it into their own schemas.
type Record struct {
	Row int // 1-based data row index in the source table

	Date              Field[civil.Date]
	Merchant          Field[string] // cleaned merchant text
	CanonicalMerchant Field[string]
	MatchScore        int // similarity of CanonicalMerchant to the reference name, 0..100
	Industry          string
	Amount            Field[decimal.Decimal]
	Currency          Field[string]
	AmountInReference Field[decimal.Decimal]
}

// NewRecord returns an empty record for the given source row.
func NewRecord(row int) *Record {
	return &Record{Row: row, Industry: UnknownIndustry}
}

// DateString renders the date column: ISO date, the "none" sentinel, or empty if never resolved.
func (r *Record) DateString() string {
	if d, ok := r.Date.Get(); ok {
		return d.String()
	}
	if r.Date.Absent() {
		return MissingDate
	}
	return ""
}

// Values renders the record in OutputColumns order.
func (r *Record) Values() []string {
	return []string{
		r.DateString(),
		r.Merchant.OrZero(),
		r.CanonicalMerchant.OrZero(),
		r.Industry,
		decimalString(r.Amount),
		r.Currency.OrZero(),
		decimalString(r.AmountInReference),
	}
}

func decimalString(f Field[decimal.Decimal]) string {
	if v, ok := f.Get(); ok {
		return v.String()
	}
	return ""
}
