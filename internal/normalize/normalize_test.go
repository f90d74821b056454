package normalize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/smart-financial-parser/internal/canonical"
	"github.com/dvloznov/smart-financial-parser/internal/domain"
	"github.com/dvloznov/smart-financial-parser/internal/reference"
)

// MockConverter implements Converter for testing
type MockConverter struct {
	mu          sync.Mutex
	calls       []string
	ConvertFunc func(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error)
}

func (m *MockConverter) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	m.calls = append(m.calls, from+"->"+to)
	m.mu.Unlock()
	if m.ConvertFunc != nil {
		return m.ConvertFunc(ctx, from, to, amount)
	}
	return amount.Mul(decimal.NewFromInt(2)), nil
}

func newTestNormalizer(conv Converter, opts Options) *Normalizer {
	ref := reference.New([]reference.Merchant{
		{Name: "AMZN MKTPLACE", Industry: "Retail"},
		{Name: "STARBUCKS", Industry: "Food & Beverage"},
	}, nil)
	return New(ref, canonical.New(ref.MerchantNames(), canonical.DefaultThreshold), conv, opts)
}

func TestNormalize_ExampleRow(t *testing.T) {
	n := newTestNormalizer(&MockConverter{}, Options{})

	records, stats, err := n.Normalize(context.Background(), [][]string{
		{"2024-01-05", "$45.20", "AMZN*MKTPLACE"},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]

	if d, _ := rec.Date.Get(); d != (civil.Date{Year: 2024, Month: 1, Day: 5}) {
		t.Errorf("Date = %v, want 2024-01-05", d)
	}
	if a, _ := rec.Amount.Get(); !a.Equal(decimal.RequireFromString("45.20")) {
		t.Errorf("Amount = %s, want 45.20", a)
	}
	if c := rec.Currency.OrZero(); c != "USD" {
		t.Errorf("Currency = %q, want USD", c)
	}
	if m := rec.Merchant.OrZero(); m != "AMZN MKTPLACE" {
		t.Errorf("Merchant = %q, want AMZN MKTPLACE", m)
	}
	if c := rec.CanonicalMerchant.OrZero(); c != "AMZN MKTPLACE" {
		t.Errorf("CanonicalMerchant = %q, want AMZN MKTPLACE", c)
	}
	if rec.Industry != "Retail" {
		t.Errorf("Industry = %q, want Retail", rec.Industry)
	}
	if v, _ := rec.AmountInReference.Get(); !v.Equal(decimal.RequireFromString("90.4")) {
		t.Errorf("AmountInReference = %s, want 90.4", v)
	}
	if stats.Converted != 1 || stats.ConversionFailed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestNormalize_DropsBlankRows(t *testing.T) {
	n := newTestNormalizer(nil, Options{})

	records, stats, err := n.Normalize(context.Background(), [][]string{
		{"", " ", ""},
		{"NaN", "", "null"},
		{},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
	if stats.RowsIn != 3 || stats.RowsDropped != 3 {
		t.Errorf("stats = %+v, want 3 in and 3 dropped", stats)
	}
}

func TestNormalize_EmptyTable(t *testing.T) {
	records, stats, err := newTestNormalizer(nil, Options{}).Normalize(context.Background(), nil)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("records = %v, want empty non-nil slice", records)
	}
	if stats.Records != 0 {
		t.Errorf("stats.Records = %d", stats.Records)
	}
}

func TestNormalize_BackfillsCurrency(t *testing.T) {
	conv := &MockConverter{}
	n := newTestNormalizer(conv, Options{})

	records, stats, err := n.Normalize(context.Background(), [][]string{
		{"EUR", "10", "STARBUCKS"},
		{"20", "STARBUCKS"},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if c := records[1].Currency.OrZero(); c != "EUR" {
		t.Errorf("backfilled currency = %q, want EUR", c)
	}
	if stats.BackfillCurrency != "EUR" || stats.CurrencyBackfilled != 1 {
		t.Errorf("stats = %+v", stats)
	}
	for i, rec := range records {
		if !rec.AmountInReference.IsSet() {
			t.Errorf("record %d has no converted amount", i)
		}
	}
	if len(conv.calls) != 2 || conv.calls[0] != "EUR->USD" {
		t.Errorf("converter calls = %v, want two EUR->USD", conv.calls)
	}
}

func TestNormalize_NoCurrencyAnywhere(t *testing.T) {
	records, stats, err := newTestNormalizer(&MockConverter{}, Options{}).Normalize(context.Background(), [][]string{
		{"10", "STARBUCKS"},
		{"20", "UBER"},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	for _, rec := range records {
		if rec.Currency.IsSet() || rec.AmountInReference.IsSet() {
			t.Errorf("row %d: currency and converted amount should stay empty", rec.Row)
		}
	}
	if stats.BackfillCurrency != "" || stats.Converted != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestNormalize_ConversionFailureIsolated(t *testing.T) {
	conv := &MockConverter{
		ConvertFunc: func(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
			if from == "GBP" {
				return decimal.Zero, errors.New("pair rejected")
			}
			return amount, nil
		},
	}
	n := newTestNormalizer(conv, Options{ConversionConcurrency: 2})

	records, stats, err := n.Normalize(context.Background(), [][]string{
		{"USD", "1", "A"},
		{"GBP", "2", "B"},
		{"USD", "3", "C"},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[1].AmountInReference.IsSet() {
		t.Error("failed conversion should leave amount in USD empty")
	}
	if !records[0].AmountInReference.IsSet() || !records[2].AmountInReference.IsSet() {
		t.Error("other rows should still be converted")
	}
	if stats.Converted != 2 || stats.ConversionFailed != 1 {
		t.Errorf("stats = %+v, want 2 converted and 1 failed", stats)
	}
}

func TestNormalize_FirstMatchWins(t *testing.T) {
	records, _, err := newTestNormalizer(nil, Options{}).Normalize(context.Background(), [][]string{
		{"STARBUCKS", "2024-02-01", "5", "€", "2024-03-01", "7", "GBP", "UBER"},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	rec := records[0]

	if got := rec.DateString(); got != "2024-02-01" {
		t.Errorf("Date = %q, want first date", got)
	}
	if a, _ := rec.Amount.Get(); !a.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Amount = %s, want 5", a)
	}
	// The bare symbol sets the currency although the amount was already taken.
	if c := rec.Currency.OrZero(); c != "EUR" {
		t.Errorf("Currency = %q, want EUR from the symbol", c)
	}
	if m := rec.Merchant.OrZero(); m != "STARBUCKS" {
		t.Errorf("Merchant = %q, want first merchant", m)
	}
	if rec.Industry != "Food & Beverage" {
		t.Errorf("Industry = %q", rec.Industry)
	}
}

func TestNormalize_DateSentinelAndUnknownIndustry(t *testing.T) {
	records, _, err := newTestNormalizer(nil, Options{}).Normalize(context.Background(), [][]string{
		{"12.00", "Corner Shop"},
		{"12.00"},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	for _, rec := range records {
		if rec.DateString() != domain.MissingDate {
			t.Errorf("row %d date = %q, want none", rec.Row, rec.DateString())
		}
		if rec.Industry != domain.UnknownIndustry {
			t.Errorf("row %d industry = %q, want UNKNOWN", rec.Row, rec.Industry)
		}
	}
	if got := records[0].CanonicalMerchant.OrZero(); got != "CORNER SHOP" {
		t.Errorf("CanonicalMerchant = %q, want cleaned text", got)
	}
}

func TestNormalize_PreservesOrderWithWorkers(t *testing.T) {
	rows := make([][]string, 200)
	for i := range rows {
		if i%7 == 0 {
			rows[i] = []string{"", ""}
			continue
		}
		rows[i] = []string{fmt.Sprintf("%d", i), "STARBUCKS"}
	}

	records, stats, err := newTestNormalizer(nil, Options{Workers: 8}).Normalize(context.Background(), rows)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	prev := 0
	for _, rec := range records {
		if rec.Row <= prev {
			t.Fatalf("row %d after row %d, want input order", rec.Row, prev)
		}
		prev = rec.Row
		want := decimal.NewFromInt(int64(rec.Row - 1))
		if a, _ := rec.Amount.Get(); !a.Equal(want) {
			t.Errorf("row %d amount = %s, want %s", rec.Row, a, want)
		}
	}
	if stats.Records+stats.RowsDropped != len(rows) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestNormalize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newTestNormalizer(nil, Options{}).Normalize(ctx, [][]string{{"1", "A"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Normalize() error = %v, want context.Canceled", err)
	}
}

func TestCurrencyMode_TieKeepsFirstSeen(t *testing.T) {
	mk := func(c string) *domain.Record {
		r := domain.NewRecord(1)
		if c != "" {
			r.Currency.Set(c)
		}
		return r
	}

	tests := []struct {
		name  string
		input []string
		want  string
	}{
		{"single", []string{"EUR", ""}, "EUR"},
		{"majority", []string{"USD", "EUR", "EUR"}, "EUR"},
		{"tie first seen", []string{"GBP", "USD", "USD", "GBP"}, "GBP"},
		{"none", []string{"", ""}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var records []*domain.Record
			for _, c := range tt.input {
				records = append(records, mk(c))
			}
			got, _ := currencyMode(records)
			if got != tt.want {
				t.Errorf("currencyMode() = %q, want %q", got, tt.want)
			}
		})
	}
}
