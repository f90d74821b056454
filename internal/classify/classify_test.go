package classify

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/smart-financial-parser/internal/reference"
)

func newTestClassifier() *Classifier {
	return New(reference.New(nil, nil))
}

func TestClassify_Kinds(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		cell string
		want Kind
	}{
		{"", KindInvalid},
		{"   ", KindInvalid},
		{"NaN", KindInvalid},
		{"n/a", KindInvalid},
		{"#N/A", KindInvalid},
		{"*-_", KindInvalid},
		{"-", KindInvalid},
		{"2024-01-05", KindDate},
		{"usd", KindCurrency},
		{" EUR ", KindCurrency},
		{"$45.20", KindAmount},
		{"100", KindAmount},
		{"2024", KindAmount},
		{"AMZN*MKTPLACE", KindMerchant},
		{"12abc", KindMerchant},
		{"March 2024", KindMerchant},
		{"555-123-4567", KindMerchant},
		{"XYZ", KindMerchant},
	}

	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			if got := c.Classify(tt.cell).Kind; got != tt.want {
				t.Errorf("Classify(%q).Kind = %v, want %v", tt.cell, got, tt.want)
			}
		})
	}
}

func TestClassify_Dates(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		cell string
		want civil.Date
	}{
		{"2024-01-05", civil.Date{Year: 2024, Month: 1, Day: 5}},
		{"2024-01-05 10:30:00", civil.Date{Year: 2024, Month: 1, Day: 5}},
		{"01/05/2024", civil.Date{Year: 2024, Month: 1, Day: 5}},
		{"13/01/2024", civil.Date{Year: 2024, Month: 1, Day: 13}},
		{"01-05-2024", civil.Date{Year: 2024, Month: 1, Day: 5}},
		{"31-12-2024", civil.Date{Year: 2024, Month: 12, Day: 31}},
		{"13-01-2024", civil.Date{Year: 2024, Month: 1, Day: 13}},
		{"12-25-2024", civil.Date{Year: 2024, Month: 12, Day: 25}},
		{"25-03-2024", civil.Date{Year: 2024, Month: 3, Day: 25}},
		{"25.03.2024", civil.Date{Year: 2024, Month: 3, Day: 25}},
		{"Jan 5, 2024", civil.Date{Year: 2024, Month: 1, Day: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			got := c.Classify(tt.cell)
			if got.Kind != KindDate {
				t.Fatalf("Classify(%q).Kind = %v, want date", tt.cell, got.Kind)
			}
			if got.Date != tt.want {
				t.Errorf("Classify(%q).Date = %v, want %v", tt.cell, got.Date, tt.want)
			}
		})
	}
}

func TestClassify_Amounts(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		cell        string
		wantAmount  string
		wantImplied string
	}{
		{"$45.20", "45.20", "USD"},
		{"1,234.56", "1234.56", ""},
		{"-12.5", "-12.5", ""},
		{"$-5", "-5", "USD"},
		{"-$5", "-5", "USD"},
		{"€", "0", "EUR"},
		{"£ 12", "12", "GBP"},
		{"¥1,000", "1000", "JPY"},
		{".5", "0.5", ""},
	}

	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			got := c.Classify(tt.cell)
			if got.Kind != KindAmount {
				t.Fatalf("Classify(%q).Kind = %v, want amount", tt.cell, got.Kind)
			}
			want := decimal.RequireFromString(tt.wantAmount)
			if !got.Amount.Equal(want) {
				t.Errorf("Classify(%q).Amount = %s, want %s", tt.cell, got.Amount, want)
			}
			if got.ImpliedCurrency != tt.wantImplied {
				t.Errorf("Classify(%q).ImpliedCurrency = %q, want %q", tt.cell, got.ImpliedCurrency, tt.wantImplied)
			}
		})
	}
}

func TestClassify_AmountRoundTrip(t *testing.T) {
	c := newTestClassifier()

	for _, cell := range []string{"$45.20", "1,234.56", "-12.5", "€", "2024", "0.001", "$ 7"} {
		t.Run(cell, func(t *testing.T) {
			first := c.Classify(cell)
			if first.Kind != KindAmount {
				t.Fatalf("Classify(%q).Kind = %v, want amount", cell, first.Kind)
			}
			again := c.Classify(first.Amount.String())
			if again.Kind != KindAmount || !again.Amount.Equal(first.Amount) {
				t.Errorf("re-classifying %q gave %v %s, want amount %s", first.Amount.String(), again.Kind, again.Amount, first.Amount)
			}
		})
	}
}

func TestClassify_MerchantKeepsRawText(t *testing.T) {
	got := newTestClassifier().Classify("  AMZN*MKTPLACE ")
	if got.Text != "AMZN*MKTPLACE" {
		t.Errorf("Text = %q, want trimmed raw text", got.Text)
	}
}

func TestClassify_CustomSymbols(t *testing.T) {
	ref := reference.New(nil, []reference.Currency{
		{Code: "USD", Symbol: "$"},
		{Code: "CAD", Symbol: "C$"},
	})
	got := New(ref).Classify("C$12")
	if got.Kind != KindAmount || got.ImpliedCurrency != "CAD" {
		t.Errorf("Classify(C$12) = %+v, want CAD amount", got)
	}
	if New(ref).Classify("EUR").Kind != KindMerchant {
		t.Error("EUR is not in the custom table and should fall back to merchant")
	}
}

func TestClassify_NoSymbols(t *testing.T) {
	ref := reference.New(nil, []reference.Currency{{Code: "USD"}})
	c := New(ref)
	if got := c.Classify("45"); got.Kind != KindAmount {
		t.Errorf("Classify(45).Kind = %v, want amount", got.Kind)
	}
	if got := c.Classify("$45"); got.Kind != KindMerchant {
		t.Errorf("Classify($45).Kind = %v, want merchant without known symbols", got.Kind)
	}
}

func TestIsBlank(t *testing.T) {
	tests := []struct {
		cell string
		want bool
	}{
		{"", true},
		{" \t", true},
		{"None", true},
		{"NULL", true},
		{"0", false},
		{"x", false},
	}
	for _, tt := range tests {
		if got := IsBlank(tt.cell); got != tt.want {
			t.Errorf("IsBlank(%q) = %v, want %v", tt.cell, got, tt.want)
		}
	}
}

func TestIsDateCandidate(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"100", false},
		{"45.20", false},
		{"2024", false},
		{"$2024.00", false},
		{"March 2024", false},
		{"5 March 2024", true},
		{"2024-01-05", true},
		{"1/5/24", true},
	}
	for _, tt := range tests {
		if got := isDateCandidate(tt.in); got != tt.want {
			t.Errorf("isDateCandidate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
