// Package classify infers the semantic type of a single table cell.
//
// Classification is content driven and total: every input maps to exactly one
// Kind and the classifier never returns an error. Checks run in a fixed order
// because signals overlap ("2024" reads as a year and as an amount):
//
//	Invalid -> Date -> Currency -> Amount -> Merchant
package classify

import (
	"regexp"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/smart-financial-parser/internal/canonical"
	"github.com/dvloznov/smart-financial-parser/internal/reference"
)

// Kind is the semantic tag of a classified cell.
type Kind int

const (
	KindInvalid Kind = iota
	KindDate
	KindCurrency
	KindAmount
	KindMerchant
)

func (k Kind) String() string {
	switch k {
	case KindDate:
		return "date"
	case KindCurrency:
		return "currency"
	case KindAmount:
		return "amount"
	case KindMerchant:
		return "merchant"
	default:
		return "invalid"
	}
}

// Result is the outcome of classifying one cell. Only the fields belonging to Kind are meaningful.
type Result struct {
	Kind Kind

	Date            civil.Date
	Currency        string
	Amount          decimal.Decimal
	ImpliedCurrency string // set by a currency symbol in front of an amount
	Text            string // trimmed merchant text
}

// NullPlaceholders are cell values that spreadsheet exports use for empty cells. Matched case-insensitively.
var NullPlaceholders = []string{"nan", "null", "none", "n/a", "#n/a"}

// IsBlank reports whether a cell carries no data: empty, whitespace or a null placeholder.
func IsBlank(cell string) bool {
	s := strings.TrimSpace(cell)
	if s == "" {
		return true
	}
	for _, p := range NullPlaceholders {
		if strings.EqualFold(s, p) {
			return true
		}
	}
	return false
}

// Classifier classifies cells against a reference table. It is safe for concurrent use.
type Classifier struct {
	ref    *reference.Table
	amount *regexp.Regexp
}

// New builds a Classifier whose amount pattern accepts the table's currency symbols.
func New(ref *reference.Table) *Classifier {
	return &Classifier{
		ref:    ref,
		amount: amountPattern(ref.Symbols()),
	}
}

// amountPattern matches an optional sign, an optional symbol and an optional number.
// Symbols arrive longest first so the alternation prefers "C$" over "$".
func amountPattern(symbols []string) *regexp.Regexp {
	quoted := make([]string, len(symbols))
	for i, s := range symbols {
		quoted[i] = regexp.QuoteMeta(s)
	}
	symbolGroup := "()"
	if len(quoted) > 0 {
		symbolGroup = "(" + strings.Join(quoted, "|") + ")?"
	}
	return regexp.MustCompile(`^([-+])?\s*` + symbolGroup + `\s*([-+])?\s*(\d*\.?\d+)?$`)
}

// Classify returns the semantic type of cell.
func (c *Classifier) Classify(cell string) Result {
	s := strings.TrimSpace(cell)
	if IsBlank(s) {
		return Result{Kind: KindInvalid}
	}

	if d, ok := parseDate(s); ok {
		return Result{Kind: KindDate, Date: d}
	}

	if code := strings.ToUpper(s); c.ref.IsCurrency(code) {
		return Result{Kind: KindCurrency, Currency: code}
	}

	if r, ok := c.parseAmount(s); ok {
		return r
	}

	if canonical.Clean(s) == "" {
		return Result{Kind: KindInvalid}
	}
	return Result{Kind: KindMerchant, Text: s}
}

func (c *Classifier) parseAmount(s string) (Result, bool) {
	m := c.amount.FindStringSubmatch(strings.ReplaceAll(s, ",", ""))
	if m == nil {
		return Result{}, false
	}
	leadSign, symbol, innerSign, digits := m[1], m[2], m[3], m[4]

	var implied string
	if symbol != "" {
		implied, _ = c.ref.CurrencyForSymbol(symbol)
	}

	switch {
	case digits != "":
		v, err := decimal.NewFromString(digits)
		if err != nil {
			return Result{}, false
		}
		if leadSign == "-" || innerSign == "-" {
			v = v.Neg()
		}
		return Result{Kind: KindAmount, Amount: v, ImpliedCurrency: implied}, true
	case symbol != "":
		return Result{Kind: KindAmount, Amount: decimal.Zero, ImpliedCurrency: implied}, true
	default:
		return Result{}, false
	}
}
