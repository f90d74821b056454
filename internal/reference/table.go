// Package reference holds the read-only lookup tables used during cleaning:
// merchant name to industry, currency symbol to code, and the recognized currency codes.
//
// A Table is built once at startup and never mutated, so it is shared across
// goroutines without locking.
package reference

import (
	"sort"
	"strings"
)

// Merchant is one row of the merchant reference table.
type Merchant struct {
	Name     string
	Industry string
}

// Currency is one row of the currency reference table. Symbol may be empty.
type Currency struct {
	Code   string
	Symbol string
}

// DefaultCurrencies is used when no currency table is configured.
// A symbol shared by several currencies resolves to the first code listed for it.
var DefaultCurrencies = []Currency{
	{Code: "USD", Symbol: "$"},
	{Code: "EUR", Symbol: "€"},
	{Code: "GBP", Symbol: "£"},
	{Code: "CAD"},
	{Code: "AUD"},
	{Code: "INR", Symbol: "₹"},
	{Code: "JPY", Symbol: "¥"},
}

// Table is an immutable set of reference lookups.
type Table struct {
	industries map[string]string // uppercased merchant name -> industry
	merchants  []string          // canonical names in source order
	symbols    map[string]string // symbol -> currency code
	codes      map[string]struct{}
	symbolList []string // longest first
}

// New builds a Table. When currencies is empty DefaultCurrencies is used.
// Duplicate merchant names and symbols keep their first occurrence.
func New(merchants []Merchant, currencies []Currency) *Table {
	if len(currencies) == 0 {
		currencies = DefaultCurrencies
	}

	t := &Table{
		industries: make(map[string]string, len(merchants)),
		merchants:  make([]string, 0, len(merchants)),
		symbols:    make(map[string]string),
		codes:      make(map[string]struct{}, len(currencies)),
	}

	for _, m := range merchants {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		key := strings.ToUpper(name)
		if _, dup := t.industries[key]; dup {
			continue
		}
		t.industries[key] = strings.TrimSpace(m.Industry)
		t.merchants = append(t.merchants, name)
	}

	for _, c := range currencies {
		code := strings.ToUpper(strings.TrimSpace(c.Code))
		if code == "" {
			continue
		}
		t.codes[code] = struct{}{}

		sym := strings.TrimSpace(c.Symbol)
		if sym == "" {
			continue
		}
		if _, dup := t.symbols[sym]; dup {
			continue
		}
		t.symbols[sym] = code
		t.symbolList = append(t.symbolList, sym)
	}

	// Longest first so a regex alternation never stops at a shorter prefix (e.g. "$" inside "US$").
	sort.SliceStable(t.symbolList, func(i, j int) bool {
		return len(t.symbolList[i]) > len(t.symbolList[j])
	})

	return t
}

// Industry looks up the industry of a merchant name, case-insensitively.
func (t *Table) Industry(name string) (string, bool) {
	ind, ok := t.industries[strings.ToUpper(strings.TrimSpace(name))]
	if !ok || ind == "" {
		return "", false
	}
	return ind, true
}

// MerchantNames returns a copy of the canonical merchant names in source order.
func (t *Table) MerchantNames() []string {
	out := make([]string, len(t.merchants))
	copy(out, t.merchants)
	return out
}

// CurrencyForSymbol returns the default code for a currency symbol.
func (t *Table) CurrencyForSymbol(symbol string) (string, bool) {
	code, ok := t.symbols[symbol]
	return code, ok
}

// IsCurrency reports whether code (already uppercased) is a recognized currency code.
func (t *Table) IsCurrency(code string) bool {
	_, ok := t.codes[code]
	return ok
}

// Symbols returns the known currency symbols, longest first.
func (t *Table) Symbols() []string {
	out := make([]string, len(t.symbolList))
	copy(out, t.symbolList)
	return out
}

// Len returns the number of merchants and currencies in the table.
func (t *Table) Len() (merchants, currencies int) {
	return len(t.merchants), len(t.codes)
}
