package reference

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/smart-financial-parser/internal/logger"
	"github.com/dvloznov/smart-financial-parser/internal/tableio"
)

// MerchantSource provides merchant reference rows from an external store.
type MerchantSource interface {
	ListMerchants(ctx context.Context) ([]Merchant, error)
}

// Sources describes where the reference tables come from. Empty paths are skipped.
type Sources struct {
	MerchantsPath  string
	CurrenciesPath string
	Merchants      MerchantSource // optional, appended after file rows
}

// Load builds a Table from files and an optional external merchant source.
func Load(ctx context.Context, src Sources) (*Table, error) {
	log := logger.FromContext(ctx)

	var merchants []Merchant
	if src.MerchantsPath != "" {
		rows, err := LoadMerchantsFile(src.MerchantsPath)
		if err != nil {
			return nil, err
		}
		merchants = append(merchants, rows...)
	}

	if src.Merchants != nil {
		rows, err := src.Merchants.ListMerchants(ctx)
		if err != nil {
			return nil, fmt.Errorf("Load: list merchants: %w", err)
		}
		merchants = append(merchants, rows...)
	}

	var currencies []Currency
	if src.CurrenciesPath != "" {
		rows, err := LoadCurrenciesFile(src.CurrenciesPath)
		if err != nil {
			return nil, err
		}
		currencies = rows
	}

	table := New(merchants, currencies)
	m, c := table.Len()
	log.Debug().
		Int("merchants", m).
		Int("currencies", c).
		Msg("Loaded reference tables")

	return table, nil
}

// LoadMerchantsFile reads a CSV or XLSX file with merchant and industry columns.
func LoadMerchantsFile(path string) ([]Merchant, error) {
	t, err := tableio.ReadFile(path, true)
	if err != nil {
		return nil, fmt.Errorf("LoadMerchantsFile: %w", err)
	}

	nameCol := columnIndex(t.Header, "merchant", "name", "company", "canonical_name")
	industryCol := columnIndex(t.Header, "industry", "category")
	if nameCol < 0 || industryCol < 0 {
		return nil, fmt.Errorf("LoadMerchantsFile: %q needs merchant and industry columns, got %v", path, t.Header)
	}

	out := make([]Merchant, 0, len(t.Rows))
	for _, row := range t.Rows {
		name := cell(row, nameCol)
		if name == "" {
			continue
		}
		out = append(out, Merchant{Name: name, Industry: cell(row, industryCol)})
	}
	return out, nil
}

// LoadCurrenciesFile reads a CSV or XLSX file with a code column and an optional symbol column.
func LoadCurrenciesFile(path string) ([]Currency, error) {
	t, err := tableio.ReadFile(path, true)
	if err != nil {
		return nil, fmt.Errorf("LoadCurrenciesFile: %w", err)
	}

	codeCol := columnIndex(t.Header, "code", "currency", "currency_code")
	if codeCol < 0 {
		return nil, fmt.Errorf("LoadCurrenciesFile: %q needs a code column, got %v", path, t.Header)
	}
	symbolCol := columnIndex(t.Header, "symbol")

	out := make([]Currency, 0, len(t.Rows))
	for _, row := range t.Rows {
		code := cell(row, codeCol)
		if code == "" {
			continue
		}
		out = append(out, Currency{Code: code, Symbol: cell(row, symbolCol)})
	}
	return out, nil
}

func columnIndex(header []string, names ...string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, n := range names {
			if h == n {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
