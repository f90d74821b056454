package normalize

import (
	"github.com/dvloznov/smart-financial-parser/internal/canonical"
	"github.com/dvloznov/smart-financial-parser/internal/classify"
	"github.com/dvloznov/smart-financial-parser/internal/domain"
)

// mergeRow builds the record for one row, or returns nil for a row with no data.
// Each field keeps the first cell classified into it.
func (n *Normalizer) mergeRow(index int, row []string) *domain.Record {
	if blankRow(row) {
		return nil
	}

	rec := domain.NewRecord(index)
	for _, cell := range row {
		res := n.classifier.Classify(cell)

		switch res.Kind {
		case classify.KindDate:
			rec.Date.Set(res.Date)
		case classify.KindCurrency:
			rec.Currency.Set(res.Currency)
		case classify.KindAmount:
			rec.Amount.Set(res.Amount)
			// Applies even when an earlier cell already set the amount.
			if res.ImpliedCurrency != "" {
				rec.Currency.Set(res.ImpliedCurrency)
			}
		case classify.KindMerchant:
			if rec.Merchant.Set(canonical.Clean(res.Text)) {
				name, score := n.canon.Canonicalize(res.Text)
				rec.CanonicalMerchant.Set(name)
				rec.MatchScore = score
			}
		}
	}

	if name, ok := rec.CanonicalMerchant.Get(); ok {
		if industry, ok := n.ref.Industry(name); ok {
			rec.Industry = industry
		}
	}
	rec.Date.MarkAbsent()

	return rec
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if !classify.IsBlank(cell) {
			return false
		}
	}
	return true
}

// currencyMode returns the most frequent currency. Ties go to the value seen first.
func currencyMode(records []*domain.Record) (string, bool) {
	counts := make(map[string]int)
	var order []string
	for _, rec := range records {
		c, ok := rec.Currency.Get()
		if !ok {
			continue
		}
		if counts[c] == 0 {
			order = append(order, c)
		}
		counts[c]++
	}

	best, bestCount := "", 0
	for _, c := range order {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best, bestCount > 0
}

// backfillCurrency sets the currency mode on every record that has none.
func backfillCurrency(records []*domain.Record) (string, int) {
	mode, ok := currencyMode(records)
	if !ok {
		return "", 0
	}
	filled := 0
	for _, rec := range records {
		if rec.Currency.Set(mode) {
			filled++
		}
	}
	return mode, filled
}
