// Package aggregate summarizes converted spend per industry and per merchant.
package aggregate

import (
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/smart-financial-parser/internal/domain"
)

// Total is the converted spend of one group.
type Total struct {
	Name   string
	Amount decimal.Decimal
	Count  int
}

// Summary holds spend totals in the reference currency.
type Summary struct {
	Records     int
	Unconverted int // records without an amount in the reference currency
	Industries  []Total
	Merchants   []Total
}

// Summarize sums AmountInReference by industry and by canonical merchant.
// Groups are ordered by amount, highest first, then by name.
func Summarize(records []*domain.Record) Summary {
	s := Summary{Records: len(records)}

	industries := make(map[string]*Total)
	merchants := make(map[string]*Total)

	for _, rec := range records {
		amount, ok := rec.AmountInReference.Get()
		if !ok {
			s.Unconverted++
			continue
		}
		add(industries, rec.Industry, amount)
		if name, ok := rec.CanonicalMerchant.Get(); ok {
			add(merchants, name, amount)
		}
	}

	s.Industries = sorted(industries)
	s.Merchants = sorted(merchants)
	return s
}

func add(groups map[string]*Total, name string, amount decimal.Decimal) {
	t, ok := groups[name]
	if !ok {
		t = &Total{Name: name}
		groups[name] = t
	}
	t.Amount = t.Amount.Add(amount)
	t.Count++
}

func sorted(groups map[string]*Total) []Total {
	out := make([]Total, 0, len(groups))
	for _, t := range groups {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// TopIndustry returns the industry with the highest converted spend.
func (s Summary) TopIndustry() (Total, bool) {
	if len(s.Industries) == 0 {
		return Total{}, false
	}
	return s.Industries[0], true
}

// TopMerchants returns up to n merchants with the highest converted spend.
func (s Summary) TopMerchants(n int) []Total {
	switch {
	case n < 0:
		n = 0
	case n > len(s.Merchants):
		n = len(s.Merchants)
	}
	return s.Merchants[:n]
}

// Print writes a short human readable summary.
func (s Summary) Print(w io.Writer, topMerchants int) error {
	if s.Records == 0 {
		_, err := fmt.Fprintln(w, "No records to summarize.")
		return err
	}

	top, ok := s.TopIndustry()
	if !ok {
		_, err := fmt.Fprintf(w, "No converted amounts among %d records; industry totals unavailable.\n", s.Records)
		return err
	}

	if _, err := fmt.Fprintf(w, "Industry with highest spend: %s (%s %s)\n", top.Name, top.Amount.StringFixed(2), domain.ReferenceCurrency); err != nil {
		return err
	}

	merchants := s.TopMerchants(topMerchants)
	if len(merchants) > 0 {
		if _, err := fmt.Fprintln(w, "Top merchants:"); err != nil {
			return err
		}
		for i, m := range merchants {
			if _, err := fmt.Fprintf(w, "  %d. %s: %s %s (%d transactions)\n", i+1, m.Name, m.Amount.StringFixed(2), domain.ReferenceCurrency, m.Count); err != nil {
				return err
			}
		}
	}

	if s.Unconverted > 0 {
		if _, err := fmt.Fprintf(w, "%d of %d records had no amount in %s.\n", s.Unconverted, s.Records, domain.ReferenceCurrency); err != nil {
			return err
		}
	}
	return nil
}
