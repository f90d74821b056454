// Package normalize rebuilds one record per input row from independently classified cells,
// then fills row-level gaps from corpus-wide statistics and enriches the records.
package normalize

import (
	"context"
	"runtime"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/smart-financial-parser/internal/canonical"
	"github.com/dvloznov/smart-financial-parser/internal/classify"
	"github.com/dvloznov/smart-financial-parser/internal/domain"
	"github.com/dvloznov/smart-financial-parser/internal/logger"
	"github.com/dvloznov/smart-financial-parser/internal/reference"
)

// Converter converts an amount between two currency codes.
// Any error means the amount could not be converted; it never aborts normalization.
type Converter interface {
	Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error)
}

// Options tunes concurrency. Zero values pick defaults.
type Options struct {
	Workers               int // row classification workers, default runtime.NumCPU()
	ConversionConcurrency int // in-flight conversions, default 4
}

const defaultConversionConcurrency = 4

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.ConversionConcurrency <= 0 {
		o.ConversionConcurrency = defaultConversionConcurrency
	}
	return o
}

// Stats summarizes one Normalize call.
type Stats struct {
	RowsIn             int
	RowsDropped        int
	Records            int
	CurrencyBackfilled int
	BackfillCurrency   string // empty when no row had a currency
	Converted          int
	ConversionFailed   int
}

// Normalizer turns raw rows into records. It holds only read-only state and may be reused concurrently.
type Normalizer struct {
	ref        *reference.Table
	classifier *classify.Classifier
	canon      *canonical.Canonicalizer
	converter  Converter
	opts       Options
}

// New builds a Normalizer. converter may be nil, in which case no amounts are converted.
func New(ref *reference.Table, canon *canonical.Canonicalizer, converter Converter, opts Options) *Normalizer {
	return &Normalizer{
		ref:        ref,
		classifier: classify.New(ref),
		canon:      canon,
		converter:  converter,
		opts:       opts.withDefaults(),
	}
}

// Normalize classifies and merges every row, backfills missing currencies with the most
// frequent one, and converts amounts into the reference currency.
// Output order follows input order. The only error returned is context cancellation.
func (n *Normalizer) Normalize(ctx context.Context, rows [][]string) ([]*domain.Record, Stats, error) {
	log := logger.FromContext(ctx)
	stats := Stats{RowsIn: len(rows)}

	merged := make([]*domain.Record, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.opts.Workers)
	for i, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			merged[i] = n.mergeRow(i+1, row)
			return nil
		})
	}
	// Backfill needs every row's currency, so nothing below runs before all rows are merged.
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	records := make([]*domain.Record, 0, len(rows))
	for _, rec := range merged {
		if rec == nil {
			stats.RowsDropped++
			continue
		}
		records = append(records, rec)
	}
	stats.Records = len(records)

	stats.BackfillCurrency, stats.CurrencyBackfilled = backfillCurrency(records)

	if err := n.convert(ctx, records, &stats); err != nil {
		return nil, stats, err
	}

	log.Info().
		Int("rows_in", stats.RowsIn).
		Int("rows_dropped", stats.RowsDropped).
		Int("records", stats.Records).
		Int("currency_backfilled", stats.CurrencyBackfilled).
		Str("backfill_currency", stats.BackfillCurrency).
		Int("converted", stats.Converted).
		Int("conversion_failed", stats.ConversionFailed).
		Msg("Normalized table")

	return records, stats, nil
}
