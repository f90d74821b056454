package normalize

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/smart-financial-parser/internal/domain"
	"github.com/dvloznov/smart-financial-parser/internal/logger"
)

// convert fills AmountInReference for records with both an amount and a currency.
// A failed conversion leaves the field empty and is logged.
func (n *Normalizer) convert(ctx context.Context, records []*domain.Record, stats *Stats) error {
	if n.converter == nil {
		return nil
	}
	log := logger.FromContext(ctx)

	var converted, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.opts.ConversionConcurrency)
	for _, rec := range records {
		amount, hasAmount := rec.Amount.Get()
		currency, hasCurrency := rec.Currency.Get()
		if !hasAmount || !hasCurrency {
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := n.converter.Convert(gctx, currency, domain.ReferenceCurrency, amount)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				log.Warn().
					Err(err).
					Int("row", rec.Row).
					Str("from", currency).
					Str("to", domain.ReferenceCurrency).
					Msg("Currency conversion failed, leaving converted amount empty")
				return nil
			}
			rec.AmountInReference.Set(v)
			converted.Add(1)
			return nil
		})
	}

	err := g.Wait()
	stats.Converted = int(converted.Load())
	stats.ConversionFailed = int(failed.Load())
	return err
}
