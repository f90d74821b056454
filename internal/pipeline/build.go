package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/smart-financial-parser/internal/canonical"
	"github.com/dvloznov/smart-financial-parser/internal/config"
	"github.com/dvloznov/smart-financial-parser/internal/fx"
	"github.com/dvloznov/smart-financial-parser/internal/gcsuploader"
	"github.com/dvloznov/smart-financial-parser/internal/infra/bigquery"
	"github.com/dvloznov/smart-financial-parser/internal/infra/postgres"
	"github.com/dvloznov/smart-financial-parser/internal/logger"
	"github.com/dvloznov/smart-financial-parser/internal/normalize"
	"github.com/dvloznov/smart-financial-parser/internal/notionsync"
	"github.com/dvloznov/smart-financial-parser/internal/reference"
	"github.com/dvloznov/smart-financial-parser/internal/report"
)

// Resources owns the clients built from configuration. Close releases all of them.
type Resources struct {
	Deps    Deps
	closers []func() error
}

// Close releases every client in reverse creation order.
func (r *Resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// BuildDeps wires the pipeline collaborators from cfg. Storage is connected when
// needStorage is set, the input is a gs:// URI, or an upload prefix is configured.
// A missing report credential fails when reporting is enabled; a missing exchange-rate
// key only disables conversion.
func BuildDeps(ctx context.Context, cfg *config.Config, needStorage bool) (_ *Resources, err error) {
	log := logger.FromContext(ctx)

	if err := cfg.RequireSinkCredentials(); err != nil {
		return nil, fmt.Errorf("BuildDeps: %w", err)
	}

	res := &Resources{Deps: Deps{Sinks: make(map[string]Sink)}}
	defer func() {
		if err != nil {
			res.Close() //nolint:errcheck
		}
	}()

	var bq *bigquery.Repository
	if cfg.HasSink(config.SinkBigQuery) || cfg.Reference.BigQueryMerchants {
		bq, err = bigquery.NewRepository(ctx, cfg.GCP.ProjectID, cfg.GCP.Dataset)
		if err != nil {
			return nil, fmt.Errorf("BuildDeps: %w", err)
		}
		res.closers = append(res.closers, bq.Close)
	}

	if needStorage || gcsuploader.IsURI(cfg.Input.Path) || cfg.Output.UploadURI != "" {
		storage, err := gcsuploader.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("BuildDeps: %w", err)
		}
		res.closers = append(res.closers, storage.Close)
		res.Deps.Storage = storage
	}

	sources := reference.Sources{
		MerchantsPath:  cfg.Reference.MerchantsPath,
		CurrenciesPath: cfg.Reference.CurrenciesPath,
	}
	if cfg.Reference.BigQueryMerchants {
		sources.Merchants = bq
	}
	ref, err := reference.Load(ctx, sources)
	if err != nil {
		return nil, fmt.Errorf("BuildDeps: %w", err)
	}

	var converter normalize.Converter
	if cfg.FX.APIKey == "" {
		log.Warn().Msg("EXCHANGE_RATE_API_KEY is not set, amounts will not be converted")
		converter = fx.Unavailable{Reason: "EXCHANGE_RATE_API_KEY is not set"}
	} else {
		client, err := fx.NewExchangeRateClient(fx.Config{
			APIKey:     cfg.FX.APIKey,
			BaseURL:    cfg.FX.BaseURL,
			Timeout:    cfg.FX.Timeout,
			MaxRetries: cfg.FX.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("BuildDeps: %w", err)
		}
		converter = client
	}

	canon := canonical.New(ref.MerchantNames(), cfg.Matching.Threshold)
	res.Deps.Normalizer = normalize.New(ref, canon, converter, normalize.Options{
		Workers:               cfg.Normalize.Workers,
		ConversionConcurrency: cfg.Normalize.ConversionConcurrency,
	})

	if cfg.Report.Enabled {
		reporter, err := report.NewGeminiReporter(ctx, report.Config{
			APIKey:  cfg.Report.APIKey,
			Model:   cfg.Report.Model,
			MaxRows: cfg.Report.MaxRows,
		})
		if err != nil {
			return nil, fmt.Errorf("BuildDeps: %w", err)
		}
		res.Deps.Reporter = reporter
	}

	if cfg.HasSink(config.SinkBigQuery) {
		res.Deps.Tracker = bq
		res.Deps.Sinks[config.SinkBigQuery] = bq
	}

	if cfg.HasSink(config.SinkPostgres) {
		store, err := postgres.NewStore(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("BuildDeps: %w", err)
		}
		res.closers = append(res.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("BuildDeps: %w", err)
		}
		res.Deps.Sinks[config.SinkPostgres] = store
	}

	if cfg.HasSink(config.SinkNotion) {
		client := notionsync.NewNotionClient(cfg.Notion.Token)
		res.Deps.Sinks[config.SinkNotion] = notionsync.NewExporter(client, cfg.Notion.DatabaseID, false)
	}

	merchants, currencies := ref.Len()
	log.Info().
		Int("merchants", merchants).
		Int("currencies", currencies).
		Int("match_threshold", canon.Threshold()).
		Strs("sinks", cfg.Sinks).
		Bool("report", res.Deps.Reporter != nil).
		Msg("Pipeline dependencies ready")

	return res, nil
}
