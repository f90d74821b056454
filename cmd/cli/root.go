package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/smart-financial-parser/internal/config"
	"github.com/dvloznov/smart-financial-parser/internal/logger"
	"github.com/dvloznov/smart-financial-parser/internal/pipeline"
)

const runTimeout = 10 * time.Minute

// topMerchants is how many merchants the summary lists.
const topMerchants = 5

type rootOptions struct {
	configPath string
	output     string
	noReport   bool
	sinks      []string
	upload     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "finparse [input]",
		Short: "Clean a messy transaction table",
		Long: `finparse reads a CSV or XLSX table of transactions, normalizes dates, merchants,
amounts and currencies, writes the cleaned table, prints an industry spend
summary and generates a short report.

The input may be a local path or a gs://bucket/object URI.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := loadConfig(cmd, opts)
			if len(args) == 1 {
				cfg.Input.Path = args[0]
			}
			runClean(cfg, log)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", config.DefaultPath, "Path to the YAML configuration file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	local := cmd.Flags()
	local.StringVarP(&opts.output, "output", "o", "", "Path of the cleaned table (.csv or .xlsx)")
	local.BoolVar(&opts.noReport, "no-report", false, "Skip report generation")
	local.StringSliceVar(&opts.sinks, "sink", nil, "Persist records to a sink: bigquery, postgres, notion (repeatable)")
	local.StringVar(&opts.upload, "upload", "", "gs:// prefix to upload the cleaned table and report to")

	cmd.AddCommand(newUploadCmd(opts), newInspectCmd(opts), newVersionCmd())
	return cmd
}

// loadConfig reads the configuration, applies command-line overrides and builds the logger.
// Errors are fatal.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, zerolog.Logger) {
	cfg, err := config.Load(opts.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Str("config", opts.configPath).Msg("Failed to load configuration")
	}

	if opts.output != "" {
		cfg.Output.Path = opts.output
	}
	if opts.noReport {
		cfg.Report.Enabled = false
	}
	if len(opts.sinks) > 0 {
		cfg.Sinks = append(cfg.Sinks, opts.sinks...)
	}
	if opts.upload != "" {
		cfg.Output.UploadURI = opts.upload
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}

	log := logger.NewWithOptions(logger.Options{
		Level:  cfg.Log.Level,
		Format: logger.Format(cfg.Log.Format),
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	return cfg, log
}

// commandContext returns a context carrying log that is cancelled on SIGINT/SIGTERM
// or after timeout.
func commandContext(log zerolog.Logger, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	ctx = logger.WithContext(ctx, log)
	return ctx, func() {
		cancel()
		stop()
	}
}

func runClean(cfg *config.Config, log zerolog.Logger) {
	ctx, cancel := commandContext(log, runTimeout)
	defer cancel()

	log.Info().
		Str("input", cfg.Input.Path).
		Str("output", cfg.Output.Path).
		Msg("Starting cleaning run")

	res, err := pipeline.BuildDeps(ctx, cfg, false)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer res.Close() //nolint:errcheck

	p := pipeline.NewCleaningPipeline(res.Deps, pipeline.Options{
		HasHeader:    cfg.Input.HasHeader,
		ReportPath:   cfg.Output.ReportPath,
		UploadPrefix: cfg.Output.UploadURI,
		SummaryOut:   os.Stdout,
		TopMerchants: topMerchants,
	})

	state := &pipeline.PipelineState{
		Source:     cfg.Input.Path,
		OutputPath: cfg.Output.Path,
	}
	if err := p.Execute(ctx, state); err != nil {
		res.Close() //nolint:errcheck
		log.Fatal().Err(err).Msg("Cleaning failed")
	}

	if state.Report != "" && cfg.Output.ReportPath == "" {
		fmt.Println()
		fmt.Println("=== Report ===")
		fmt.Println(state.Report)
	}

	log.Info().
		Str("run_id", state.RunID).
		Int("rows_in", state.Stats.RowsIn).
		Int("records", len(state.Records)).
		Int("conversion_failed", state.Stats.ConversionFailed).
		Str("output", cfg.Output.Path).
		Strs("uploaded", state.Uploaded).
		Msg("Cleaning completed")
}
