package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/smart-financial-parser/internal/config"
	"github.com/dvloznov/smart-financial-parser/internal/infra/bigquery"
	"github.com/dvloznov/smart-financial-parser/internal/logger"
	"github.com/dvloznov/smart-financial-parser/internal/notionsync"
)

// sync-notion exports the records of a cleaning run stored in BigQuery to Notion.
// Pages already present for the run are skipped, so it can be re-run safely.
func main() {
	log := logger.New()

	configPath := flag.String("config", config.DefaultPath, "Path to the YAML configuration file")
	runID := flag.String("run-id", "", "Cleaning run ID to export (required)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	if *runID == "" {
		log.Fatal().Msg("Error: --run-id is required")
	}

	cfg, err := config.Load(*configPath, false)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Notion.Token == "" || cfg.Notion.DatabaseID == "" {
		log.Fatal().Msg("Error: NOTION_TOKEN and NOTION_DATABASE_ID are required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("run_id", *runID).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	repo, err := bigquery.NewRepository(ctx, cfg.GCP.ProjectID, cfg.GCP.Dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	defer repo.Close()

	records, err := repo.ListRunRecords(ctx, *runID)
	if err != nil {
		repo.Close()
		log.Fatal().Err(err).Msg("Failed to load run records")
	}

	exporter := notionsync.NewExporter(notionsync.NewNotionClient(cfg.Notion.Token), cfg.Notion.DatabaseID, *dryRun)
	result, err := exporter.ExportRecords(ctx, *runID, records)
	if err != nil {
		repo.Close()
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d skipped, %d failed.\n", result.Created, result.Skipped, result.Failed)
}
