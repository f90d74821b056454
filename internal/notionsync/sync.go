// Package notionsync exports cleaned records into a Notion database, one page per record.
package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/smart-financial-parser/internal/domain"
	"github.com/dvloznov/smart-financial-parser/internal/logger"
)

const (
	// BatchSize defines the number of records processed between progress logs.
	BatchSize = 100

	queryPageSize = 100
)

// ExportResult counts what one export did.
type ExportResult struct {
	Created int
	Skipped int
	Failed  int
}

// Exporter writes records of a run to a Notion database.
type Exporter struct {
	service    NotionService
	databaseID string
	dryRun     bool
}

// NewExporter creates an Exporter. With dryRun set, pages are logged instead of created.
func NewExporter(service NotionService, databaseID string, dryRun bool) *Exporter {
	return &Exporter{service: service, databaseID: databaseID, dryRun: dryRun}
}

// InsertRecords satisfies the pipeline sink contract. It fails if any page could not be created.
func (e *Exporter) InsertRecords(ctx context.Context, runID string, records []*domain.Record) error {
	res, err := e.ExportRecords(ctx, runID, records)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("InsertRecords: %d of %d Notion pages failed", res.Failed, len(records))
	}
	return nil
}

// ExportRecords creates one page per record. Records whose Record Key already exists
// in the database are skipped, so re-running an export for the same run is idempotent.
// Individual page failures are logged and counted; query failures abort the export.
func (e *Exporter) ExportRecords(ctx context.Context, runID string, records []*domain.Record) (ExportResult, error) {
	log := logger.FromContext(ctx)
	var res ExportResult

	log.Info().
		Str("run_id", runID).
		Int("record_count", len(records)).
		Bool("dry_run", e.dryRun).
		Msg("Starting record export to Notion")

	existing, err := e.existingKeys(ctx, runID)
	if err != nil {
		return res, fmt.Errorf("ExportRecords: %w", err)
	}
	log.Info().Int("existing_pages", len(existing)).Msg("Retrieved existing Notion pages")

	for i := 0; i < len(records); i += BatchSize {
		end := min(i+BatchSize, len(records))
		log.Debug().
			Int("batch_start", i).
			Int("batch_end", end).
			Msg("Processing batch")

		for _, rec := range records[i:end] {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			key := RecordKey(runID, rec)
			if existing[key] {
				res.Skipped++
				continue
			}

			if e.dryRun {
				log.Info().Str("record_key", key).Msg("[DRY RUN] Would create Notion page")
				res.Created++
				continue
			}

			page, err := e.service.CreatePage(ctx, e.databaseID, RecordToNotionProperties(runID, rec))
			if err != nil {
				log.Warn().
					Err(err).
					Str("record_key", key).
					Msg("Failed to create Notion page")
				res.Failed++
				continue
			}
			log.Debug().
				Str("record_key", key).
				Str("page_id", string(page.ID)).
				Msg("Created Notion page")
			res.Created++
		}
	}

	log.Info().
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Int("total", len(records)).
		Msg("Record export completed")
	return res, nil
}

// existingKeys pages through every record of runID already in the database.
func (e *Exporter) existingKeys(ctx context.Context, runID string) (map[string]bool, error) {
	keys := make(map[string]bool)
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			Filter: &notionapi.PropertyFilter{
				Property: PropRunID,
				RichText: &notionapi.TextFilterCondition{Equals: runID},
			},
			PageSize: queryPageSize,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := e.service.QueryDatabase(ctx, e.databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("existingKeys: %w", err)
		}
		for _, page := range resp.Results {
			if key := extractRecordKey(page); key != "" {
				keys[key] = true
			}
		}

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return keys, nil
}
