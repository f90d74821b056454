package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/smart-financial-parser/internal/logger"
	"github.com/dvloznov/smart-financial-parser/internal/pipeline"
)

// NewCleanFileHandler returns a JobHandler that runs uploaded tables through the cleaning
// pipeline and stores the cleaned CSV and report in results.
func NewCleanFileHandler(p *pipeline.Pipeline, results ResultStore) JobHandler {
	return func(ctx context.Context, job Job) error {
		cleanJob, ok := job.(*CleanFileJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", cleanJob.JobID).
			Str("filename", cleanJob.Filename).
			Logger()
		ctx = logger.WithContext(ctx, log)

		log.Info().Int("bytes", len(cleanJob.Input)).Msg("Processing clean job")

		state := &pipeline.PipelineState{
			Source:    "upload:" + cleanJob.Filename,
			InputName: cleanJob.Filename,
			Input:     cleanJob.Input,
		}
		if err := p.Execute(ctx, state); err != nil {
			return err
		}

		if err := results.SaveResult(ctx, cleanJob.JobID, &Result{
			RunID:  state.RunID,
			Output: state.Output,
			Report: state.Report,
		}); err != nil {
			return fmt.Errorf("save result: %w", err)
		}

		cleanJob.RunID = state.RunID
		cleanJob.Records = len(state.Records)

		log.Info().
			Str("run_id", state.RunID).
			Int("records", len(state.Records)).
			Msg("Clean job completed")
		return nil
	}
}
