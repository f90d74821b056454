// Package pipeline runs a messy input table through cleaning, reporting and persistence
// as a sequence of steps shared by the CLI and the API worker.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/dvloznov/smart-financial-parser/internal/logger"
	"github.com/dvloznov/smart-financial-parser/internal/report"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps     []PipelineStep
	onFailure func(ctx context.Context, state *PipelineState, err error)
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// OnFailure registers a hook called once with the wrapped error when a step fails.
func (p *Pipeline) OnFailure(fn func(ctx context.Context, state *PipelineState, err error)) *Pipeline {
	p.onFailure = fn
	return p
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return p.fail(ctx, state, fmt.Errorf("pipeline step %d failed: %w", i+1, err))
		}
		if err := step.Execute(ctx, state); err != nil {
			return p.fail(ctx, state, fmt.Errorf("pipeline step %d failed: %w", i+1, err))
		}
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, state *PipelineState, err error) error {
	if p.onFailure != nil {
		p.onFailure(ctx, state, err)
	}
	return err
}

// Deps are the collaborators of the cleaning pipeline. Only Normalizer is required.
type Deps struct {
	Normalizer RecordNormalizer
	Storage    StorageService
	Reporter   report.Reporter
	Tracker    RunTracker
	Sinks      map[string]Sink
}

// Options configures the cleaning pipeline.
type Options struct {
	HasHeader    bool
	ReportPath   string
	UploadPrefix string
	SummaryOut   io.Writer
	TopMerchants int
}

// NewCleaningPipeline creates the standard cleaning pipeline:
// start run, load, read, normalize, write, summarize, report, persist, upload, mark success.
// A failure after the run started marks it FAILED through deps.Tracker.
func NewCleaningPipeline(deps Deps, opts Options) *Pipeline {
	p := NewPipeline(
		&StartRunStep{Tracker: deps.Tracker},
		&LoadInputStep{Storage: deps.Storage},
		&ReadTableStep{HasHeader: opts.HasHeader},
		&NormalizeStep{Normalizer: deps.Normalizer},
		&WriteOutputStep{},
		&SummarizeStep{Out: opts.SummaryOut, TopMerchants: opts.TopMerchants},
		&ReportStep{Reporter: deps.Reporter, Path: opts.ReportPath},
		&PersistStep{Sinks: deps.Sinks},
		&UploadStep{Storage: deps.Storage, Prefix: opts.UploadPrefix},
		&MarkSuccessStep{Tracker: deps.Tracker},
	)

	return p.OnFailure(func(ctx context.Context, state *PipelineState, err error) {
		log := logger.FromContext(ctx)
		log.Error().
			Err(err).
			Str("run_id", state.RunID).
			Str("source", state.Source).
			Msg("Cleaning run failed")
		if deps.Tracker != nil && state.RunID != "" {
			deps.Tracker.MarkCleaningRunFailed(ctx, state.RunID, err)
		}
	})
}
