package pipeline

import (
	"context"

	"github.com/heimdex/heimdex-notes/internal/jobs"
	"github.com/heimdex/heimdex-notes/internal/services"
)

// RunResult collects the outputs of a full run.
type RunResult struct {
	Acquire   *AcquireResult
	Index     *IndexResult
	Frames    *FramesResult
	Align     *AlignResult
	Summarize *SummarizeResult
	Render    *RenderResult
}

// Run executes every stage in order under one job lock. Later stages read
// what earlier ones wrote to the workspace; the first failure stops the run.
func (p *Pipeline) Run(ctx context.Context, cfg RunConfig) (*RunResult, error) {
	jobID := cfg.Index.JobID
	var res RunResult
	err := p.withLock(jobID, func() error {
		if !cfg.SkipAcquire {
			acq, err := p.acquire(ctx, cfg.Acquire)
			if err != nil {
				return err
			}
			res.Acquire = acq
			if cfg.Index.VideoURL == "" {
				cfg.Index.VideoURL = acq.ReadURL
			}
		}
		if cfg.Index.VideoURL == "" && cfg.Acquire.SkipUpload {
			return services.Validation(StageIndex, "no readable video url: acquire upload was skipped")
		}

		var err error
		if res.Index, err = p.index(ctx, cfg.Index); err != nil {
			return err
		}
		if res.Frames, err = p.frames(ctx, cfg.Frames); err != nil {
			return err
		}
		if cfg.Align.FramesDir == "" && !cfg.Align.FramesFromStore {
			cfg.Align.FramesDir = res.Frames.Dir
		}
		if res.Align, err = p.alignStage(ctx, cfg.Align); err != nil {
			return err
		}
		if cfg.Summarize.Input.Path == "" && !cfg.Summarize.Input.FromStore {
			cfg.Summarize.Input.Path = res.Align.LocalPath
		}
		if res.Summarize, err = p.summarize(ctx, cfg.Summarize); err != nil {
			return err
		}
		if cfg.Render.Input.Path == "" && !cfg.Render.Input.FromStore {
			cfg.Render.Input.Path = res.Summarize.LocalPath
		}
		res.Render, err = p.render(ctx, cfg.Render)
		return err
	})
	if err != nil {
		return &res, err
	}
	return &res, nil
}

// RunJob runs every stage for a ledger job with the pipeline's defaults.
// It satisfies jobs.Processor.
func (p *Pipeline) RunJob(ctx context.Context, job *jobs.Job) error {
	cfg := p.defaults.ForJob(job.ID, job.VideoURL)
	if cfg.Index.Name == "" {
		cfg.Index.Name = jobs.DisplayName(job, 80)
	}
	_, err := p.Run(ctx, cfg)
	return err
}
