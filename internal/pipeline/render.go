package pipeline

import (
	"context"
	"log/slog"

	"github.com/heimdex/heimdex-notes/internal/jobs"
	"github.com/heimdex/heimdex-notes/internal/render"
	"github.com/heimdex/heimdex-notes/internal/storage"
)

// RenderResult is a rendered notes document.
type RenderResult struct {
	Format    string
	Data      []byte
	LocalPath string
}

// Render produces the notes document from the summarized manifest.
func (p *Pipeline) Render(ctx context.Context, cfg RenderConfig) (*RenderResult, error) {
	var res *RenderResult
	err := p.withLock(cfg.JobID, func() error {
		var err error
		res, err = p.render(ctx, cfg)
		return err
	})
	return res, err
}

func (p *Pipeline) render(ctx context.Context, cfg RenderConfig) (*RenderResult, error) {
	format := cfg.Format
	if format == "" {
		format = render.FormatHTML
	}
	frames := cfg.Frames
	if frames.FrameBaseURL == "" && frames.FrameLocalDir == "" {
		frames.FrameLocalDir = p.workspace.Root
	}

	res := RenderResult{Format: format}
	err := p.runStage(ctx, cfg.JobID, StageRender, func(ctx context.Context, logger *slog.Logger) error {
		m, err := p.loadManifest(ctx, StageRender, cfg.Input, p.workspace.SummarizedFile(cfg.JobID), storage.SummarizedManifestBlob(cfg.JobID))
		if err != nil {
			return err
		}
		data, err := render.Render(m, format, frames)
		if err != nil {
			return err
		}
		res.Data = data

		res.LocalPath = cfg.Output
		if res.LocalPath == "" {
			res.LocalPath = p.workspace.OutputFile(cfg.JobID, format)
		}
		if err := writeLocal(res.LocalPath, data); err != nil {
			return err
		}
		logger.Info("notes rendered", "format", format, "path", res.LocalPath, "bytes", len(data))
		if cfg.SkipUpload {
			return nil
		}
		kind := jobs.ArtifactHTML
		if format == render.FormatMarkdown {
			kind = jobs.ArtifactMarkdown
		}
		return p.upload(ctx, cfg.JobID, kind, p.deps.Containers.Outputs, storage.OutputBlob(cfg.JobID, format), data)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
