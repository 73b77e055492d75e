package pipeline

import (
	"context"
	"log/slog"
	"path"

	"github.com/heimdex/heimdex-notes/internal/align"
	"github.com/heimdex/heimdex-notes/internal/insights"
	"github.com/heimdex/heimdex-notes/internal/jobs"
	"github.com/heimdex/heimdex-notes/internal/manifest"
	"github.com/heimdex/heimdex-notes/internal/storage"
)

// AlignResult is the manifest produced by the align stage.
type AlignResult struct {
	*align.Result
	Manifest  *manifest.Manifest
	LocalPath string
}

// Align turns the index document into a segment manifest.
func (p *Pipeline) Align(ctx context.Context, cfg AlignConfig) (*AlignResult, error) {
	var res *AlignResult
	err := p.withLock(cfg.JobID, func() error {
		var err error
		res, err = p.alignStage(ctx, cfg)
		return err
	})
	return res, err
}

func (p *Pipeline) alignStage(ctx context.Context, cfg AlignConfig) (*AlignResult, error) {
	var res AlignResult
	err := p.runStage(ctx, cfg.JobID, StageAlign, func(ctx context.Context, logger *slog.Logger) error {
		doc, err := p.loadIndex(ctx, cfg.JobID, StageAlign, cfg.Index)
		if err != nil {
			return err
		}

		resolver, err := p.frameResolver(ctx, cfg, doc.Shots())
		if err != nil {
			return err
		}
		logger.Info("frames indexed", "available", len(resolver.Available), "fallback", len(resolver.Fallback))

		aligned, err := align.NewAligner(logger, align.Options{
			IncludeTail: cfg.IncludeTail,
			DurationMs:  cfg.DurationMs,
		}).Align(doc, resolver)
		if err != nil {
			return err
		}
		res.Result = aligned

		m, err := manifest.Assemble(cfg.JobID, aligned.Segments)
		if err != nil {
			return err
		}
		res.Manifest = m

		data, err := m.Marshal()
		if err != nil {
			return err
		}
		res.LocalPath = cfg.Output
		if res.LocalPath == "" {
			res.LocalPath = p.workspace.ManifestFile(cfg.JobID)
		}
		if err := writeLocal(res.LocalPath, data); err != nil {
			return err
		}
		logger.Info("manifest written", "path", res.LocalPath, "segments", len(m.Segments))

		if cfg.SkipUpload {
			return nil
		}
		return p.upload(ctx, cfg.JobID, jobs.ArtifactManifest, p.deps.Containers.Manifests, storage.ManifestBlob(cfg.JobID), data)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// frameResolver builds the available frame index from disk or the frames
// container, with the conventional per-shot paths as fallback.
func (p *Pipeline) frameResolver(ctx context.Context, cfg AlignConfig, shots []insights.Shot) (align.FrameResolver, error) {
	starts := make([]int64, len(shots))
	for i, s := range shots {
		starts[i] = s.StartMs
	}
	resolver := align.FrameResolver{Fallback: align.ShotFrameFallback(cfg.JobID, starts)}

	if cfg.FramesFromStore {
		names, err := p.deps.Store.List(ctx, p.deps.Containers.Frames, storage.FramePrefix(cfg.JobID))
		if err != nil {
			return resolver, err
		}
		resolver.Available = align.FrameIndexFromNames(names, path.Clean(p.deps.Containers.Frames)+"/")
		return resolver, nil
	}

	dir := cfg.FramesDir
	if dir == "" {
		dir = p.workspace.FramesDir(cfg.JobID)
	}
	available, err := align.LoadFrameDir(dir)
	if err != nil {
		return resolver, err
	}
	resolver.Available = available
	return resolver, nil
}
