package pipeline

import (
	"context"
	"log/slog"

	"github.com/heimdex/heimdex-notes/internal/jobs"
	"github.com/heimdex/heimdex-notes/internal/manifest"
	"github.com/heimdex/heimdex-notes/internal/services"
	"github.com/heimdex/heimdex-notes/internal/storage"
	"github.com/heimdex/heimdex-notes/internal/summarize"
)

// SummarizeResult is the manifest with a summary on every segment.
type SummarizeResult struct {
	Manifest  *manifest.Manifest
	LocalPath string
}

// Summarize adds a model summary to every segment of the job's manifest.
func (p *Pipeline) Summarize(ctx context.Context, cfg SummarizeConfig) (*SummarizeResult, error) {
	var res *SummarizeResult
	err := p.withLock(cfg.JobID, func() error {
		var err error
		res, err = p.summarize(ctx, cfg)
		return err
	})
	return res, err
}

func (p *Pipeline) summarize(ctx context.Context, cfg SummarizeConfig) (*SummarizeResult, error) {
	if p.deps.Summarizer == nil {
		return nil, services.Wrap(services.ErrConfiguration, StageSummarize, "", "summarizer is not configured", nil)
	}

	var res SummarizeResult
	err := p.runStage(ctx, cfg.JobID, StageSummarize, func(ctx context.Context, logger *slog.Logger) error {
		in, err := p.loadManifest(ctx, StageSummarize, cfg.Input, p.workspace.ManifestFile(cfg.JobID), storage.ManifestBlob(cfg.JobID))
		if err != nil {
			return err
		}

		out, err := summarize.SummarizeManifest(ctx, p.deps.Summarizer, in, logger)
		if err != nil {
			return services.Wrap(services.ErrRemoteCall, StageSummarize, "summarize", "", err)
		}
		res.Manifest = out

		data, err := out.Marshal()
		if err != nil {
			return err
		}
		res.LocalPath = cfg.Output
		if res.LocalPath == "" {
			res.LocalPath = p.workspace.SummarizedFile(cfg.JobID)
		}
		if err := writeLocal(res.LocalPath, data); err != nil {
			return err
		}
		if cfg.SkipUpload {
			return nil
		}
		return p.upload(ctx, cfg.JobID, jobs.ArtifactSummarized, p.deps.Containers.Manifests, storage.SummarizedManifestBlob(cfg.JobID), data)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// loadManifest reads a manifest from src, defaulting to localPath or, with
// FromStore, to blob in the manifests container.
func (p *Pipeline) loadManifest(ctx context.Context, stage string, src ManifestSource, localPath, blob string) (*manifest.Manifest, error) {
	if src.Path != "" {
		localPath = src.Path
	}
	if src.FromStore && src.Path == "" {
		data, err := p.deps.Store.Get(ctx, p.deps.Containers.Manifests, blob)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, stage, "load manifest", "", err)
		}
		m, err := manifest.Decode(data)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, stage, "load manifest", "", err)
		}
		return m, nil
	}
	m, err := manifest.Read(localPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stage, "load manifest", "", err)
	}
	return m, nil
}
