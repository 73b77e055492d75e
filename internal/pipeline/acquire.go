package pipeline

import (
	"context"
	"log/slog"

	"github.com/heimdex/heimdex-notes/internal/jobs"
	"github.com/heimdex/heimdex-notes/internal/logging"
	"github.com/heimdex/heimdex-notes/internal/services"
	"github.com/heimdex/heimdex-notes/internal/storage"
)

// AcquireResult describes the prepared video.
type AcquireResult struct {
	LocalPath string
	Container string
	Blob      string
	// ReadURL is readable by the indexer; empty when upload was skipped.
	ReadURL string
}

// Acquire downloads the video, trims it and uploads it to the raw container.
func (p *Pipeline) Acquire(ctx context.Context, cfg AcquireConfig) (*AcquireResult, error) {
	var res *AcquireResult
	err := p.withLock(cfg.JobID, func() error {
		var err error
		res, err = p.acquire(ctx, cfg)
		return err
	})
	return res, err
}

func (p *Pipeline) acquire(ctx context.Context, cfg AcquireConfig) (*AcquireResult, error) {
	if err := jobs.ValidateVideoURL(cfg.VideoURL); err != nil {
		return nil, err
	}
	if p.deps.Acquirer == nil {
		return nil, services.Wrap(services.ErrConfiguration, StageAcquire, "", "media tools are not configured", nil)
	}

	var res AcquireResult
	err := p.runStage(ctx, cfg.JobID, StageAcquire, func(ctx context.Context, logger *slog.Logger) error {
		source := p.workspace.SourceVideo(cfg.JobID)
		logger.Info("downloading video", "url", logging.SanitizeURL(cfg.VideoURL))
		dl, err := p.deps.Acquirer.Download(ctx, cfg.VideoURL, source)
		if err != nil {
			return err
		}
		logger.Info("download complete", "duration", dl.Duration)

		res.LocalPath = source
		if !cfg.SkipTrim {
			trimmed := p.workspace.TrimmedVideo(cfg.JobID)
			tr, err := p.deps.Acquirer.Trim(ctx, source, trimmed, cfg.Trim)
			if err != nil {
				return err
			}
			logger.Info("trim complete", "duration", tr.Duration, "limit", cfg.Trim.Duration)
			res.LocalPath = trimmed
		}

		if cfg.SkipUpload {
			logger.Info("upload skipped")
			return nil
		}

		res.Container = p.deps.Containers.Raw
		res.Blob = storage.RawVideoBlob(cfg.JobID)
		if err := p.deps.Store.EnsureContainer(ctx, res.Container); err != nil {
			return err
		}
		if err := p.deps.Store.PutFile(ctx, res.Container, res.Blob, res.LocalPath); err != nil {
			return err
		}
		p.recordArtifact(ctx, cfg.JobID, jobs.ArtifactRawVideo, res.Container, res.Blob)

		readURL, err := p.deps.Store.ReadURL(ctx, res.Container, res.Blob, cfg.SASTTL)
		if err != nil {
			return err
		}
		res.ReadURL = readURL
		logger.Info("video uploaded", "container", res.Container, "blob", res.Blob)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
