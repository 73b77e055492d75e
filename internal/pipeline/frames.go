package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/heimdex/heimdex-notes/internal/align"
	"github.com/heimdex/heimdex-notes/internal/insights"
	"github.com/heimdex/heimdex-notes/internal/jobs"
	"github.com/heimdex/heimdex-notes/internal/services"
	"github.com/heimdex/heimdex-notes/internal/storage"
)

// FramesResult lists the frames written by the frames stage.
type FramesResult struct {
	Dir    string
	Frames align.FrameIndex
}

// Frames downloads one keyframe thumbnail per shot as {startMs}.jpg and
// uploads each to the frames container unless SkipUpload is set.
// Thumbnails are fetched sequentially and the first failure aborts the stage.
func (p *Pipeline) Frames(ctx context.Context, cfg FramesConfig) (*FramesResult, error) {
	var res *FramesResult
	err := p.withLock(cfg.JobID, func() error {
		var err error
		res, err = p.frames(ctx, cfg)
		return err
	})
	return res, err
}

func (p *Pipeline) frames(ctx context.Context, cfg FramesConfig) (*FramesResult, error) {
	if p.deps.Indexer == nil {
		return nil, services.Wrap(services.ErrConfiguration, StageFrames, "", "indexer is not configured", nil)
	}

	res := FramesResult{Frames: align.FrameIndex{}}
	err := p.runStage(ctx, cfg.JobID, StageFrames, func(ctx context.Context, logger *slog.Logger) error {
		doc, err := p.loadIndex(ctx, cfg.JobID, StageFrames, cfg.Index)
		if err != nil {
			return err
		}
		videoID := doc.VideoID()
		if videoID == "" {
			return services.Validation(StageFrames, "video id not found in index document")
		}

		res.Dir = cfg.OutputDir
		if res.Dir == "" {
			res.Dir = p.workspace.FramesDir(cfg.JobID)
		}

		keyframes := doc.Keyframes()
		logger.Info("fetching keyframes", "video_id", videoID, "count", len(keyframes))
		if !cfg.SkipUpload && len(keyframes) > 0 {
			if err := p.deps.Store.EnsureContainer(ctx, p.deps.Containers.Frames); err != nil {
				return err
			}
		}

		for _, kf := range keyframes {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := p.deps.Indexer.Thumbnail(ctx, videoID, kf.ThumbnailID)
			if err != nil {
				return err
			}
			local := filepath.Join(res.Dir, align.FrameName(kf.StartMs))
			if err := writeLocal(local, img); err != nil {
				return err
			}
			res.Frames[kf.StartMs] = local
			logger.Debug("frame saved", "start_ms", kf.StartMs, "thumbnail_id", kf.ThumbnailID)

			if cfg.SkipUpload {
				continue
			}
			blob := storage.FrameBlob(cfg.JobID, kf.StartMs)
			if err := p.deps.Store.Put(ctx, p.deps.Containers.Frames, blob, img, storage.ContentType(blob)); err != nil {
				return err
			}
		}
		if !cfg.SkipUpload && len(keyframes) > 0 {
			p.recordArtifact(ctx, cfg.JobID, jobs.ArtifactFrames, p.deps.Containers.Frames, storage.FramePrefix(cfg.JobID))
		}
		logger.Info("keyframes saved", "count", len(res.Frames), "dir", res.Dir)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (p *Pipeline) loadIndex(ctx context.Context, jobID, stage string, src IndexSource) (*insights.Document, error) {
	doc, err := p.indexSource(jobID, src).Load(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stage, "load index", "", err)
	}
	return doc, nil
}
