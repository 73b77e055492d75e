package pipeline

import (
	"context"
	"log/slog"

	"github.com/heimdex/heimdex-notes/internal/events"
	"github.com/heimdex/heimdex-notes/internal/indexer"
	"github.com/heimdex/heimdex-notes/internal/insights"
	"github.com/heimdex/heimdex-notes/internal/jobs"
	"github.com/heimdex/heimdex-notes/internal/services"
	"github.com/heimdex/heimdex-notes/internal/storage"
)

// IndexResult is the processed index of a job's video.
type IndexResult struct {
	VideoID   string
	Document  *insights.Document
	LocalPath string
}

// Index submits the video to the indexer, waits for processing and stores
// the raw index document locally and in the video-indexer container.
func (p *Pipeline) Index(ctx context.Context, cfg IndexConfig) (*IndexResult, error) {
	var res *IndexResult
	err := p.withLock(cfg.JobID, func() error {
		var err error
		res, err = p.index(ctx, cfg)
		return err
	})
	return res, err
}

func (p *Pipeline) index(ctx context.Context, cfg IndexConfig) (*IndexResult, error) {
	if p.deps.Indexer == nil {
		return nil, services.Wrap(services.ErrConfiguration, StageIndex, "", "indexer is not configured", nil)
	}

	var res IndexResult
	err := p.runStage(ctx, cfg.JobID, StageIndex, func(ctx context.Context, logger *slog.Logger) error {
		videoURL := cfg.VideoURL
		if videoURL == "" {
			var err error
			videoURL, err = p.deps.Store.ReadURL(ctx, p.deps.Containers.Raw, storage.RawVideoBlob(cfg.JobID), cfg.SASTTL)
			if err != nil {
				return err
			}
		}
		name := cfg.Name
		if name == "" {
			name = cfg.JobID
		}

		videoID, err := p.deps.Indexer.Submit(ctx, name, videoURL)
		if err != nil {
			return err
		}
		res.VideoID = videoID
		logger.Info("video submitted", "video_id", videoID)
		p.recordIndexer(ctx, cfg.JobID, videoID, string(indexer.StateSubmitted))

		doc, err := p.deps.Indexer.Wait(ctx, videoID, func(ev indexer.PollEvent) {
			p.recordIndexer(ctx, cfg.JobID, "", ev.Remote)
			p.emit(ctx, events.New(cfg.JobID, StageIndex, events.StatusProgress, map[string]any{
				"video_id":     ev.VideoID,
				"poll":         ev.Poll,
				"remote_state": ev.Remote,
				"state":        string(ev.State),
				"elapsed_s":    int(ev.Elapsed.Seconds()),
			}))
		})
		if err != nil {
			return err
		}
		res.Document = doc

		res.LocalPath = p.workspace.IndexFile(cfg.JobID)
		if err := writeLocal(res.LocalPath, doc.Raw); err != nil {
			return err
		}
		if cfg.SkipUpload {
			return nil
		}
		return p.upload(ctx, cfg.JobID, jobs.ArtifactIndex, p.deps.Containers.VI, storage.IndexBlob(cfg.JobID), doc.Raw)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (p *Pipeline) recordIndexer(ctx context.Context, jobID, videoID, state string) {
	if p.deps.Ledger == nil {
		return
	}
	if err := p.deps.Ledger.UpdateJobIndexer(ctx, jobID, videoID, state); err != nil {
		p.logger.Warn("failed to record indexer state", "job_id", jobID, "error", err)
	}
}

// indexSource resolves where a stage reads the index document from.
func (p *Pipeline) indexSource(jobID string, src IndexSource) insights.Source {
	switch {
	case src.Path != "":
		return insights.FileSource{Path: src.Path}
	case src.FromStore:
		return insights.BlobSource{Store: p.deps.Store, Container: p.deps.Containers.VI, Name: storage.IndexBlob(jobID)}
	default:
		return insights.FileSource{Path: p.workspace.IndexFile(jobID)}
	}
}
