// Package pipeline runs the notes stages for one job: acquire the video,
// index it remotely, fetch keyframes, align insights into segments,
// summarize them and render notes. Each stage can run alone from the CLI or
// all of them in order from Run, and every stage is serialized per job with
// a lock file in the job's workspace.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/heimdex/heimdex-notes/internal/events"
	"github.com/heimdex/heimdex-notes/internal/indexer"
	"github.com/heimdex/heimdex-notes/internal/insights"
	"github.com/heimdex/heimdex-notes/internal/jobs"
	"github.com/heimdex/heimdex-notes/internal/logging"
	"github.com/heimdex/heimdex-notes/internal/media"
	"github.com/heimdex/heimdex-notes/internal/services"
	"github.com/heimdex/heimdex-notes/internal/storage"
	"github.com/heimdex/heimdex-notes/internal/summarize"
)

// Stage names, used in logs, events and the job ledger.
const (
	StageAcquire   = "acquire"
	StageIndex     = "index"
	StageFrames    = "frames"
	StageAlign     = "align"
	StageSummarize = "summarize"
	StageRender    = "render"
)

// stageProgress is the job progress recorded when a stage finishes.
var stageProgress = map[string]int{
	StageAcquire:   10,
	StageIndex:     45,
	StageFrames:    60,
	StageAlign:     75,
	StageSummarize: 90,
	StageRender:    100,
}

// Acquirer fetches and trims the source video.
type Acquirer interface {
	Download(ctx context.Context, videoURL, target string) (media.RunResult, error)
	Trim(ctx context.Context, in, out string, opts media.TrimOptions) (media.RunResult, error)
}

// Indexer is the remote indexing service.
type Indexer interface {
	Submit(ctx context.Context, name, videoURL string) (string, error)
	Wait(ctx context.Context, videoID string, observe indexer.Observer) (*insights.Document, error)
	Thumbnail(ctx context.Context, videoID, thumbnailID string) ([]byte, error)
}

// Deps are the collaborators a Pipeline drives. Store is required; the
// others are checked by the stages that use them so a CLI invocation only
// needs credentials for the stage it runs.
type Deps struct {
	Store      storage.Store
	Containers storage.Containers
	Acquirer   Acquirer
	Indexer    Indexer
	Summarizer summarize.Summarizer
	Events     events.Publisher
	Ledger     jobs.Repository
	Logger     *slog.Logger
}

type Pipeline struct {
	deps      Deps
	workspace Workspace
	defaults  RunConfig
	logger    *slog.Logger
}

// New builds a pipeline rooted at workDir. defaults seeds RunJob; its job
// id and video URL are replaced per job.
func New(deps Deps, workDir string, defaults RunConfig) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "", "storage backend is required", nil)
	}
	if workDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "", "work directory is required", nil)
	}
	if deps.Containers == (storage.Containers{}) {
		deps.Containers = storage.DefaultContainers()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{
		deps:      deps,
		workspace: Workspace{Root: workDir},
		defaults:  defaults,
		logger:    logging.WithComponent(deps.Logger, "pipeline"),
	}, nil
}

func (p *Pipeline) Workspace() Workspace { return p.workspace }

// ErrJobLocked is returned when another process holds the job's lock.
var ErrJobLocked = errors.New("job is locked by another process")

// withLock runs fn while holding the job's lock file.
func (p *Pipeline) withLock(jobID string, fn func() error) error {
	if err := jobs.ValidateID(jobID); err != nil {
		return err
	}
	dir := p.workspace.JobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create job workspace: %w", err)
	}
	lock := flock.New(filepath.Join(dir, ".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire job lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobLocked, jobID)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			p.logger.Warn("failed to release job lock", "job_id", jobID, "error", err)
		}
	}()
	return fn()
}

// runStage wraps one stage with logging, events and ledger updates.
func (p *Pipeline) runStage(ctx context.Context, jobID, stage string, fn func(ctx context.Context, logger *slog.Logger) error) error {
	logger := logging.WithStage(logging.WithJobID(p.logger, jobID), stage)
	start := time.Now()
	logger.Info("stage started")
	p.emit(ctx, events.New(jobID, stage, events.StatusStarted, nil))
	p.recordStage(ctx, jobID, stage, -1)

	err := fn(ctx, logger)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		logger.Error("stage failed", "duration_ms", durationMs, "error", err)
		e := events.New(jobID, stage, events.StatusFailed, map[string]any{
			"duration_ms": durationMs,
			"retryable":   services.Retryable(err),
			"exit_code":   services.ExitCode(err),
		})
		e.Error = err.Error()
		p.emit(context.WithoutCancel(ctx), e)
		return err
	}

	logger.Info("stage finished", "duration_ms", durationMs)
	p.emit(ctx, events.New(jobID, stage, events.StatusSucceeded, map[string]any{"duration_ms": durationMs}))
	p.recordStage(ctx, jobID, stage, stageProgress[stage])
	return nil
}

func (p *Pipeline) emit(ctx context.Context, e events.Event) {
	events.Emit(ctx, p.deps.Events, p.logger, e)
}

// recordStage updates the ledger; a negative progress keeps the current one.
func (p *Pipeline) recordStage(ctx context.Context, jobID, stage string, progress int) {
	if p.deps.Ledger == nil {
		return
	}
	if progress < 0 {
		job, err := p.deps.Ledger.GetJob(ctx, jobID)
		if err != nil || job == nil {
			return
		}
		progress = job.Progress
	}
	if err := p.deps.Ledger.UpdateJobStage(ctx, jobID, stage, progress); err != nil {
		p.logger.Warn("failed to record stage", "job_id", jobID, "stage", stage, "error", err)
	}
}

func (p *Pipeline) recordArtifact(ctx context.Context, jobID, kind, container, name string) {
	if p.deps.Ledger == nil {
		return
	}
	err := p.deps.Ledger.RecordArtifact(ctx, &jobs.Artifact{JobID: jobID, Kind: kind, Container: container, Name: name})
	if err != nil {
		p.logger.Warn("failed to record artifact", "job_id", jobID, "kind", kind, "error", err)
	}
}

// upload stores data and records the artifact.
func (p *Pipeline) upload(ctx context.Context, jobID, kind, container, name string, data []byte) error {
	if err := p.deps.Store.EnsureContainer(ctx, container); err != nil {
		return err
	}
	if err := p.deps.Store.Put(ctx, container, name, data, storage.ContentType(name)); err != nil {
		return err
	}
	p.recordArtifact(ctx, jobID, kind, container, name)
	return nil
}

// writeLocal writes data to path, creating parent directories.
func writeLocal(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}
