package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Processor runs every stage of one job. It reports stage progress through
// the repository itself; the runner only owns the status transitions.
type Processor interface {
	RunJob(ctx context.Context, job *Job) error
}

// Runner drains pending jobs one at a time.
type Runner struct {
	repo         Repository
	processor    Processor
	logger       *slog.Logger
	pollInterval time.Duration
	wake         chan struct{}
	running      atomic.Bool
	paused       atomic.Bool
}

func NewRunner(repo Repository, processor Processor, logger *slog.Logger) *Runner {
	return &Runner{
		repo:         repo,
		processor:    processor,
		logger:       logger,
		pollInterval: 5 * time.Second,
		wake:         make(chan struct{}, 1),
	}
}

// SetPollInterval overrides how often the runner checks for pending jobs.
func (r *Runner) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.pollInterval = d
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}
	defer r.running.Store(false)

	r.logger.Info("job runner started", "poll_interval", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			return
		case <-ticker.C:
		case <-r.wake:
		}
		if r.paused.Load() {
			continue
		}
		for r.ProcessNext(ctx) {
			if ctx.Err() != nil || r.paused.Load() {
				break
			}
		}
	}
}

// Notify asks a running loop to look for work without waiting for the
// next tick.
func (r *Runner) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
	r.Notify()
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// ProcessNext runs the oldest pending job and reports whether one was found.
func (r *Runner) ProcessNext(ctx context.Context) bool {
	pending, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return false
	}
	if len(pending) == 0 {
		return false
	}

	job := pending[0]
	logger := r.logger.With("job_id", job.ID)
	logger.Info("processing job")

	if err := r.repo.UpdateJobStatus(ctx, job.ID, StatusRunning, ""); err != nil {
		logger.Error("failed to mark job running", "error", err)
		return false
	}
	job.Status = StatusRunning

	if r.processor == nil {
		r.finish(ctx, logger, job.ID, StatusFailed, "pipeline not configured")
		return true
	}

	start := time.Now()
	if err := r.processor.RunJob(ctx, job); err != nil {
		logger.Error("job failed", "error", err, "duration", time.Since(start))
		r.finish(ctx, logger, job.ID, StatusFailed, truncateStr(err.Error(), 1024))
		return true
	}

	logger.Info("job completed", "duration", time.Since(start))
	r.finish(ctx, logger, job.ID, StatusCompleted, "")
	return true
}

// finish records the outcome even when ctx was cancelled mid-job.
func (r *Runner) finish(ctx context.Context, logger *slog.Logger, id, status, msg string) {
	ctx = context.WithoutCancel(ctx)
	if err := r.repo.UpdateJobStatus(ctx, id, status, msg); err != nil {
		logger.Error("failed to record job status", "status", status, "error", err)
	}
}

func (r *Runner) GetActiveJobCount(ctx context.Context) int {
	jobs, err := r.repo.ListJobs(ctx, 100)
	if err != nil {
		return 0
	}
	count := 0
	for _, j := range jobs {
		if j.Status == StatusRunning {
			count++
		}
	}
	return count
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
