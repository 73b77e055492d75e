package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeProcessor struct {
	calls atomic.Int32
	order []string
	fn    func(ctx context.Context, job *Job) error
}

func (f *fakeProcessor) RunJob(ctx context.Context, job *Job) error {
	f.calls.Add(1)
	f.order = append(f.order, job.ID)
	if f.fn != nil {
		return f.fn(ctx, job)
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestProcessNextRunsOldestFirst(t *testing.T) {
	repo := setupRepo(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	createJob(t, repo, "second", base.Add(time.Minute))
	createJob(t, repo, "first", base)

	proc := &fakeProcessor{}
	runner := NewRunner(repo, proc, testLogger())
	ctx := context.Background()

	for runner.ProcessNext(ctx) {
	}

	if got := strings.Join(proc.order, ","); got != "first,second" {
		t.Errorf("processing order = %s, want first,second", got)
	}
	for _, id := range []string{"first", "second"} {
		job, _ := repo.GetJob(ctx, id)
		if job.Status != StatusCompleted {
			t.Errorf("job %s status = %s, want completed", id, job.Status)
		}
	}
}

func TestProcessNextRecordsFailure(t *testing.T) {
	repo := setupRepo(t)
	createJob(t, repo, "job-1", time.Now())

	proc := &fakeProcessor{fn: func(ctx context.Context, job *Job) error {
		if job.Status != StatusRunning {
			t.Errorf("processor saw status %s, want running", job.Status)
		}
		return errors.New("indexing failure: Failed")
	}}
	runner := NewRunner(repo, proc, testLogger())

	if !runner.ProcessNext(context.Background()) {
		t.Fatal("ProcessNext() found no job")
	}

	job, _ := repo.GetJob(context.Background(), "job-1")
	if job.Status != StatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if job.Error != "indexing failure: Failed" {
		t.Errorf("error = %q", job.Error)
	}
	if runner.ProcessNext(context.Background()) {
		t.Error("failed job must not be picked up again")
	}
}

func TestProcessNextWithoutProcessor(t *testing.T) {
	repo := setupRepo(t)
	createJob(t, repo, "job-1", time.Now())

	runner := NewRunner(repo, nil, testLogger())
	runner.ProcessNext(context.Background())

	job, _ := repo.GetJob(context.Background(), "job-1")
	if job.Status != StatusFailed || job.Error != "pipeline not configured" {
		t.Errorf("job = %s/%q", job.Status, job.Error)
	}
}

func TestStartProcessesOnNotify(t *testing.T) {
	repo := setupRepo(t)
	done := make(chan struct{})
	proc := &fakeProcessor{fn: func(ctx context.Context, job *Job) error {
		close(done)
		return nil
	}}
	runner := NewRunner(repo, proc, testLogger())
	runner.SetPollInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Start(ctx)

	createJob(t, repo, "job-1", time.Now())
	runner.Notify()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not pick up job after Notify")
	}
}

func TestPauseSkipsWork(t *testing.T) {
	repo := setupRepo(t)
	createJob(t, repo, "job-1", time.Now())
	proc := &fakeProcessor{}
	runner := NewRunner(repo, proc, testLogger())
	runner.SetPollInterval(10 * time.Millisecond)
	runner.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	runner.Start(ctx)

	if proc.calls.Load() != 0 {
		t.Errorf("processor called %d times while paused", proc.calls.Load())
	}
	if !runner.IsPaused() || runner.IsRunning() {
		t.Error("runner should be paused and stopped")
	}
}
