package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-notes/internal/jobs"
	"github.com/heimdex/heimdex-notes/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags stageFlags
	var videoURL, format string
	var skipTrim, skipAcquire, includeTail bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage from download to rendered notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			jobID, err := resolveJobID(flags.jobID, cfg, true)
			if err != nil {
				return err
			}
			url := resolveVideoURL(videoURL, cfg)
			if err := jobs.ValidateVideoURL(url); err != nil {
				return err
			}
			s, err := ctx.openSession(stageNeeds{Store: true, Indexer: true, Summarizer: true, Ledger: true})
			if err != nil {
				return err
			}
			defer s.Close()

			rc := runConfig(cfg, "", "")
			rc.SkipAcquire = skipAcquire
			rc.Acquire.SkipTrim = rc.Acquire.SkipTrim || skipTrim
			rc.Align.IncludeTail = rc.Align.IncludeTail || includeTail
			if format != "" {
				rc.Render.Format = format
			}
			rc = rc.ForJob(jobID, url)
			for _, skip := range []*bool{&rc.Acquire.SkipUpload, &rc.Index.SkipUpload, &rc.Frames.SkipUpload, &rc.Align.SkipUpload, &rc.Summarize.SkipUpload, &rc.Render.SkipUpload} {
				*skip = flags.skipUpload
			}

			logger := ctx.log().With("job_id", jobID)
			if err := beginLedgerJob(cmd.Context(), s.Repo, jobID, url); err != nil {
				return err
			}
			res, runErr := s.Pipeline.Run(cmd.Context(), rc)
			finishLedgerJob(s.Repo, logger, jobID, runErr)
			if runErr != nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "job:      %s\n", jobID)
			fmt.Fprintf(out, "video id: %s\n", res.Index.VideoID)
			fmt.Fprintf(out, "segments: %d\n", len(res.Summarize.Manifest.Segments))
			fmt.Fprintf(out, "notes:    %s\n", res.Render.LocalPath)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&videoURL, "video-url", "", "Source video URL (defaults to VIDEO_URL)")
	cmd.Flags().BoolVar(&skipTrim, "skip-trim", false, "Upload the full download without trimming")
	cmd.Flags().BoolVar(&skipAcquire, "skip-acquire", false, "Index --video-url directly without downloading")
	cmd.Flags().BoolVar(&includeTail, "include-tail", false, "Emit a closing segment up to the video duration")
	cmd.Flags().StringVar(&format, "format", "", "Output format: html or md")
	return cmd
}

// beginLedgerJob records a foreground run as a running job so `notes jobs`
// and the API see it. A background runner only picks up pending jobs.
func beginLedgerJob(ctx context.Context, repo jobs.Repository, jobID, videoURL string) error {
	existing, err := repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Status == jobs.StatusRunning {
			return fmt.Errorf("%w: %s", pipeline.ErrJobLocked, jobID)
		}
		return repo.UpdateJobStatus(ctx, jobID, jobs.StatusRunning, "")
	}
	now := time.Now()
	return repo.CreateJob(ctx, &jobs.Job{
		ID:        jobID,
		VideoURL:  videoURL,
		Status:    jobs.StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func finishLedgerJob(repo jobs.Repository, logger *slog.Logger, jobID string, runErr error) {
	status, msg := jobs.StatusCompleted, ""
	if runErr != nil {
		status, msg = jobs.StatusFailed, truncate(runErr.Error(), 1024)
	}
	if err := repo.UpdateJobStatus(context.Background(), jobID, status, msg); err != nil {
		logger.Warn("failed to record job result", "status", status, "error", err)
	}
}
