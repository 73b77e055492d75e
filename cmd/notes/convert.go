package main

import (
	"strings"
	"time"

	"github.com/heimdex/heimdex-notes/internal/config"
	"github.com/heimdex/heimdex-notes/internal/jobs"
	"github.com/heimdex/heimdex-notes/internal/pipeline"
	"github.com/heimdex/heimdex-notes/internal/services"
)

// runConfig converts the loaded configuration into one config per stage.
func runConfig(cfg *config.Config, jobID, videoURL string) pipeline.RunConfig {
	sasTTL := time.Duration(cfg.Storage.SASTTLHours) * time.Hour
	rc := pipeline.RunConfig{
		Acquire: pipeline.AcquireConfig{
			Trim:     cfg.TrimOptions(),
			SkipTrim: !cfg.Acquire.Trim,
			SASTTL:   sasTTL,
		},
		Index: pipeline.IndexConfig{
			SASTTL: sasTTL,
		},
		Align: pipeline.AlignConfig{
			IncludeTail: cfg.Align.IncludeTail,
		},
		Render: pipeline.RenderConfig{
			Format: cfg.Render.Format,
			Frames: cfg.FrameOptions(),
		},
	}
	return rc.ForJob(jobID, videoURL)
}

// resolveJobID picks the job id from the flag, then the config. When
// generate is set a missing id becomes a fresh UUID.
func resolveJobID(flagValue string, cfg *config.Config, generate bool) (string, error) {
	id := strings.TrimSpace(flagValue)
	if id == "" {
		id = cfg.Job.ID
	}
	if id == "" {
		if !generate {
			return "", services.Validation("cli", "job id is required (--job-id or JOB_ID)")
		}
		id = jobs.NewID()
	}
	if err := jobs.ValidateID(id); err != nil {
		return "", err
	}
	return id, nil
}

func resolveVideoURL(flagValue string, cfg *config.Config) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	return cfg.Job.VideoURL
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
