package config

import (
	"errors"
	"fmt"

	"github.com/heimdex/heimdex-notes/internal/render"
)

// Validate checks structural values. Credentials are checked by each
// stage so commands that never reach a remote service run without them.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateIndexer(); err != nil {
		return err
	}
	if err := c.validateSummarize(); err != nil {
		return err
	}
	if err := c.validateAcquire(); err != nil {
		return err
	}
	if !render.ValidFormat(c.Render.Format) {
		return fmt.Errorf("render.format must be html or md, got %q", c.Render.Format)
	}
	if c.Runner.PollIntervalSeconds <= 0 {
		return errors.New("runner.poll_interval_seconds must be positive")
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console or json, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "azure", "dir":
	default:
		return fmt.Errorf("storage.backend must be azure or dir, got %q", c.Storage.Backend)
	}
	switch c.Storage.AuthMode {
	case "key", "aad":
	default:
		return fmt.Errorf("storage.auth_mode must be key or aad, got %q", c.Storage.AuthMode)
	}
	if c.Storage.SASTTLHours <= 0 {
		return errors.New("storage.sas_ttl_hours must be positive")
	}
	if c.Storage.UploadConcurrency <= 0 {
		return errors.New("storage.upload_concurrency must be positive")
	}
	return nil
}

func (c *Config) validateIndexer() error {
	if c.Indexer.PollIntervalSeconds <= 0 {
		return errors.New("indexer.poll_interval_seconds must be positive")
	}
	if c.Indexer.PollTimeoutSeconds < 0 {
		return errors.New("indexer.poll_timeout_seconds must not be negative (0 disables the timeout)")
	}
	if c.Indexer.TokenTTLSeconds <= 0 {
		return errors.New("indexer.token_ttl_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSummarize() error {
	switch c.Summarize.Provider {
	case "azure", "openai", "mock":
	default:
		return fmt.Errorf("summarize.provider must be azure, openai or mock, got %q", c.Summarize.Provider)
	}
	if c.Summarize.MaxTokens <= 0 {
		return errors.New("summarize.max_tokens must be positive")
	}
	if c.Summarize.Temperature < 0 || c.Summarize.Temperature > 2 {
		return errors.New("summarize.temperature must be between 0 and 2")
	}
	return nil
}

func (c *Config) validateAcquire() error {
	if c.Acquire.MaxWidth <= 0 {
		return errors.New("acquire.max_width must be positive")
	}
	if c.Acquire.CRF < 0 || c.Acquire.CRF > 51 {
		return errors.New("acquire.crf must be between 0 and 51")
	}
	if c.Acquire.Trim && c.Acquire.TrimDuration == "" {
		return errors.New("acquire.trim_duration is required when acquire.trim is enabled")
	}
	return nil
}
