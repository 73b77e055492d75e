package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// envOverrides maps environment variables onto config fields. A set
// variable wins over the file, even when empty values would be rejected
// later by per-stage validation.
func (c *Config) envOverrides() map[string]*string {
	return map[string]*string{
		"JOB_ID":                            &c.Job.ID,
		"VIDEO_URL":                         &c.Job.VideoURL,
		"VIDEO_INDEXER_ACCOUNT_ID":          &c.Indexer.AccountID,
		"VIDEO_INDEXER_LOCATION":            &c.Indexer.Location,
		"VIDEO_INDEXER_SUBSCRIPTION_KEY":    &c.Indexer.SubscriptionKey,
		"VIDEO_INDEXER_API_BASE":            &c.Indexer.APIBase,
		"AZURE_STORAGE_CONNECTION_STRING":   &c.Storage.ConnectionString,
		"AZURE_STORAGE_ACCOUNT":             &c.Storage.Account,
		"AZURE_STORAGE_AUTH_MODE":           &c.Storage.AuthMode,
		"AZURE_STORAGE_CONTAINER_RAW":       &c.Storage.Containers.Raw,
		"AZURE_STORAGE_CONTAINER_VI":        &c.Storage.Containers.VI,
		"AZURE_STORAGE_CONTAINER_FRAMES":    &c.Storage.Containers.Frames,
		"AZURE_STORAGE_CONTAINER_MANIFESTS": &c.Storage.Containers.Manifests,
		"AZURE_STORAGE_CONTAINER_OUTPUTS":   &c.Storage.Containers.Outputs,
		"OPENAI_ENDPOINT":                   &c.Summarize.Endpoint,
		"OPENAI_API_KEY":                    &c.Summarize.APIKey,
		"OPENAI_DEPLOYMENT":                 &c.Summarize.Deployment,
		"FRAME_BASE_URL":                    &c.Render.FrameBaseURL,
		"NOTES_LOG_LEVEL":                   &c.Logging.Level,
		"NOTES_LOG_FORMAT":                  &c.Logging.Format,
		"NOTES_DATA_DIR":                    &c.Paths.DataDir,
		"NOTES_NATS_URL":                    &c.Events.NATSURL,
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for name, field := range c.envOverrides() {
		if value, ok := lookup(name); ok {
			*field = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIndexer()
	c.normalizeStorage()
	c.Summarize.Provider = strings.ToLower(strings.TrimSpace(c.Summarize.Provider))
	c.Summarize.Endpoint = strings.TrimSpace(c.Summarize.Endpoint)
	c.Render.Format = strings.ToLower(strings.TrimSpace(c.Render.Format))
	if c.Render.Format == "" {
		c.Render.Format = defaultRenderFormat
	}
	c.Render.FrameBaseURL = strings.TrimRight(strings.TrimSpace(c.Render.FrameBaseURL), "/")
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Storage.Dir, err = expandPath(c.Storage.Dir); err != nil {
		return fmt.Errorf("storage.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeIndexer() {
	c.Indexer.APIBase = strings.TrimRight(strings.TrimSpace(c.Indexer.APIBase), "/")
	if c.Indexer.APIBase == "" {
		c.Indexer.APIBase = defaultIndexerAPIBase
	}
	if strings.TrimSpace(c.Indexer.Language) == "" {
		c.Indexer.Language = defaultIndexerLanguage
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	c.Storage.AuthMode = strings.ToLower(strings.TrimSpace(c.Storage.AuthMode))
	if c.Storage.AuthMode == "" {
		c.Storage.AuthMode = defaultStorageAuthMode
	}
	if c.Storage.Backend == "dir" && c.Storage.Dir == "" {
		c.Storage.Dir = filepath.Join(c.Paths.DataDir, "blobs")
	}
	defaults := Default().Storage.Containers
	containers := &c.Storage.Containers
	for _, pair := range []struct {
		field *string
		def   string
	}{
		{&containers.Raw, defaults.Raw},
		{&containers.VI, defaults.VI},
		{&containers.Frames, defaults.Frames},
		{&containers.Manifests, defaults.Manifests},
		{&containers.Outputs, defaults.Outputs},
	} {
		if *pair.field = strings.TrimSpace(*pair.field); *pair.field == "" {
			*pair.field = pair.def
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFmt
	}
}
