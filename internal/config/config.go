package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/heimdex/heimdex-notes/internal/indexer"
	"github.com/heimdex/heimdex-notes/internal/media"
	"github.com/heimdex/heimdex-notes/internal/render"
	"github.com/heimdex/heimdex-notes/internal/storage"
	"github.com/heimdex/heimdex-notes/internal/summarize"
)

//go:embed sample_config.toml
var sampleConfig string

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Job carries the defaults for a single-job CLI invocation.
type Job struct {
	ID       string `toml:"id"`
	VideoURL string `toml:"video_url"`
}

// Paths contains local directories.
type Paths struct {
	DataDir string `toml:"data_dir"`
	WorkDir string `toml:"work_dir"`
}

// API contains the HTTP server settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Indexer contains the video indexer account and polling settings.
type Indexer struct {
	APIBase               string `toml:"api_base"`
	Location              string `toml:"location"`
	AccountID             string `toml:"account_id"`
	SubscriptionKey       string `toml:"subscription_key"`
	Language              string `toml:"language"`
	PollIntervalSeconds   int    `toml:"poll_interval_seconds"`
	PollTimeoutSeconds    int    `toml:"poll_timeout_seconds"`
	TokenTTLSeconds       int    `toml:"token_ttl_seconds"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Containers names the blob container per artifact kind.
type Containers struct {
	Raw       string `toml:"raw"`
	VI        string `toml:"vi"`
	Frames    string `toml:"frames"`
	Manifests string `toml:"manifests"`
	Outputs   string `toml:"outputs"`
}

// Storage contains blob storage settings.
type Storage struct {
	Backend               string     `toml:"backend"`
	AuthMode              string     `toml:"auth_mode"`
	ConnectionString      string     `toml:"connection_string"`
	Account               string     `toml:"account"`
	ServiceURL            string     `toml:"service_url"`
	Dir                   string     `toml:"dir"`
	SASTTLHours           int        `toml:"sas_ttl_hours"`
	UploadConcurrency     int        `toml:"upload_concurrency"`
	RequestTimeoutSeconds int        `toml:"request_timeout_seconds"`
	Containers            Containers `toml:"containers"`
}

// Summarize contains the chat completion settings.
type Summarize struct {
	Provider       string  `toml:"provider"`
	Endpoint       string  `toml:"endpoint"`
	APIKey         string  `toml:"api_key"`
	Deployment     string  `toml:"deployment"`
	APIVersion     string  `toml:"api_version"`
	MaxTokens      int     `toml:"max_tokens"`
	Temperature    float32 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Acquire contains download and trim settings.
type Acquire struct {
	FFmpegPath             string `toml:"ffmpeg_path"`
	YTDLPPath              string `toml:"ytdlp_path"`
	Trim                   bool   `toml:"trim"`
	TrimDuration           string `toml:"trim_duration"`
	Reencode               bool   `toml:"reencode"`
	MaxWidth               int    `toml:"max_width"`
	CRF                    int    `toml:"crf"`
	AudioBitrate           string `toml:"audio_bitrate"`
	Preset                 string `toml:"preset"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
}

// Align contains alignment options.
type Align struct {
	IncludeTail bool `toml:"include_tail"`
}

// Render contains note rendering options.
type Render struct {
	Format       string `toml:"format"`
	FrameBaseURL string `toml:"frame_base_url"`
}

// Events contains the lifecycle event transport.
type Events struct {
	NATSURL string `toml:"nats_url"`
}

// Runner contains background job runner settings.
type Runner struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for heimdex-notes.
type Config struct {
	Job       Job       `toml:"job"`
	Paths     Paths     `toml:"paths"`
	API       API       `toml:"api"`
	Indexer   Indexer   `toml:"indexer"`
	Storage   Storage   `toml:"storage"`
	Summarize Summarize `toml:"summarize"`
	Acquire   Acquire   `toml:"acquire"`
	Align     Align     `toml:"align"`
	Render    Render    `toml:"render"`
	Events    Events    `toml:"events"`
	Runner    Runner    `toml:"runner"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/heimdex-notes/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file
// is not an error; defaults and environment overrides still apply. It returns
// the resolved path and whether a file was read.
func Load(path string) (*Config, string, bool, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv(lookup)
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("notes.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the data and work directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DBPath returns the full path to the SQLite job ledger.
func (c *Config) DBPath() string {
	return filepath.Join(c.Paths.DataDir, DBFilename)
}

// IndexerConfig returns the video indexer client settings.
func (c *Config) IndexerConfig() indexer.Config {
	return indexer.Config{
		APIBase:         c.Indexer.APIBase,
		Location:        c.Indexer.Location,
		AccountID:       c.Indexer.AccountID,
		SubscriptionKey: c.Indexer.SubscriptionKey,
		Language:        c.Indexer.Language,
		PollInterval:    seconds(c.Indexer.PollIntervalSeconds),
		PollTimeout:     seconds(c.Indexer.PollTimeoutSeconds),
		TokenTTL:        seconds(c.Indexer.TokenTTLSeconds),
		RequestTimeout:  seconds(c.Indexer.RequestTimeoutSeconds),
	}
}

// StorageConfig returns the blob store settings.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Backend:          c.Storage.Backend,
		AuthMode:         c.Storage.AuthMode,
		ConnectionString: c.Storage.ConnectionString,
		Account:          c.Storage.Account,
		ServiceURL:       c.Storage.ServiceURL,
		Dir:              c.Storage.Dir,
		Containers: storage.Containers{
			Raw:       c.Storage.Containers.Raw,
			VI:        c.Storage.Containers.VI,
			Frames:    c.Storage.Containers.Frames,
			Manifests: c.Storage.Containers.Manifests,
			Outputs:   c.Storage.Containers.Outputs,
		},
		SASTTL:            time.Duration(c.Storage.SASTTLHours) * time.Hour,
		UploadConcurrency: c.Storage.UploadConcurrency,
		RequestTimeout:    seconds(c.Storage.RequestTimeoutSeconds),
	}
}

// SummarizeConfig returns the summarizer settings.
func (c *Config) SummarizeConfig() summarize.Config {
	temperature := c.Summarize.Temperature
	return summarize.Config{
		Provider:    c.Summarize.Provider,
		Endpoint:    c.Summarize.Endpoint,
		APIKey:      c.Summarize.APIKey,
		Deployment:  c.Summarize.Deployment,
		APIVersion:  c.Summarize.APIVersion,
		MaxTokens:   c.Summarize.MaxTokens,
		Temperature: &temperature,
		Timeout:     seconds(c.Summarize.TimeoutSeconds),
	}
}

// TrimOptions returns the ffmpeg trim settings.
func (c *Config) TrimOptions() media.TrimOptions {
	return media.TrimOptions{
		Duration:     c.Acquire.TrimDuration,
		Reencode:     c.Acquire.Reencode,
		MaxWidth:     c.Acquire.MaxWidth,
		CRF:          c.Acquire.CRF,
		AudioBitrate: c.Acquire.AudioBitrate,
		Preset:       c.Acquire.Preset,
	}
}

// FrameOptions returns how rendered notes resolve frame references.
func (c *Config) FrameOptions() render.Options {
	opts := render.Options{FrameBaseURL: c.Render.FrameBaseURL}
	if opts.FrameBaseURL == "" {
		opts.FrameLocalDir = c.Paths.WorkDir
	}
	return opts
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
