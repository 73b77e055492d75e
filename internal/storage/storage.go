// Package storage moves job artifacts (videos, index documents, frames,
// manifests and rendered notes) in and out of blob containers. AzureStore
// talks to Azure Blob Storage; DirStore mirrors the same layout on local
// disk for offline runs and tests.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/heimdex/heimdex-notes/internal/services"
)

// Store is a flat blob namespace split into containers.
type Store interface {
	// EnsureContainer creates the container; an existing one is not an error.
	EnsureContainer(ctx context.Context, container string) error
	Put(ctx context.Context, container, name string, data []byte, contentType string) error
	PutFile(ctx context.Context, container, name, localPath string) error
	Get(ctx context.Context, container, name string) ([]byte, error)
	// List returns blob names under prefix in lexical order.
	List(ctx context.Context, container, prefix string) ([]string, error)
	// ReadURL returns a URL a remote service can read the blob from for ttl.
	ReadURL(ctx context.Context, container, name string, ttl time.Duration) (string, error)
}

// Backends and Azure auth modes.
const (
	BackendAzure = "azure"
	BackendDir   = "dir"

	AuthKey = "key"
	AuthAAD = "aad"
)

const (
	DefaultSASTTL            = 24 * time.Hour
	DefaultUploadConcurrency = 4
	DefaultBlockSize         = 8 * 1024 * 1024
	DefaultRequestTimeout    = 10 * time.Minute
)

// Containers names the container used for each artifact kind.
type Containers struct {
	Raw       string
	VI        string
	Frames    string
	Manifests string
	Outputs   string
}

// DefaultContainers returns the conventional container names.
func DefaultContainers() Containers {
	return Containers{
		Raw:       "raw",
		VI:        "video-indexer",
		Frames:    "frames",
		Manifests: "manifests",
		Outputs:   "outputs",
	}
}

// Config selects and configures a backend.
type Config struct {
	Backend          string
	AuthMode         string
	ConnectionString string
	Account          string
	// ServiceURL overrides https://{Account}.blob.core.windows.net.
	ServiceURL string
	// Dir is the root of the DirStore backend.
	Dir string

	Containers        Containers
	SASTTL            time.Duration
	UploadConcurrency int
	BlockSize         int64
	RequestTimeout    time.Duration

	// Progress receives upload progress bars; nil disables them.
	Progress io.Writer
}

// Validate reports missing credentials for the selected backend.
func (c Config) Validate() error {
	switch c.backend() {
	case BackendDir:
		if strings.TrimSpace(c.Dir) == "" {
			return services.Validation("storage", "dir backend requires a directory")
		}
		return nil
	case BackendAzure:
	default:
		return services.Wrap(services.ErrConfiguration, "storage", "", fmt.Sprintf("unknown backend %q", c.Backend), nil)
	}
	switch c.authMode() {
	case AuthKey:
		if strings.TrimSpace(c.ConnectionString) == "" {
			return services.Validation("storage", "missing storage connection string for key auth")
		}
	case AuthAAD:
		if strings.TrimSpace(c.Account) == "" && strings.TrimSpace(c.ServiceURL) == "" {
			return services.Validation("storage", "missing storage account name for aad auth")
		}
	default:
		return services.Wrap(services.ErrConfiguration, "storage", "", fmt.Sprintf("unknown auth mode %q", c.AuthMode), nil)
	}
	return nil
}

func (c Config) backend() string {
	if c.Backend == "" {
		return BackendAzure
	}
	return strings.ToLower(c.Backend)
}

func (c Config) authMode() string {
	if c.AuthMode == "" {
		return AuthKey
	}
	return strings.ToLower(c.AuthMode)
}

func (c Config) withDefaults() Config {
	if c.Containers == (Containers{}) {
		c.Containers = DefaultContainers()
	}
	if c.SASTTL <= 0 {
		c.SASTTL = DefaultSASTTL
	}
	if c.UploadConcurrency <= 0 {
		c.UploadConcurrency = DefaultUploadConcurrency
	}
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Open builds the configured backend.
func Open(cfg Config, logger *slog.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if cfg.backend() == BackendDir {
		return NewDirStore(cfg.Dir, cfg.Progress)
	}
	return NewAzureStore(cfg, logger)
}

// Blob names for the artifacts of a job.

func RawVideoBlob(jobID string) string { return "vid/" + jobID + ".mp4" }

func IndexBlob(jobID string) string { return jobID + "/index.json" }

func FramePrefix(jobID string) string { return jobID + "/" }

func FrameBlob(jobID string, startMs int64) string {
	return FramePrefix(jobID) + strconv.FormatInt(startMs, 10) + ".jpg"
}

func ManifestBlob(jobID string) string { return jobID + "/manifest.json" }

func SummarizedManifestBlob(jobID string) string { return jobID + "/manifest_with_summaries.json" }

func OutputBlob(jobID, format string) string { return jobID + "/output." + format }

// ContentType guesses a blob content type from its extension.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return "application/json"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".mp4":
		return "video/mp4"
	case ".html":
		return "text/html; charset=utf-8"
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func newProgressBar(w io.Writer, size int64, desc string) *progressbar.ProgressBar {
	if w == nil {
		return nil
	}
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
