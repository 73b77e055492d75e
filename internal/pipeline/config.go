package pipeline

import (
	"time"

	"github.com/heimdex/heimdex-notes/internal/media"
	"github.com/heimdex/heimdex-notes/internal/render"
)

// AcquireConfig drives the acquire stage.
type AcquireConfig struct {
	JobID    string
	VideoURL string
	Trim     media.TrimOptions
	// SkipTrim uploads the downloaded file as is.
	SkipTrim   bool
	SkipUpload bool
	SASTTL     time.Duration
}

// IndexConfig drives the index stage.
type IndexConfig struct {
	JobID string
	// Name registered with the indexer; defaults to the job id.
	Name string
	// VideoURL is a pre-built readable URL. When empty a read URL for the
	// raw video blob is generated.
	VideoURL   string
	SASTTL     time.Duration
	SkipUpload bool
}

// IndexSource selects where later stages read index.json from. Path wins
// over FromStore; neither means the workspace copy.
type IndexSource struct {
	Path      string
	FromStore bool
}

// FramesConfig drives the frames stage.
type FramesConfig struct {
	JobID      string
	Index      IndexSource
	OutputDir  string
	SkipUpload bool
}

// AlignConfig drives the align stage.
type AlignConfig struct {
	JobID string
	Index IndexSource
	// FramesDir holds extracted frames; defaults to the workspace frames
	// directory. FramesFromStore lists the frames container instead.
	FramesDir       string
	FramesFromStore bool
	IncludeTail     bool
	DurationMs      int64
	Output          string
	SkipUpload      bool
}

// ManifestSource selects where a manifest is read from.
type ManifestSource struct {
	Path      string
	FromStore bool
}

// SummarizeConfig drives the summarize stage.
type SummarizeConfig struct {
	JobID      string
	Input      ManifestSource
	Output     string
	SkipUpload bool
}

// RenderConfig drives the render stage.
type RenderConfig struct {
	JobID      string
	Input      ManifestSource
	Format     string
	Output     string
	SkipUpload bool
	Frames     render.Options
}

// RunConfig carries one config per stage for a full run.
type RunConfig struct {
	Acquire   AcquireConfig
	Index     IndexConfig
	Frames    FramesConfig
	Align     AlignConfig
	Summarize SummarizeConfig
	Render    RenderConfig
	// SkipAcquire indexes Index.VideoURL directly.
	SkipAcquire bool
}

// ForJob returns a copy of c with every stage pointed at jobID. The video
// URL is applied to the acquire stage, or to the index stage when
// acquisition is skipped.
func (c RunConfig) ForJob(jobID, videoURL string) RunConfig {
	c.Acquire.JobID = jobID
	c.Index.JobID = jobID
	c.Frames.JobID = jobID
	c.Align.JobID = jobID
	c.Summarize.JobID = jobID
	c.Render.JobID = jobID
	if videoURL != "" {
		if c.SkipAcquire {
			c.Index.VideoURL = videoURL
		} else {
			c.Acquire.VideoURL = videoURL
		}
	}
	return c
}
