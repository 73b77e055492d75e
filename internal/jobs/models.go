// Package jobs is the durable ledger of notes jobs: one row per video,
// tracking which stage last ran, the remote indexer's id and state, and
// the artifacts each stage stored.
package jobs

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Artifact kinds recorded by the pipeline stages.
const (
	ArtifactRawVideo   = "raw_video"
	ArtifactIndex      = "index"
	ArtifactFrames     = "frames"
	ArtifactManifest   = "manifest"
	ArtifactSummarized = "manifest_summarized"
	ArtifactHTML       = "output_html"
	ArtifactMarkdown   = "output_md"
)

type Job struct {
	ID             string    `json:"id"`
	VideoURL       string    `json:"video_url"`
	Status         string    `json:"status"`
	Stage          string    `json:"stage,omitempty"`
	IndexerVideoID string    `json:"indexer_video_id,omitempty"`
	IndexerState   string    `json:"indexer_state,omitempty"`
	Progress       int       `json:"progress"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Terminal reports whether the job will not be picked up again.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Artifact points at a blob a stage wrote for a job.
type Artifact struct {
	JobID     string    `json:"job_id"`
	Kind      string    `json:"kind"`
	Container string    `json:"container"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func NewID() string {
	return uuid.NewString()
}
