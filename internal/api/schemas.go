package api

import (
	"time"

	"github.com/heimdex/heimdex-notes/internal/jobs"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State       string         `json:"state"`
	LastError   string         `json:"last_error,omitempty"`
	JobsPending int            `json:"jobs_pending"`
	JobsRunning int            `json:"jobs_running"`
	ActiveJob   *JobResponse   `json:"active_job,omitempty"`
	Tools       []ToolResponse `json:"tools,omitempty"`
}

type ToolResponse struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

type SubmitJobRequest struct {
	VideoURL string `json:"video_url"`
	JobID    string `json:"job_id,omitempty"`
}

type SubmitJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type JobResponse struct {
	ID             string             `json:"id"`
	VideoURL       string             `json:"video_url"`
	Status         string             `json:"status"`
	Stage          string             `json:"stage,omitempty"`
	Progress       int                `json:"progress"`
	IndexerVideoID string             `json:"indexer_video_id,omitempty"`
	IndexerState   string             `json:"indexer_state,omitempty"`
	Error          string             `json:"error,omitempty"`
	Artifacts      []ArtifactResponse `json:"artifacts,omitempty"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at"`
}

type ArtifactResponse struct {
	Kind      string `json:"kind"`
	Container string `json:"container"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JobToResponse(j *jobs.Job) JobResponse {
	return JobResponse{
		ID:             j.ID,
		VideoURL:       j.VideoURL,
		Status:         j.Status,
		Stage:          j.Stage,
		Progress:       j.Progress,
		IndexerVideoID: j.IndexerVideoID,
		IndexerState:   j.IndexerState,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      j.UpdatedAt.Format(time.RFC3339),
	}
}

func ArtifactToResponse(a *jobs.Artifact) ArtifactResponse {
	return ArtifactResponse{
		Kind:      a.Kind,
		Container: a.Container,
		Name:      a.Name,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}
