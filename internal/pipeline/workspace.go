package pipeline

import (
	"path/filepath"

	"github.com/heimdex/heimdex-notes/internal/render"
)

// Workspace lays out local job files under Root:
//
//	{jobId}/source.mp4, trimmed.mp4, index.json, manifest.json,
//	        manifest_with_summaries.json, output.{html,md}
//	frames/{jobId}/{startMs}.jpg
//
// Frames sit under frames/ so the relative frame paths in a manifest
// resolve against Root.
type Workspace struct {
	Root string
}

func (w Workspace) JobDir(jobID string) string { return filepath.Join(w.Root, jobID) }

func (w Workspace) SourceVideo(jobID string) string {
	return filepath.Join(w.JobDir(jobID), "source.mp4")
}

func (w Workspace) TrimmedVideo(jobID string) string {
	return filepath.Join(w.JobDir(jobID), "trimmed.mp4")
}

func (w Workspace) IndexFile(jobID string) string {
	return filepath.Join(w.JobDir(jobID), "index.json")
}

func (w Workspace) FramesDir(jobID string) string {
	return filepath.Join(w.Root, "frames", jobID)
}

func (w Workspace) ManifestFile(jobID string) string {
	return filepath.Join(w.JobDir(jobID), "manifest.json")
}

func (w Workspace) SummarizedFile(jobID string) string {
	return filepath.Join(w.JobDir(jobID), "manifest_with_summaries.json")
}

func (w Workspace) OutputFile(jobID, format string) string {
	if format == "" {
		format = render.FormatHTML
	}
	return filepath.Join(w.JobDir(jobID), "output."+format)
}
