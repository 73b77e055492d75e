// Package media runs the external tools that fetch and shrink the source
// video (yt-dlp and ffmpeg) as subprocesses with bounded diagnostics.
package media

import "time"

// RunResult is the structured outcome of executing a tool subprocess.
type RunResult struct {
	Tool       string        `json:"tool"`
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// TrimOptions controls the ffmpeg trim and re-encode step.
type TrimOptions struct {
	Duration     string // ffmpeg -t value, e.g. 00:05:20
	Reencode     bool   // false stream-copies
	MaxWidth     int
	CRF          int
	AudioBitrate string
	Preset       string
}

// DefaultTrimOptions returns the settings used for indexer uploads.
func DefaultTrimOptions() TrimOptions {
	return TrimOptions{
		Duration:     "00:05:20",
		Reencode:     true,
		MaxWidth:     1280,
		CRF:          23,
		AudioBitrate: "128k",
		Preset:       "veryfast",
	}
}

// ToolStatus reports whether one external tool is usable.
type ToolStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities is the result of a doctor probe.
type Capabilities struct {
	Tools    []ToolStatus `json:"tools"`
	ProbedAt time.Time    `json:"probed_at"`
}

// AllOK reports whether every probed tool is available.
func (c Capabilities) AllOK() bool {
	for _, t := range c.Tools {
		if !t.Available {
			return false
		}
	}
	return true
}
