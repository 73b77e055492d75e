// Package manifest defines the persisted alignment result handed to the
// summarization and rendering stages.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/heimdex/heimdex-notes/internal/services"
)

// SourceVideoIndexer tags segments derived from video indexer insights.
const SourceVideoIndexer = "VI"

// Segment covers the half-open interval [StartMs, EndMs).
type Segment struct {
	StartMs   int64   `json:"segmentStartMs"`
	EndMs     int64   `json:"segmentEndMs"`
	FramePath *string `json:"framePath"`
	Speaker   *string `json:"speaker"`
	Text      string  `json:"text"`
	Source    string  `json:"source"`

	// Appended by later stages; alignment never sets them.
	Summary  *string `json:"summary,omitempty"`
	FrameURL string  `json:"frameUrl,omitempty"`
}

// Frame returns the frame path or "" when the segment has none.
func (s Segment) Frame() string {
	if s.FramePath == nil {
		return ""
	}
	return *s.FramePath
}

// SpeakerID returns the speaker or "" when the segment has none.
func (s Segment) SpeakerID() string {
	if s.Speaker == nil {
		return ""
	}
	return *s.Speaker
}

// Manifest is the ordered segment list of one job.
type Manifest struct {
	JobID    string    `json:"jobId"`
	Segments []Segment `json:"segments"`
}

// Assemble wraps segments with the job identity. Segment order is kept as
// given.
func Assemble(jobID string, segments []Segment) (*Manifest, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, services.Validation("align", "job id is required")
	}
	if segments == nil {
		segments = []Segment{}
	}
	return &Manifest{JobID: jobID, Segments: segments}, nil
}

// Marshal encodes the manifest as indented JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Decode parses manifest JSON.
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// Read loads a manifest from disk.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Decode(data)
}

// Write stores the manifest at path, creating parent directories.
func Write(path string, m *Manifest) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
