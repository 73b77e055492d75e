// Package insights is the single parsing boundary for the video indexer's
// insight document. Raw JSON is decoded once into Document and every other
// package works with the normalized Shot, TranscriptEntry and Keyframe values
// it yields; null checks and lenient timestamp handling live here only.
package insights

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Document is a decoded insight document. Only the fields the pipeline
// reads are typed; Raw keeps the original bytes for persistence.
type Document struct {
	ID                string  `json:"id"`
	AltVideoID        string  `json:"videoId"`
	Name              string  `json:"name"`
	State             string  `json:"state"`
	DurationInSeconds float64 `json:"durationInSeconds"`
	Videos            []video `json:"videos"`

	Raw []byte `json:"-"`
}

type video struct {
	ID       string      `json:"id"`
	State    string      `json:"state"`
	Insights rawInsights `json:"insights"`
}

type rawInsights struct {
	Duration   string          `json:"duration"`
	Shots      []rawShot       `json:"shots"`
	Transcript []rawTranscript `json:"transcript"`
}

type rawShot struct {
	KeyFrames []rawKeyFrame `json:"keyFrames"`
	Instances []rawInstance `json:"instances"`
}

type rawKeyFrame struct {
	Instances []rawInstance `json:"instances"`
}

type rawTranscript struct {
	Text      string        `json:"text"`
	SpeakerID SpeakerID     `json:"speakerId"`
	Instances []rawInstance `json:"instances"`
}

type rawInstance struct {
	ThumbnailID string          `json:"thumbnailId"`
	Start       json.RawMessage `json:"start"`
}

// Shot is a shot boundary reduced to its start time.
type Shot struct {
	StartMs int64
}

// TranscriptEntry is one speaker-attributed transcript line. An empty
// Speaker means the indexer did not attribute the line.
type TranscriptEntry struct {
	StartMs int64
	Speaker string
	Text    string
}

// HasSpeaker reports whether the entry carries a speaker id.
func (e TranscriptEntry) HasSpeaker() bool {
	return e.Speaker != ""
}

// Keyframe identifies the representative thumbnail of a shot.
type Keyframe struct {
	ThumbnailID string
	StartMs     int64
}

// SpeakerID accepts the indexer's numeric speaker ids as well as strings.
// Null, empty and non-scalar values decode to the empty id.
type SpeakerID string

func (s *SpeakerID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = ""
		return nil
	}
	switch trimmed[0] {
	case '"':
		var str string
		if err := json.Unmarshal(trimmed, &str); err != nil {
			return err
		}
		*s = SpeakerID(strings.TrimSpace(str))
	case '{', '[':
		*s = ""
	default:
		var num json.Number
		if err := json.Unmarshal(trimmed, &num); err != nil {
			*s = ""
			return nil
		}
		*s = SpeakerID(num.String())
	}
	return nil
}

// Parse decodes raw index JSON into a Document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode index document: %w", err)
	}
	doc.Raw = append([]byte(nil), data...)
	return &doc, nil
}

func (d *Document) insights() rawInsights {
	if d == nil || len(d.Videos) == 0 {
		return rawInsights{}
	}
	return d.Videos[0].Insights
}

// VideoID returns the indexer's identifier for the document's video.
func (d *Document) VideoID() string {
	if d == nil {
		return ""
	}
	if d.ID != "" {
		return d.ID
	}
	return d.AltVideoID
}

// Shots returns the start of every shot (first instance), deduplicated and
// sorted ascending. Shots without a start are skipped.
func (d *Document) Shots() []Shot {
	seen := make(map[int64]struct{})
	var shots []Shot
	for _, shot := range d.insights().Shots {
		if len(shot.Instances) == 0 {
			continue
		}
		ms, ok := startMs(shot.Instances[0].Start)
		if !ok {
			continue
		}
		if _, dup := seen[ms]; dup {
			continue
		}
		seen[ms] = struct{}{}
		shots = append(shots, Shot{StartMs: ms})
	}
	sort.Slice(shots, func(i, j int) bool { return shots[i].StartMs < shots[j].StartMs })
	return shots
}

// Transcript returns transcript entries in document order. Entries whose
// first instance has no start are skipped.
func (d *Document) Transcript() []TranscriptEntry {
	raw := d.insights().Transcript
	entries := make([]TranscriptEntry, 0, len(raw))
	for _, line := range raw {
		if len(line.Instances) == 0 {
			continue
		}
		ms, ok := startMs(line.Instances[0].Start)
		if !ok {
			continue
		}
		entries = append(entries, TranscriptEntry{
			StartMs: ms,
			Speaker: string(line.SpeakerID),
			Text:    norm.NFC.String(line.Text),
		})
	}
	return entries
}

// SortedTranscript returns the transcript ordered by start time. The sort is
// stable so lines sharing a timestamp keep document order.
func (d *Document) SortedTranscript() []TranscriptEntry {
	entries := d.Transcript()
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].StartMs < entries[j].StartMs })
	return entries
}

// Keyframes returns one keyframe per shot: the first keyframe instance that
// carries both a thumbnail id and a start.
func (d *Document) Keyframes() []Keyframe {
	var frames []Keyframe
	for _, shot := range d.insights().Shots {
		for _, kf := range shot.KeyFrames {
			if len(kf.Instances) == 0 {
				continue
			}
			inst := kf.Instances[0]
			ms, ok := startMs(inst.Start)
			if inst.ThumbnailID == "" || !ok {
				continue
			}
			frames = append(frames, Keyframe{ThumbnailID: inst.ThumbnailID, StartMs: ms})
			break
		}
	}
	return frames
}

// Duration returns the video length in milliseconds when the document
// reports one.
func (d *Document) Duration() (int64, bool) {
	if d == nil {
		return 0, false
	}
	if d.DurationInSeconds > 0 {
		return int64(math.Round(d.DurationInSeconds * 1000)), true
	}
	if ms, ok := ParseTimecode(d.insights().Duration); ok && ms > 0 {
		return ms, true
	}
	return 0, false
}

// startMs decodes an instance start. A missing or null start is reported as
// absent; any other value goes through the lenient timecode parser.
func startMs(raw json.RawMessage) (int64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, false
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return 0, true
	}
	return TimecodeToMs(text), true
}
