// Package align turns insight documents into manifest segments: breakpoints
// from shots and speaker changes, transcript windows between consecutive
// breakpoints, and a representative frame per window.
package align

import (
	"sort"

	"github.com/heimdex/heimdex-notes/internal/insights"
	"github.com/heimdex/heimdex-notes/internal/services"
)

// ShotStarts returns the sorted, deduplicated shot start times.
func ShotStarts(shots []insights.Shot) []int64 {
	out := make([]int64, 0, len(shots))
	for _, s := range shots {
		out = append(out, s.StartMs)
	}
	return dedupSorted(out)
}

// SpeakerChanges walks the transcript in the order given and records the
// start of every entry whose speaker differs from the last attributed one.
// Unattributed entries neither trigger a change nor reset the tracker.
func SpeakerChanges(transcript []insights.TranscriptEntry) []int64 {
	var (
		changes []int64
		prev    string
	)
	for _, e := range transcript {
		if !e.HasSpeaker() {
			continue
		}
		if e.Speaker != prev {
			changes = append(changes, e.StartMs)
			prev = e.Speaker
		}
	}
	return dedupSorted(changes)
}

// ExtractBreakpoints unions shot starts with speaker-change timestamps. The
// result is strictly increasing; an empty result is an alignment error.
func ExtractBreakpoints(shots []insights.Shot, transcript []insights.TranscriptEntry) ([]int64, error) {
	merged := append(ShotStarts(shots), SpeakerChanges(transcript)...)
	bps := dedupSorted(merged)
	if len(bps) == 0 {
		return nil, services.Wrap(services.ErrAlignment, "align", "breakpoints", "no shots or speaker changes in insights", nil)
	}
	return bps, nil
}

func dedupSorted(values []int64) []int64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
