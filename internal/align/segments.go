package align

import (
	"sort"
	"strings"

	"github.com/heimdex/heimdex-notes/internal/insights"
	"github.com/heimdex/heimdex-notes/internal/manifest"
)

// BuildSegments partitions sorted transcript entries into the windows
// [bps[i], bps[i+1]) and returns one segment per window. Entries before the
// first or at/after the last breakpoint belong to no window.
func BuildSegments(bps []int64, sorted []insights.TranscriptEntry, frames FrameResolver) []manifest.Segment {
	if len(bps) < 2 {
		return []manifest.Segment{}
	}
	segments := make([]manifest.Segment, 0, len(bps)-1)
	for i := 0; i < len(bps)-1; i++ {
		start, end := bps[i], bps[i+1]
		window := windowOf(sorted, start, end)

		texts := make([]string, 0, len(window))
		var speaker *string
		for _, e := range window {
			texts = append(texts, e.Text)
			if speaker == nil && e.HasSpeaker() {
				s := e.Speaker
				speaker = &s
			}
		}
		segments = append(segments, manifest.Segment{
			StartMs:   start,
			EndMs:     end,
			FramePath: frames.Resolve(start),
			Speaker:   speaker,
			Text:      strings.TrimSpace(strings.Join(texts, " ")),
			Source:    manifest.SourceVideoIndexer,
		})
	}
	return segments
}

// windowOf returns the entries with start in [from, to). sorted must be
// ordered by StartMs.
func windowOf(sorted []insights.TranscriptEntry, from, to int64) []insights.TranscriptEntry {
	lo := sort.Search(len(sorted), func(i int) bool { return sorted[i].StartMs >= from })
	hi := sort.Search(len(sorted), func(i int) bool { return sorted[i].StartMs >= to })
	if lo >= hi {
		return nil
	}
	return sorted[lo:hi]
}

// Uncovered counts entries that fall outside [bps[0], bps[last]).
func Uncovered(bps []int64, sorted []insights.TranscriptEntry) (before, after int) {
	if len(bps) == 0 {
		return 0, len(sorted)
	}
	first, last := bps[0], bps[len(bps)-1]
	for _, e := range sorted {
		switch {
		case e.StartMs < first:
			before++
		case e.StartMs >= last:
			after++
		}
	}
	return before, after
}
