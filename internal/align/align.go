package align

import (
	"log/slog"

	"github.com/heimdex/heimdex-notes/internal/insights"
	"github.com/heimdex/heimdex-notes/internal/manifest"
)

// Options tunes alignment of one document.
type Options struct {
	// IncludeTail appends the video duration as a closing breakpoint so
	// content after the last shot or speaker change gets a segment.
	IncludeTail bool
	// DurationMs overrides the duration reported by the document.
	DurationMs int64
}

// Result is the outcome of aligning one document.
type Result struct {
	Breakpoints []int64
	Segments    []manifest.Segment
	// Dropped counts transcript entries not covered by any segment.
	Dropped int
}

// Aligner runs breakpoint extraction and segment building over a document.
type Aligner struct {
	logger *slog.Logger
	opts   Options
}

func NewAligner(logger *slog.Logger, opts Options) *Aligner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aligner{logger: logger, opts: opts}
}

// Align derives segments for doc. Frames come from resolver; a zero
// resolver yields segments without frames.
func (a *Aligner) Align(doc *insights.Document, resolver FrameResolver) (*Result, error) {
	shots := doc.Shots()
	bps, err := ExtractBreakpoints(shots, doc.Transcript())
	if err != nil {
		return nil, err
	}
	if a.opts.IncludeTail {
		bps = a.withTail(doc, bps)
	}

	sorted := doc.SortedTranscript()
	segments := BuildSegments(bps, sorted, resolver)
	before, after := Uncovered(bps, sorted)
	if after > 0 {
		a.logger.Warn("transcript entries after last breakpoint not emitted",
			"dropped", after,
			"last_breakpoint_ms", bps[len(bps)-1],
		)
	}
	if before > 0 {
		a.logger.Warn("transcript entries before first breakpoint not emitted",
			"dropped", before,
			"first_breakpoint_ms", bps[0],
		)
	}
	a.logger.Info("alignment complete",
		"shots", len(shots),
		"breakpoints", len(bps),
		"segments", len(segments),
		"transcript_entries", len(sorted),
	)
	return &Result{Breakpoints: bps, Segments: segments, Dropped: before + after}, nil
}

func (a *Aligner) withTail(doc *insights.Document, bps []int64) []int64 {
	end := a.opts.DurationMs
	if end <= 0 {
		if ms, ok := doc.Duration(); ok {
			end = ms
		}
	}
	if end <= bps[len(bps)-1] {
		if end <= 0 {
			a.logger.Warn("include_tail set but video duration is unknown")
		}
		return bps
	}
	return append(bps, end)
}
