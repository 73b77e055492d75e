package align

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/heimdex/heimdex-notes/internal/insights"
	"github.com/heimdex/heimdex-notes/internal/services"
)

func entry(ms int64, speaker, text string) insights.TranscriptEntry {
	return insights.TranscriptEntry{StartMs: ms, Speaker: speaker, Text: text}
}

func shots(ms ...int64) []insights.Shot {
	out := make([]insights.Shot, 0, len(ms))
	for _, v := range ms {
		out = append(out, insights.Shot{StartMs: v})
	}
	return out
}

func equalInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestExtractBreakpoints(t *testing.T) {
	tests := []struct {
		name       string
		shots      []insights.Shot
		transcript []insights.TranscriptEntry
		want       []int64
	}{
		{
			name:       "shots and speaker changes",
			shots:      shots(0, 4000),
			transcript: []insights.TranscriptEntry{entry(0, "s1", "hello"), entry(2000, "s1", "world"), entry(4500, "s2", "hi")},
			want:       []int64{0, 4000, 4500},
		},
		{
			name:  "duplicates collapse",
			shots: shots(3000, 0, 3000),
			transcript: []insights.TranscriptEntry{
				entry(3000, "a", ""), entry(5000, "b", ""), entry(6000, "a", ""),
			},
			want: []int64{0, 3000, 5000, 6000},
		},
		{
			name:  "unattributed entries do not reset speaker",
			shots: nil,
			transcript: []insights.TranscriptEntry{
				entry(100, "a", ""), entry(200, "", ""), entry(300, "a", ""), entry(400, "b", ""),
			},
			want: []int64{100, 400},
		},
		{
			name:       "transcript order drives changes",
			transcript: []insights.TranscriptEntry{entry(900, "a", ""), entry(100, "b", "")},
			want:       []int64{100, 900},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBreakpoints(tt.shots, tt.transcript)
			if err != nil {
				t.Fatalf("ExtractBreakpoints() error = %v", err)
			}
			if !equalInts(got, tt.want) {
				t.Fatalf("ExtractBreakpoints() = %v, want %v", got, tt.want)
			}
			for i := 1; i < len(got); i++ {
				if got[i] <= got[i-1] {
					t.Fatalf("breakpoints not strictly increasing: %v", got)
				}
			}
		})
	}
}

func TestExtractBreakpointsEmpty(t *testing.T) {
	_, err := ExtractBreakpoints(nil, []insights.TranscriptEntry{entry(0, "", "no speaker")})
	if !errors.Is(err, services.ErrAlignment) {
		t.Fatalf("expected alignment error, got %v", err)
	}
}

func TestFrameIndexResolve(t *testing.T) {
	ix := FrameIndex{1000: "a.jpg", 5000: "b.jpg"}
	tests := []struct {
		at   int64
		want string
	}{
		{3000, "a.jpg"},
		{500, "a.jpg"},
		{1000, "a.jpg"},
		{5000, "b.jpg"},
		{9000, "b.jpg"},
	}
	for _, tt := range tests {
		got, ok := ix.Resolve(tt.at)
		if !ok || got != tt.want {
			t.Errorf("Resolve(%d) = %q, %v, want %q", tt.at, got, ok, tt.want)
		}
	}
	if _, ok := (FrameIndex{}).Resolve(10); ok {
		t.Error("empty index should resolve nothing")
	}
}

func TestFrameResolverTiers(t *testing.T) {
	fallback := ShotFrameFallback("job-1", []int64{0, 4000})
	r := FrameResolver{Available: FrameIndex{2000: "/abs/2000.jpg"}, Fallback: fallback}
	if got := r.Resolve(4500); got == nil || *got != "/abs/2000.jpg" {
		t.Fatalf("available frames should win, got %v", got)
	}

	r = FrameResolver{Fallback: fallback}
	if got := r.Resolve(4500); got == nil || *got != "frames/job-1/4000.jpg" {
		t.Fatalf("fallback frame = %v", got)
	}
	if got := (FrameResolver{}).Resolve(0); got != nil {
		t.Fatalf("expected no frame, got %q", *got)
	}
}

func TestLoadFrameDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0.jpg", "4200.jpg", "notes.txt", "cover.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "123.jpg"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ix, err := LoadFrameDir(dir)
	if err != nil {
		t.Fatalf("LoadFrameDir() error = %v", err)
	}
	if !equalInts(ix.Timestamps(), []int64{0, 4200}) {
		t.Fatalf("timestamps = %v", ix.Timestamps())
	}
	if !filepath.IsAbs(ix[4200]) || filepath.Base(ix[4200]) != "4200.jpg" {
		t.Fatalf("unexpected path %q", ix[4200])
	}

	missing, err := LoadFrameDir(filepath.Join(dir, "missing"))
	if err != nil || len(missing) != 0 {
		t.Fatalf("missing dir = %v, %v", missing, err)
	}
}

func TestFrameIndexFromNames(t *testing.T) {
	ix := FrameIndexFromNames([]string{"job-1/0.jpg", "job-1/750.JPG", "job-1/index.json"}, "frames/")
	if len(ix) != 2 || ix[750] != "frames/job-1/750.JPG" {
		t.Fatalf("unexpected index %v", ix)
	}
}

func TestBuildSegmentsTiles(t *testing.T) {
	bps := []int64{0, 1000, 2500, 4000}
	sorted := []insights.TranscriptEntry{
		entry(0, "", "intro"),
		entry(500, "a", "one"),
		entry(1000, "b", "two"),
		entry(3999, "", "three"),
		entry(4000, "c", "tail"),
	}
	segs := BuildSegments(bps, sorted, FrameResolver{})
	if len(segs) != len(bps)-1 {
		t.Fatalf("expected %d segments, got %d", len(bps)-1, len(segs))
	}
	for i, s := range segs {
		if s.StartMs >= s.EndMs {
			t.Errorf("segment %d has empty interval", i)
		}
		if i > 0 && segs[i-1].EndMs != s.StartMs {
			t.Errorf("segment %d does not tile", i)
		}
		if s.Source != "VI" {
			t.Errorf("segment %d source = %q", i, s.Source)
		}
	}
	if segs[0].Text != "intro one" || segs[0].SpeakerID() != "a" {
		t.Errorf("segment 0 = %+v", segs[0])
	}
	if segs[1].Text != "two" || segs[1].SpeakerID() != "b" {
		t.Errorf("segment 1 = %+v", segs[1])
	}
	if segs[2].Text != "three" || segs[2].Speaker != nil {
		t.Errorf("segment 2 = %+v", segs[2])
	}

	if got := BuildSegments([]int64{0}, sorted, FrameResolver{}); len(got) != 0 {
		t.Fatalf("single breakpoint should yield no segments, got %d", len(got))
	}
}

const scenarioIndex = `{"id": "v1", "videos": [{"insights": {
  "shots": [{"instances": [{"start": "0:00:00"}]}, {"instances": [{"start": "0:00:04"}]}],
  "transcript": [
    {"text": "hello", "speakerId": "s1", "instances": [{"start": "0:00:00"}]},
    {"text": "world", "speakerId": "s1", "instances": [{"start": "0:00:02"}]},
    {"text": "hi", "speakerId": "s2", "instances": [{"start": "0:00:04.5"}]}
  ]
}}]}`

func TestAlignScenario(t *testing.T) {
	doc, err := insights.Parse([]byte(scenarioIndex))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	res, err := NewAligner(logger, Options{}).Align(doc, FrameResolver{Fallback: ShotFrameFallback("job-1", []int64{0, 4000})})
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if !equalInts(res.Breakpoints, []int64{0, 4000, 4500}) {
		t.Fatalf("breakpoints = %v", res.Breakpoints)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(res.Segments))
	}
	first, second := res.Segments[0], res.Segments[1]
	if first.StartMs != 0 || first.EndMs != 4000 || first.Text != "hello world" || first.SpeakerID() != "s1" {
		t.Errorf("first segment = %+v", first)
	}
	if first.Frame() != "frames/job-1/0.jpg" {
		t.Errorf("first frame = %q", first.Frame())
	}
	if second.StartMs != 4000 || second.EndMs != 4500 || second.Text != "" || second.Speaker != nil {
		t.Errorf("second segment = %+v", second)
	}
	if res.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", res.Dropped)
	}
	if !strings.Contains(buf.String(), "after last breakpoint") {
		t.Errorf("expected truncation warning, got %q", buf.String())
	}
}

func TestAlignIncludeTail(t *testing.T) {
	doc, err := insights.Parse([]byte(scenarioIndex))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	res, err := NewAligner(nil, Options{IncludeTail: true, DurationMs: 6000}).Align(doc, FrameResolver{})
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if len(res.Segments) != 3 || res.Dropped != 0 {
		t.Fatalf("segments = %d dropped = %d", len(res.Segments), res.Dropped)
	}
	last := res.Segments[2]
	if last.StartMs != 4500 || last.EndMs != 6000 || last.Text != "hi" {
		t.Fatalf("tail segment = %+v", last)
	}
}

func TestAlignNoBreakpoints(t *testing.T) {
	doc, _ := insights.Parse([]byte(`{"videos": [{"insights": {}}]}`))
	if _, err := NewAligner(nil, Options{}).Align(doc, FrameResolver{}); !errors.Is(err, services.ErrAlignment) {
		t.Fatalf("expected alignment error, got %v", err)
	}
}

func TestEmptySpeakerStringIsNotASpeakerChange(t *testing.T) {
	doc, err := insights.Parse([]byte(`{"videos": [{"insights": {
		"shots": [{"instances": [{"start": "0:00:00"}]}],
		"transcript": [
			{"text": "a", "speakerId": 1, "instances": [{"start": "0:00:00"}]},
			{"text": "b", "speakerId": "", "instances": [{"start": "0:00:02"}]},
			{"text": "c", "speakerId": 1, "instances": [{"start": "0:00:03"}]},
			{"text": "d", "speakerId": 2, "instances": [{"start": "0:00:05"}]}
		]}}]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	got := SpeakerChanges(doc.Transcript())
	want := []int64{0, 5000}
	if len(got) != len(want) {
		t.Fatalf("SpeakerChanges() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SpeakerChanges() = %v, want %v", got, want)
		}
	}
}
