package manifest

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/heimdex/heimdex-notes/internal/services"
)

func strPtr(s string) *string { return &s }

func TestAssembleRequiresJobID(t *testing.T) {
	_, err := Assemble("  ", nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAssemblePreservesOrder(t *testing.T) {
	segs := []Segment{
		{StartMs: 0, EndMs: 10, Source: SourceVideoIndexer},
		{StartMs: 10, EndMs: 20, Source: SourceVideoIndexer},
	}
	m, err := Assemble("job-1", segs)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if m.JobID != "job-1" || len(m.Segments) != 2 || m.Segments[1].StartMs != 10 {
		t.Fatalf("unexpected manifest %+v", m)
	}

	empty, err := Assemble("job-2", nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	data, _ := empty.Marshal()
	if !strings.Contains(string(data), `"segments": []`) {
		t.Fatalf("expected empty segment array, got %s", data)
	}
}

func TestMarshalUsesWireNames(t *testing.T) {
	m, _ := Assemble("job-1", []Segment{
		{StartMs: 0, EndMs: 4000, FramePath: strPtr("frames/job-1/0.jpg"), Speaker: strPtr("1"), Text: "hello world", Source: SourceVideoIndexer},
		{StartMs: 4000, EndMs: 4500, Source: SourceVideoIndexer},
	})
	data, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	out := string(data)
	for _, want := range []string{
		`"jobId": "job-1"`,
		`"segmentStartMs": 4000`,
		`"segmentEndMs": 4500`,
		`"framePath": null`,
		`"speaker": null`,
		`"source": "VI"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("manifest JSON missing %s:\n%s", want, out)
		}
	}
	if strings.Contains(out, "summary") || strings.Contains(out, "frameUrl") {
		t.Errorf("unset optional fields should be omitted:\n%s", out)
	}
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "manifest.json")
	m, _ := Assemble("job-1", []Segment{
		{StartMs: 0, EndMs: 10, Speaker: strPtr("2"), Text: "a", Source: SourceVideoIndexer, Summary: strPtr("sum")},
	})
	if err := Write(path, m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	seg := got.Segments[0]
	if seg.SpeakerID() != "2" || seg.Frame() != "" || seg.Summary == nil || *seg.Summary != "sum" {
		t.Fatalf("unexpected segment %+v", seg)
	}
	if _, err := Read(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}
