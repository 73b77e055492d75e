package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type captured struct {
	subject string
	data    []byte
}

func TestSubject(t *testing.T) {
	tests := []struct {
		stage, status, want string
	}{
		{"index", StatusSucceeded, "notes.job.index.succeeded"},
		{"align", StatusFailed, "notes.job.align.failed"},
		{"", "", "notes.job.unknown.unknown"},
		{"a.b", "x>", "notes.job.a_b.x_"},
	}
	for _, tt := range tests {
		if got := Subject(tt.stage, tt.status); got != tt.want {
			t.Errorf("Subject(%q, %q) = %q, want %q", tt.stage, tt.status, got, tt.want)
		}
	}
}

func TestPublishEncodesEvent(t *testing.T) {
	var got []captured
	p := NewPublisher(func(subject string, data []byte) error {
		got = append(got, captured{subject, data})
		return nil
	}, nil)

	e := New("job-1", "index", StatusProgress, map[string]any{"remote_state": "Processing"})
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("published %d messages, want 1", len(got))
	}
	if got[0].subject != "notes.job.index.progress" {
		t.Errorf("subject = %s", got[0].subject)
	}

	var decoded Event
	if err := json.Unmarshal(got[0].data, &decoded); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if decoded.JobID != "job-1" || decoded.EventID == "" || decoded.Timestamp == "" {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Metadata["remote_state"] != "Processing" {
		t.Errorf("metadata = %v", decoded.Metadata)
	}
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	called := false
	p := NewPublisher(func(string, []byte) error { called = true; return nil }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, New("j", "align", StatusStarted, nil)); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("publish func should not run after cancellation")
	}
}

func TestEmitSwallowsErrors(t *testing.T) {
	p := NewPublisher(func(string, []byte) error { return errors.New("broker down") }, nil)
	Emit(context.Background(), p, nil, New("j", "render", StatusFailed, nil))
	Emit(context.Background(), nil, nil, New("j", "render", StatusFailed, nil))
}

func TestOpenWithoutURLIsNop(t *testing.T) {
	p, err := Open("  ", nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, ok := p.(Nop); !ok {
		t.Errorf("Open(\"\") = %T, want Nop", p)
	}
	if err := p.Publish(context.Background(), Event{}); err != nil {
		t.Errorf("Nop.Publish() error = %v", err)
	}
	p.Close()
}
