package indexer

import (
	"testing"
	"time"
)

func TestTransition(t *testing.T) {
	timeout := 10 * time.Minute
	tests := []struct {
		name    string
		current State
		remote  string
		elapsed time.Duration
		want    State
	}{
		{"uploaded keeps processing", StateSubmitted, RemoteUploaded, 0, StateProcessing},
		{"processing", StateProcessing, RemoteProcessing, time.Minute, StateProcessing},
		{"processed", StateProcessing, RemoteProcessed, time.Minute, StateProcessed},
		{"failed", StateProcessing, RemoteFailed, time.Minute, StateFailed},
		{"error", StateSubmitted, RemoteError, 0, StateFailed},
		{"unknown state", StateProcessing, "Quarantined", time.Minute, StateProcessing},
		{"timeout", StateProcessing, RemoteProcessing, 11 * time.Minute, StateTimedOut},
		{"at timeout", StateProcessing, RemoteProcessing, timeout, StateProcessing},
		{"processed beats timeout", StateProcessing, RemoteProcessed, time.Hour, StateProcessed},
		{"failed beats timeout", StateProcessing, RemoteFailed, time.Hour, StateFailed},
		{"terminal stays", StateFailed, RemoteProcessed, 0, StateFailed},
		{"timed out stays", StateTimedOut, RemoteProcessed, 0, StateTimedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transition(tt.current, tt.remote, tt.elapsed, timeout); got != tt.want {
				t.Errorf("Transition() = %s, want %s", got, tt.want)
			}
		})
	}
	if got := Transition(StateProcessing, RemoteProcessing, 100*time.Hour, 0); got != StateProcessing {
		t.Errorf("zero timeout should disable timing out, got %s", got)
	}
}
