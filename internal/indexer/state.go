package indexer

import "time"

// State is the lifecycle of one indexing job as seen by the poller.
type State string

const (
	StateSubmitted  State = "Submitted"
	StateProcessing State = "Processing"
	StateProcessed  State = "Processed"
	StateFailed     State = "Failed"
	StateTimedOut   State = "TimedOut"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateProcessed, StateFailed, StateTimedOut:
		return true
	default:
		return false
	}
}

// Remote states reported by the indexer's poll endpoint.
const (
	RemoteUploaded   = "Uploaded"
	RemoteProcessing = "Processing"
	RemoteProcessed  = "Processed"
	RemoteFailed     = "Failed"
	RemoteError      = "Error"
)

// Transition computes the next state from the current one, the state field
// of a poll response and the time elapsed since submission. A terminal
// remote state wins over the timeout; a zero timeout disables it.
func Transition(current State, remote string, elapsed, timeout time.Duration) State {
	if current.Terminal() {
		return current
	}
	switch remote {
	case RemoteProcessed:
		return StateProcessed
	case RemoteFailed, RemoteError:
		return StateFailed
	}
	if timeout > 0 && elapsed > timeout {
		return StateTimedOut
	}
	return StateProcessing
}
