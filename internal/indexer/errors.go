package indexer

import (
	"errors"
	"fmt"
	"time"

	"github.com/heimdex/heimdex-notes/internal/services"
)

// Remote operations reported in RemoteCallError.Op.
const (
	OpToken     = "token"
	OpSubmit    = "submit"
	OpPoll      = "poll"
	OpThumbnail = "thumbnail"
)

// RemoteCallError is a failed call to the indexer API: either a transport
// error (StatusCode 0) or an unexpected HTTP status.
type RemoteCallError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteCallError) Error() string {
	if e.StatusCode == 0 && e.Err != nil {
		return fmt.Sprintf("video indexer %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("video indexer %s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

// Is matches ErrRemoteCall, and ErrTokenAcquisition for token calls.
func (e *RemoteCallError) Is(target error) bool {
	if target == services.ErrRemoteCall {
		return true
	}
	return target == services.ErrTokenAcquisition && e.Op == OpToken
}

// HTTPStatus returns the response status, 0 for transport errors.
func (e *RemoteCallError) HTTPStatus() int { return e.StatusCode }

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *RemoteCallError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// FailureError reports that the indexer finished the video in a failed
// state. Payload is the poll response body.
type FailureError struct {
	VideoID string
	State   string
	Payload []byte
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("video indexer processing failed for %s: state %s: %s", e.VideoID, e.State, truncate(string(e.Payload), 512))
}

func (e *FailureError) Is(target error) bool { return target == services.ErrIndexingFailed }

// TimeoutError reports that polling gave up before a terminal state.
type TimeoutError struct {
	VideoID   string
	Elapsed   time.Duration
	Timeout   time.Duration
	LastState string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("video indexer polling timed out for %s after %s (timeout %s, last state %q)",
		e.VideoID, e.Elapsed.Round(time.Second), e.Timeout, e.LastState)
}

func (e *TimeoutError) Is(target error) bool { return target == services.ErrIndexingTimeout }

// IsTokenError reports whether err came from the token endpoint.
func IsTokenError(err error) bool {
	return errors.Is(err, services.ErrTokenAcquisition)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
