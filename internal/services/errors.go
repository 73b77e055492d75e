// Package services holds the error taxonomy shared by every pipeline stage.
//
// Stage code tags failures with one of the sentinel markers below, either
// through Wrap or through a typed error whose Is method reports the marker.
// The CLI maps the marker to an exit code and schedulers use Retryable to
// decide whether re-running a stage is worthwhile.
package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrRemoteCall       = errors.New("remote call error")
	ErrTokenAcquisition = errors.New("token acquisition error")
	ErrIndexingFailed   = errors.New("indexing failure")
	ErrIndexingTimeout  = errors.New("indexing timeout")
	ErrAlignment        = errors.New("alignment error")
	ErrNotFound         = errors.New("not found")
	ErrExternalTool     = errors.New("external tool error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker. A nil marker is treated as ErrExternalTool.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Validation is shorthand for a ValidationError raised before any network call.
func Validation(stage, message string) error {
	return Wrap(ErrValidation, stage, "", message, nil)
}

// statusCoder is implemented by remote call errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// Retryable reports whether re-running the failed stage can reasonably
// succeed. Timeouts and server-side (5xx) remote errors qualify; indexing
// failures, validation problems and client errors never do.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrIndexingFailed) || errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration) {
		return false
	}
	if errors.Is(err, ErrIndexingTimeout) {
		return true
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus() >= 500
	}
	return false
}

// Process exit codes reported by the CLI.
const (
	ExitOK              = 0
	ExitGeneric         = 1
	ExitValidation      = 2
	ExitRemoteCall      = 3
	ExitIndexingFailed  = 4
	ExitIndexingTimeout = 5
	ExitAlignment       = 6
)

// ExitCode maps an error to the process exit code for its category.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return ExitValidation
	case errors.Is(err, ErrIndexingFailed):
		return ExitIndexingFailed
	case errors.Is(err, ErrIndexingTimeout):
		return ExitIndexingTimeout
	case errors.Is(err, ErrAlignment):
		return ExitAlignment
	case errors.Is(err, ErrRemoteCall), errors.Is(err, ErrTokenAcquisition):
		return ExitRemoteCall
	default:
		return ExitGeneric
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
