// Package events publishes job lifecycle notifications to NATS on
// notes.job.<stage>.<status> subjects. Publishing is best effort: a
// missing or unreachable broker never fails a pipeline stage.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const SubjectPrefix = "notes.job"

const (
	StatusStarted   = "started"
	StatusProgress  = "progress"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Event is the JSON payload of every message.
type Event struct {
	EventID   string         `json:"event_id"`
	JobID     string         `json:"job_id"`
	Stage     string         `json:"stage"`
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Subject returns the subject the event is published on.
func (e Event) Subject() string {
	return Subject(e.Stage, e.Status)
}

func Subject(stage, status string) string {
	return SubjectPrefix + "." + token(stage) + "." + token(status)
}

// token keeps subject tokens free of the separator and wildcards.
func token(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// New fills the id and timestamp of an event.
func New(jobID, stage, status string, metadata map[string]any) Event {
	return Event{
		EventID:   uuid.NewString(),
		JobID:     jobID,
		Stage:     stage,
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Metadata:  metadata,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// PublishFunc sends raw bytes on a subject.
type PublishFunc func(subject string, data []byte) error

// NATSPublisher encodes events as JSON and hands them to a PublishFunc,
// which is the connection's Publish outside of tests.
type NATSPublisher struct {
	nc      *nats.Conn
	publish PublishFunc
	logger  *slog.Logger
}

// Connect dials url with reconnects enabled. The connection is retried in
// the background when the broker is down at startup.
func Connect(url string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("heimdex-notes"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSPublisher{nc: nc, publish: nc.Publish, logger: logger}, nil
}

// NewPublisher wraps an arbitrary PublishFunc.
func NewPublisher(fn PublishFunc, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{publish: fn, logger: logger}
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	subject := e.Subject()
	if err := p.publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("event published", "subject", subject, "job_id", e.JobID)
	return nil
}

// Close drains pending messages before closing the connection.
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

// Nop discards events. It is used when no broker URL is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close()                               {}

// Open returns a NATS publisher for url, or Nop when url is empty.
func Open(url string, logger *slog.Logger) (Publisher, error) {
	if strings.TrimSpace(url) == "" {
		return Nop{}, nil
	}
	return Connect(url, logger)
}

// Emit publishes e and logs, rather than returns, any failure.
func Emit(ctx context.Context, p Publisher, logger *slog.Logger, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil && logger != nil {
		logger.Warn("failed to publish event", "subject", e.Subject(), "error", err)
	}
}
