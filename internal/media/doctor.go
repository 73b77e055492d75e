package media

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// Doctor probes the external tools the acquire stage depends on.
func (a *Acquirer) Doctor(ctx context.Context) (*Capabilities, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	caps := &Capabilities{ProbedAt: time.Now()}
	for _, tool := range []struct{ name, preferred string }{
		{ToolFFmpeg, a.cfg.FFmpegPath},
		{ToolYTDLP, a.cfg.YTDLPPath},
	} {
		status := ToolStatus{Name: tool.name}
		if p, err := resolveTool(tool.preferred, tool.name); err != nil {
			status.Error = err.Error()
		} else {
			status.Available = true
			status.Path = p
		}
		caps.Tools = append(caps.Tools, status)
	}
	a.cfg.Logger.Info("doctor probe complete", "all_ok", caps.AllOK(), "tools", len(caps.Tools))
	return caps, nil
}

// Prober is implemented by Acquirer.
type Prober interface {
	Doctor(ctx context.Context) (*Capabilities, error)
}

// CachedDoctor wraps a Prober to cache probe results with a configurable TTL.
// The API health endpoint uses it to avoid a PATH scan per request.
type CachedDoctor struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor creates a caching wrapper around doctor probes.
func NewCachedDoctor(prober Prober, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		prober: prober,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

// Refresh forces a new doctor probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.Doctor(ctx)
	if err != nil {
		d.logger.Warn("doctor probe failed", "error", err)
		// Return stale cache if available
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache")
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = caps
	return caps, nil
}
