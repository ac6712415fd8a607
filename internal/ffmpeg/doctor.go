package ffmpeg

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// VersionSource reports the encoder version or an error if it is unusable.
type VersionSource interface {
	Version(ctx context.Context) (string, error)
}

// CachedDoctor caches encoder check results with a TTL so that strategy
// selection does not spawn a subprocess for every job.
type CachedDoctor struct {
	source VersionSource
	binary string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor creates a caching wrapper around encoder version checks.
func NewCachedDoctor(source VersionSource, binary string, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		source: source,
		binary: binary,
		ttl:    defaultCacheTTL,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns cached capabilities if fresh, otherwise re-checks.
func (d *CachedDoctor) Get(ctx context.Context) *Capabilities {
	d.mu.RLock()
	if d.cached != nil && d.now().Sub(d.cached.CheckedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

// Peek returns the last result without checking, or nil.
func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new check regardless of cache freshness. A failed check
// after a successful one keeps the previous result.
func (d *CachedDoctor) Refresh(ctx context.Context) *Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()

	version, err := d.source.Version(ctx)
	if err != nil {
		d.logger.Warn("encoder check failed", "error", err)
		if d.cached != nil && d.cached.Available {
			d.logger.Info("returning stale capabilities cache")
			return d.cached
		}
		d.cached = &Capabilities{
			Available: false,
			Binary:    d.binary,
			Error:     err.Error(),
			CheckedAt: d.now(),
		}
		return d.cached
	}

	d.cached = &Capabilities{
		Available: true,
		Version:   version,
		Binary:    d.binary,
		CheckedAt: d.now(),
	}
	d.logger.Info("encoder check complete", "version", version)
	return d.cached
}

// Invalidate clears the cached capabilities.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
