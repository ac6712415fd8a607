// Package workspace owns the per-job temporary directories: allocation,
// deferred and immediate removal, and periodic sweeping of leftovers.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/storymill/storymill-render/internal/failure"
)

const (
	DefaultRetention     = time.Hour
	DefaultSweepInterval = 30 * time.Minute

	lockFileName = ".sweep.lock"
)

// Config holds the manager's settings.
type Config struct {
	Root      string
	Retention time.Duration
	Logger    *slog.Logger

	// OnRemove is called once for every workspace removed, tracked or not.
	OnRemove func(jobID string)
}

// Workspace is one job's exclusively owned directory.
type Workspace struct {
	JobID string
	Dir   string

	once sync.Once
}

// Manager allocates and reclaims workspaces.
type Manager struct {
	root      string
	retention time.Duration
	logger    *slog.Logger
	onRemove  func(jobID string)
	now       func() time.Time

	mu      sync.Mutex
	live    map[string]*Workspace
	timers  map[string]*time.Timer
	stopped bool
}

// NewManager creates the temp root if needed.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Root == "" {
		return nil, errors.New("workspace root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		root:      cfg.Root,
		retention: cfg.Retention,
		logger:    logger.With("component", "workspace"),
		onRemove:  cfg.OnRemove,
		now:       time.Now,
		live:      make(map[string]*Workspace),
		timers:    make(map[string]*time.Timer),
	}, nil
}

// Root returns the temp root directory.
func (m *Manager) Root() string { return m.root }

// Retention returns how long finished workspaces are kept.
func (m *Manager) Retention() time.Duration { return m.retention }

// Allocate creates {root}/{jobID}. It fails if the directory already exists.
func (m *Manager) Allocate(jobID string) (*Workspace, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." || strings.HasPrefix(jobID, ".") {
		return nil, failure.Wrap(failure.ErrValidation, "workspace", "allocate", fmt.Sprintf("invalid job id %q", jobID), nil)
	}
	dir := filepath.Join(m.root, jobID)
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, failure.Wrap(failure.ErrStorage, "workspace", "allocate", "", err)
	}

	ws := &Workspace{JobID: jobID, Dir: dir}
	m.mu.Lock()
	m.live[jobID] = ws
	m.mu.Unlock()

	m.logger.Debug("workspace allocated", "job_id", jobID)
	return ws, nil
}

// ScheduleRemoval removes ws after the given delay. A non-positive delay uses
// the configured retention. Scheduling again replaces the previous timer.
func (m *Manager) ScheduleRemoval(ws *Workspace, after time.Duration) {
	if after <= 0 {
		after = m.retention
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	// already removed, e.g. by a sweep
	if cur, ok := m.live[ws.JobID]; !ok || cur != ws {
		return
	}
	if t, ok := m.timers[ws.JobID]; ok {
		t.Stop()
	}
	m.timers[ws.JobID] = time.AfterFunc(after, func() { m.Remove(ws) })
}

// Remove deletes ws now. It is safe to call repeatedly; only the first call
// has any effect. Errors are logged, not returned.
func (m *Manager) Remove(ws *Workspace) {
	ws.once.Do(func() {
		m.mu.Lock()
		if t, ok := m.timers[ws.JobID]; ok {
			t.Stop()
			delete(m.timers, ws.JobID)
		}
		delete(m.live, ws.JobID)
		m.mu.Unlock()

		if err := os.RemoveAll(ws.Dir); err != nil {
			m.logger.Warn("workspace removal failed", "job_id", ws.JobID, "error", err)
		} else {
			m.logger.Info("workspace removed", "job_id", ws.JobID)
		}
		if m.onRemove != nil {
			m.onRemove(ws.JobID)
		}
	})
}

// Sweep removes entries under the root whose modification time is older than
// the retention. Only one process sweeps at a time; if another holds the lock
// the sweep is skipped and 0 is returned.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	lock := flock.New(filepath.Join(m.root, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return 0, failure.Wrap(failure.ErrStorage, "workspace", "sweep lock", "", err)
	}
	if !locked {
		m.logger.Debug("sweep already running elsewhere, skipping")
		return 0, nil
	}
	defer lock.Unlock()

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, failure.Wrap(failure.ErrStorage, "workspace", "sweep list", "", err)
	}

	cutoff := m.now().Add(-m.retention)
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		name := e.Name()
		if name == lockFileName {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// vanished between ReadDir and Info
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		m.mu.Lock()
		ws, tracked := m.live[name]
		m.mu.Unlock()

		if tracked {
			m.Remove(ws)
			removed++
			continue
		}

		if err := os.RemoveAll(filepath.Join(m.root, name)); err != nil {
			m.logger.Warn("sweep removal failed", "entry", name, "error", err)
			continue
		}
		if m.onRemove != nil && info.IsDir() {
			m.onRemove(name)
		}
		removed++
	}

	if removed > 0 {
		m.logger.Info("sweep complete", "removed", removed)
	}
	return removed, nil
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("periodic sweep failed", "error", err)
			}
		}
	}
}

// Pending returns the number of workspaces waiting for deferred removal.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Stop cancels all pending removal timers. Workspaces stay on disk and are
// reclaimed by a later sweep.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}
