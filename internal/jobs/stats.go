package jobs

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// StatsCollector accumulates counters and timings for one job.
type StatsCollector interface {
	Count(name string, delta int)
	Observe(name string, d time.Duration)
	Finish(status string)
}

// StatsFactory creates the collector for a job.
type StatsFactory func(jobID string) StatsCollector

// MemoryStats keeps a job's stats in memory and logs them as one line when
// the job finishes.
type MemoryStats struct {
	logger *slog.Logger
	start  time.Time

	mu       sync.Mutex
	counts   map[string]int
	timings  map[string]time.Duration
	finished bool
}

// NewMemoryStatsFactory returns a factory whose collectors log through logger.
func NewMemoryStatsFactory(logger *slog.Logger) StatsFactory {
	return func(jobID string) StatsCollector {
		return NewMemoryStats(logger.With("job_id", jobID))
	}
}

func NewMemoryStats(logger *slog.Logger) *MemoryStats {
	return &MemoryStats{
		logger:  logger,
		start:   time.Now(),
		counts:  make(map[string]int),
		timings: make(map[string]time.Duration),
	}
}

func (s *MemoryStats) Count(name string, delta int) {
	s.mu.Lock()
	s.counts[name] += delta
	s.mu.Unlock()
}

func (s *MemoryStats) Observe(name string, d time.Duration) {
	s.mu.Lock()
	s.timings[name] += d
	s.mu.Unlock()
}

// Counter returns the current value of a counter.
func (s *MemoryStats) Counter(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

// Timing returns the accumulated duration for name.
func (s *MemoryStats) Timing(name string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timings[name]
}

// Finish logs the summary. Only the first call logs.
func (s *MemoryStats) Finish(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true

	attrs := []any{"status", status, "total_ms", time.Since(s.start).Milliseconds()}
	for _, name := range sortedKeys(s.counts) {
		attrs = append(attrs, name, s.counts[name])
	}
	for _, name := range sortedKeys(s.timings) {
		attrs = append(attrs, name+"_ms", s.timings[name].Milliseconds())
	}
	s.logger.Info("job stats", attrs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
