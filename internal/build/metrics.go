package build

import (
	"sync"
	"time"
)

// Result describes one rebuild attempt.
type Result struct {
	Changed  string
	Duration time.Duration
	ExitCode int
	Error    error
}

// Snapshot is a point-in-time copy of the build counters, shaped for the
// health endpoint.
type Snapshot struct {
	Builds          int64         `json:"builds"`
	Succeeded       int64         `json:"succeeded"`
	Failed          int64         `json:"failed"`
	AverageDuration time.Duration `json:"average_duration"`
	TotalDuration   time.Duration `json:"total_duration"`
	LastDuration    time.Duration `json:"last_duration"`
	LastBuild       time.Time     `json:"last_build"`
	LastChanged     string        `json:"last_changed,omitempty"`
	LastExitCode    int           `json:"last_exit_code"`
	LastError       string        `json:"last_error,omitempty"`
}

// BuildMetrics accumulates build results. It is safe for concurrent use.
type BuildMetrics struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{}
}

// RecordBuild adds one result. A successful build clears the last error.
func (m *BuildMetrics) RecordBuild(result Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.snap
	s.Builds++
	s.TotalDuration += result.Duration
	s.AverageDuration = s.TotalDuration / time.Duration(s.Builds)
	s.LastDuration = result.Duration
	s.LastBuild = time.Now()
	s.LastChanged = result.Changed
	s.LastExitCode = result.ExitCode

	if result.Error == nil {
		s.Succeeded++
		s.LastError = ""
		return
	}
	s.Failed++
	s.LastError = result.Error.Error()
}

// Snapshot returns a copy of the counters.
func (m *BuildMetrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Reset clears all counters.
func (m *BuildMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = Snapshot{}
}

// SuccessRate returns the share of successful builds in percent, or 0
// before the first build.
func (m *BuildMetrics) SuccessRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.snap.Builds == 0 {
		return 0
	}
	return float64(m.snap.Succeeded) / float64(m.snap.Builds) * 100
}
