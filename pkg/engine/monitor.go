// pkg/engine/monitor.go
package engine

import (
	"sync"
	"time"
)

// TickStats summarises observed tick compute durations
type TickStats struct {
	Samples int           `json:"samples"`
	Average time.Duration `json:"average"`
	Max     time.Duration `json:"max"`
	Last    time.Duration `json:"last"`
}

// Headroom returns how many ticks of the measured average cost fit into one
// timestep. Values below 1 mean the loop cannot keep real time.
func (s TickStats) Headroom(timestep time.Duration) float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(timestep) / float64(s.Average)
}

// TickMonitor accumulates timing statistics for the simulation loop. It is
// written by the loop and read by health checks and telemetry.
type TickMonitor struct {
	mu      sync.Mutex
	samples int
	total   time.Duration
	max     time.Duration
	last    time.Duration
}

// NewTickMonitor creates an empty monitor
func NewTickMonitor() *TickMonitor {
	return &TickMonitor{}
}

// Observe records the duration of a completed tick
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	m.mu.Unlock()
}

// Stats returns a copy of the aggregated statistics
func (m *TickMonitor) Stats() TickStats {
	if m == nil {
		return TickStats{}
	}
	m.mu.Lock()
	stats := TickStats{Samples: m.samples, Max: m.max, Last: m.last}
	if m.samples > 0 {
		stats.Average = m.total / time.Duration(m.samples)
	}
	m.mu.Unlock()
	return stats
}

// Reset clears the accumulated statistics
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.samples = 0
	m.total = 0
	m.max = 0
	m.last = 0
	m.mu.Unlock()
}
