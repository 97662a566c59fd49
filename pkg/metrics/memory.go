package metrics

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemorySink keeps metrics in process.
type MemorySink struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
}

// NewMemorySink creates an empty in-process sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
	}
}

func (m *MemorySink) IncrementCounter(_ context.Context, name string, amount int64) {
	if amount == 0 {
		return
	}
	m.mu.Lock()
	m.counters[name] += amount
	m.mu.Unlock()
}

func (m *MemorySink) SetGauge(_ context.Context, name string, value float64) {
	m.mu.Lock()
	m.gauges[name] = value
	m.mu.Unlock()
}

func (m *MemorySink) RecordLatency(_ context.Context, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, n := range latencyIncrements(latency) {
		m.counters[name] += n
	}
}

// Snapshot copies the current values.
func (m *MemorySink) Snapshot(context.Context) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newSnapshot(time.Now().UTC(), m.counters, m.gauges)
}

// Counter returns the current value of one counter.
func (m *MemorySink) Counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// Gauge returns the current value of one gauge.
func (m *MemorySink) Gauge(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[name]
}

func (m *MemorySink) values() (map[string]int64, map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.counters), maps.Clone(m.gauges)
}
