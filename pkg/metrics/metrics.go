package metrics

import (
	"context"
	"maps"
	"time"
)

// Counter and gauge names written by the reminder pipeline.
const (
	ReminderScheduled   = "reminder_scheduled"
	ReminderSent        = "reminder_sent"
	ReminderCanceled    = "reminder_canceled"
	ReminderError       = "reminder_error"
	WorkerUptimeSeconds = "worker_uptime_seconds"

	LatencyCount        = "reminder_latency_count"
	LatencySum          = "reminder_latency_sum"
	latencyBucketPrefix = "reminder_latency_bucket:"
)

// Sink receives pipeline metrics. Implementations are best effort: a
// failing backend must never fail the caller.
type Sink interface {
	IncrementCounter(ctx context.Context, name string, amount int64)
	SetGauge(ctx context.Context, name string, value float64)
	RecordLatency(ctx context.Context, latency time.Duration)
	Snapshot(ctx context.Context) Snapshot
}

// Snapshot is a point-in-time copy of every counter and gauge.
type Snapshot struct {
	Timestamp time.Time          `json:"timestamp"`
	Counters  map[string]int64   `json:"counters"`
	Gauges    map[string]float64 `json:"gauges"`
	// Histogram maps bucket labels (le_30s ... le_inf) to cumulative counts.
	Histogram map[string]int64 `json:"histogram"`
}

type bucket struct {
	label string
	upper time.Duration // zero means +Inf
}

var latencyBuckets = []bucket{
	{"le_30s", 30 * time.Second},
	{"le_1m", time.Minute},
	{"le_2m", 2 * time.Minute},
	{"le_5m", 5 * time.Minute},
	{"le_10m", 10 * time.Minute},
	{"le_inf", 0},
}

// latencyIncrements lists the counter bumps one latency observation causes.
// Buckets are cumulative: an observation counts in its bucket and every larger one.
func latencyIncrements(latency time.Duration) map[string]int64 {
	latency = max(latency, 0)
	out := map[string]int64{
		LatencyCount: 1,
		LatencySum:   int64(latency / time.Second),
	}
	for _, b := range latencyBuckets {
		if b.upper == 0 || latency <= b.upper {
			out[latencyBucketPrefix+b.label] = 1
		}
	}
	return out
}

// newSnapshot fills in the well-known names so they always render, even at zero.
func newSnapshot(now time.Time, counters map[string]int64, gauges map[string]float64) Snapshot {
	s := Snapshot{
		Timestamp: now,
		Counters:  make(map[string]int64, len(counters)+5),
		Gauges:    make(map[string]float64, len(gauges)+1),
		Histogram: make(map[string]int64, len(latencyBuckets)),
	}
	maps.Copy(s.Counters, counters)
	maps.Copy(s.Gauges, gauges)

	for _, name := range []string{ReminderScheduled, ReminderSent, ReminderCanceled, ReminderError, LatencyCount, LatencySum} {
		s.Counters[name] += 0
	}
	s.Gauges[WorkerUptimeSeconds] += 0

	for _, b := range latencyBuckets {
		s.Histogram[b.label] = s.Counters[latencyBucketPrefix+b.label]
	}
	return s
}
