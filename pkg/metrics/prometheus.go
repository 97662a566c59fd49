package metrics

import (
	"fmt"
	"io"
	"strconv"
)

var bucketBounds = map[string]string{
	"le_30s": "30",
	"le_1m":  "60",
	"le_2m":  "120",
	"le_5m":  "300",
	"le_10m": "600",
	"le_inf": "+Inf",
}

// WritePrometheus renders s in the Prometheus text exposition format (0.0.4).
func WritePrometheus(w io.Writer, s Snapshot) error {
	p := &errWriter{w: w}

	p.printf("# TYPE ai_reminder_total counter\n")
	for _, st := range []struct{ label, name string }{
		{"scheduled", ReminderScheduled},
		{"sent", ReminderSent},
		{"canceled", ReminderCanceled},
		{"error", ReminderError},
	} {
		p.printf("ai_reminder_total{status=%q} %d\n", st.label, s.Counters[st.name])
	}

	p.printf("# TYPE ai_worker_heartbeat_timestamp_seconds gauge\n")
	p.printf("ai_worker_heartbeat_timestamp_seconds %s\n", strconv.FormatFloat(s.Gauges[WorkerUptimeSeconds], 'f', -1, 64))

	p.printf("# TYPE ai_reminder_latency_seconds histogram\n")
	for _, b := range latencyBuckets {
		p.printf("ai_reminder_latency_seconds_bucket{le=%q} %d\n", bucketBounds[b.label], s.Histogram[b.label])
	}
	p.printf("ai_reminder_latency_seconds_sum %d\n", s.Counters[LatencySum])
	p.printf("ai_reminder_latency_seconds_count %d\n", s.Counters[LatencyCount])

	return p.err
}

// ContentType is the header value for WritePrometheus output.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
