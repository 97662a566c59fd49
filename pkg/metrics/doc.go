// Package metrics collects reminder pipeline counters, a latency histogram
// and a heartbeat gauge, and writes structured lifecycle events.
//
// RedisSink shares counters across replicas through the "metrics:counters"
// hash and degrades to an in-process MemorySink while Redis is unavailable.
// WritePrometheus renders a Snapshot for scraping.
package metrics
