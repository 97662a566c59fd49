// Package ops serves the worker's operational HTTP surface: liveness and
// readiness probes, the metrics snapshot in Prometheus text and JSON form,
// and read-only admin views of dead-lettered deliveries and feature flags.
package ops
