// Package metrics defines and registers the kernel's Prometheus
// metrics: tree size and pending-operation gauges refreshed by a
// ticker-driven Collector, counters for dispatch/remote-apply/fan-out
// activity, and histograms for sync cycle and delivery latency.
// Handler exposes them for scraping; HealthHandler/ReadyHandler/
// LivenessHandler back the daemon's /healthz, /readyz, and liveness
// endpoints.
package metrics
