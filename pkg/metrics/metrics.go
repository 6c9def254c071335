package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tree/log metrics
	PendingOperations = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bkmsync_pending_operations",
			Help: "Pending (unprocessed, local) operations by namespace",
		},
		[]string{"namespace"},
	)

	TreeNodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bkmsync_tree_nodes_total",
			Help: "Materialized node count by namespace and kind",
		},
		[]string{"namespace", "kind"},
	)

	OperationsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bkmsync_operations_dispatched_total",
			Help: "Total operations dispatched by tag",
		},
		[]string{"tag"},
	)

	OperationsAppliedRemoteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bkmsync_operations_applied_remote_total",
			Help: "Total remote operations applied by tag",
		},
		[]string{"tag"},
	)

	// Event stream metrics
	StreamStateChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bkmsync_stream_state_changes_total",
			Help: "Event stream state transitions by resulting state",
		},
		[]string{"state"},
	)

	ReconnectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bkmsync_reconnect_attempts_total",
			Help: "Total reconnect attempts by namespace",
		},
		[]string{"namespace"},
	)

	// Sync scheduler metrics
	SyncCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bkmsync_sync_cycles_total",
			Help: "Total sync cycles run by namespace and outcome",
		},
		[]string{"namespace", "outcome"},
	)

	SyncCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bkmsync_sync_cycle_duration_seconds",
			Help:    "Sync cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"namespace"},
	)

	OperationDeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bkmsync_operation_delivery_duration_seconds",
			Help:    "Time to deliver one operation to the remote service",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Fan-out metrics
	FanoutSubscribersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bkmsync_fanout_subscribers_total",
			Help: "Currently connected tab subscribers",
		},
	)

	FanoutMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bkmsync_fanout_messages_total",
			Help: "Total fan-out messages published by type",
		},
		[]string{"type"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bkmsync_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bkmsync_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(PendingOperations)
	prometheus.MustRegister(TreeNodesTotal)
	prometheus.MustRegister(OperationsDispatchedTotal)
	prometheus.MustRegister(OperationsAppliedRemoteTotal)
	prometheus.MustRegister(StreamStateChangesTotal)
	prometheus.MustRegister(ReconnectAttemptsTotal)
	prometheus.MustRegister(SyncCyclesTotal)
	prometheus.MustRegister(SyncCycleDuration)
	prometheus.MustRegister(OperationDeliveryDuration)
	prometheus.MustRegister(FanoutSubscribersTotal)
	prometheus.MustRegister(FanoutMessagesTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
