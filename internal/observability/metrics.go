package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSubscribers   prometheus.Gauge
	SubscriberEvents    *prometheus.CounterVec
	BroadcastDeliveries *prometheus.CounterVec
	TaskMutations       *prometheus.CounterVec
	HistoryEntries      prometheus.Counter
	HTTPRequestLatency  *prometheus.HistogramVec

	perf *perfWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_active_subscribers",
			Help:      "Number of open realtime websocket subscribers.",
		}),
		SubscriberEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_subscriber_events_total",
			Help:      "Realtime subscriber lifecycle events by type.",
		}, []string{"event"}),
		BroadcastDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_deliveries_total",
			Help:      "Realtime message deliveries by event and result.",
		}, []string{"event", "result"}),
		TaskMutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_mutations_total",
			Help:      "Task mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		HistoryEntries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_appends_total",
			Help:      "History entries appended, counted before the enclosing transaction commits.",
		}),
		HTTPRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds by route, method and status.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"route", "method", "status"}),
		perf: newPerfWindow(256),
	}
}

func (m *Metrics) ObserveTaskMutation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.TaskMutations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveHTTPRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestLatency.WithLabelValues(route, method, strconv.Itoa(status)).Observe(millis(d))
	m.perf.observeRequest(method, route, status, d)
}

// ObserveBroadcast records one fan-out pass of a realtime event.
func (m *Metrics) ObserveBroadcast(event string, delivered, failed int, d time.Duration) {
	if m == nil {
		return
	}
	if delivered > 0 {
		m.BroadcastDeliveries.WithLabelValues(event, "delivered").Add(float64(delivered))
	}
	if failed > 0 {
		m.BroadcastDeliveries.WithLabelValues(event, "failed").Add(float64(failed))
	}
	m.perf.observeBroadcast(delivered, failed, d)
}

func (m *Metrics) SnapshotPerf() PerfSnapshot {
	if m == nil {
		return PerfSnapshot{GeneratedAt: time.Now().UTC(), Routes: []RouteStats{}}
	}
	return m.perf.snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
