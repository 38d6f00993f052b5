package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Events            *prometheus.CounterVec
	BackendErrors     *prometheus.CounterVec
	BackendLatency    prometheus.Histogram
	InFlightExchanges prometheus.Gauge
	TrackedUsers      prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Events: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Conversation events by kind and outcome.",
		}, []string{"kind", "outcome"}),
		BackendErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Backend exchange failures by reason.",
		}, []string{"reason"}),
		BackendLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_ms",
			Help:      "Backend exchange latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}),
		InFlightExchanges: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_exchanges",
			Help:      "Backend exchanges currently in flight.",
		}),
		TrackedUsers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_users",
			Help:      "Users with conversation state in the history store.",
		}),
	}
}

func (m *Metrics) ObserveBackendLatency(d time.Duration) {
	m.BackendLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
