package transport

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instrumentation Transport emits. A nil
// *Metrics is a fully functional no-op configuration, and NewMetrics(nil)
// builds metrics without registering them; metrics are observability only
// and never gate behavior.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	retryTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics builds and, if reg is non-nil, registers the Transport metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mixpanel_transport_requests_total",
			Help: "Total number of Provider HTTP requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		retryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mixpanel_transport_retry_total",
			Help: "Total number of retried Provider HTTP requests by endpoint.",
		}, []string{"endpoint"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mixpanel_transport_request_duration_seconds",
			Help:    "Provider HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.retryTotal, m.requestDuration)
	}
	return m
}

func (m *Metrics) observeRequest(endpoint, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(seconds)
}

func (m *Metrics) observeRetry(endpoint string) {
	if m == nil {
		return
	}
	m.retryTotal.WithLabelValues(endpoint).Inc()
}
