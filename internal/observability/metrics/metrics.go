package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metric names other packages read back from a Gatherer.
const (
	RequestsTotalName      = "vetclinic_transport_requests_total"
	InvalidationsTotalName = "vetclinic_session_invalidations_total"
	SubmissionsTotalName   = "vetclinic_booking_submissions_total"
	RequestLatencyName     = "vetclinic_transport_request_latency_seconds"
)

// ClientMetrics exposes counters/histograms for the booking client.
type ClientMetrics struct {
	requestsTotal      *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	invalidationsTotal *prometheus.CounterVec
	submissionsTotal   *prometheus.CounterVec
}

func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	m := &ClientMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetclinic",
			Subsystem: "transport",
			Name:      "requests_total",
			Help:      "Total backend API requests by route and status",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vetclinic",
			Subsystem: "transport",
			Name:      "request_latency_seconds",
			Help:      "Latency of backend API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		invalidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetclinic",
			Subsystem: "session",
			Name:      "invalidations_total",
			Help:      "Sessions torn down by the transport layer",
		}, []string{"reason"}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetclinic",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Appointment submissions by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestLatency, m.invalidationsTotal, m.submissionsTotal)
	return m
}

// ObserveRequest records one finished request. status is the HTTP status
// code as text, or "error" when no response arrived.
func (m *ClientMetrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, status).Inc()
	m.requestLatency.WithLabelValues(method, route).Observe(seconds)
}

func (m *ClientMetrics) ObserveInvalidation(reason string) {
	if m == nil {
		return
	}
	m.invalidationsTotal.WithLabelValues(reason).Inc()
}

// ObserveSubmission records a booking submission; kind is "create",
// "update" or a status change, outcome is "ok", "invalid" or "failed".
func (m *ClientMetrics) ObserveSubmission(kind, outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(kind, outcome).Inc()
}
