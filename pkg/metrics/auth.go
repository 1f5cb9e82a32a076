package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AuthMetrics records protocol request outcomes. A nil *AuthMetrics is
// valid and records nothing, so callers never need to branch on whether
// metrics are enabled.
type AuthMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewAuthMetrics registers the authentication metrics on reg.
func NewAuthMetrics(reg *prometheus.Registry) *AuthMetrics {
	if reg == nil {
		return nil
	}

	return &AuthMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketd_auth_requests_total",
				Help: "Total authentication requests by method and outcome",
			},
			[]string{"method", "outcome"}, // outcome: "ok", "not_available", "rejected", "session_expired", "error"
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticketd_auth_request_duration_seconds",
				Help:    "Authentication request duration by method",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// RecordRequest records one completed request.
func (m *AuthMetrics) RecordRequest(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(duration.Seconds())
}
