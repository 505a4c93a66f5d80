// Package metrics holds the HTTP-level Prometheus metrics shared by the
// transport layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the transport metrics.
type Metrics struct {
	Requests       *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
	RateLimited    *prometheus.CounterVec
}

// New registers the transport metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "biblioteca_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "biblioteca_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "biblioteca_http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		}, []string{"route"}),
	}
}

func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	m.Requests.WithLabelValues(method, route, status).Inc()
	m.RequestLatency.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) IncrementRateLimited(route string) {
	m.RateLimited.WithLabelValues(route).Inc()
}
