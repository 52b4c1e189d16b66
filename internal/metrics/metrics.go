// Package metrics holds the Prometheus collectors exported by the rq API server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rq"

// Metrics bundles the API collectors. A nil *Metrics records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	reviews         *prometheus.CounterVec
	reviewFailures  prometheus.Counter
}

// New registers the collectors with reg. Pass a fresh prometheus.NewRegistry() in
// tests to keep them isolated.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route pattern and status code.",
		}, []string{"route", "code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		reviews: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Accepted review verdicts by resulting submission status.",
		}, []string{"status"}),
		reviewFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_rejections_total",
			Help:      "Review updates refused by validation.",
		}),
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ReviewAccepted counts a persisted verdict.
func (m *Metrics) ReviewAccepted(status string) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(status).Inc()
}

// ReviewRefused counts a review update that failed validation.
func (m *Metrics) ReviewRefused() {
	if m == nil {
		return
	}
	m.reviewFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
