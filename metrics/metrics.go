// Package metrics holds the Prometheus collectors shared by the handlers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "otbox"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route template and status code.",
	}, []string{"method", "route", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route template.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	WebhookResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_results_total",
		Help:      "Payment webhook deliveries by outcome.",
	}, []string{"result"})

	PaymentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_created_total",
		Help:      "Hosted payments created at the gateway.",
	})

	OrdersFulfilled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_fulfilled_total",
		Help:      "Order rows written in succeeded state.",
	})

	Emails = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_total",
		Help:      "Transactional emails by template and outcome.",
	}, []string{"template", "outcome"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by a rate limiter.",
	}, []string{"limiter"})
)

// Outcome maps an error to the label used by the outcome counters.
func Outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
