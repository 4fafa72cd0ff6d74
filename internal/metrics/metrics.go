// Package metrics instruments the wallet service with Prometheus. Request
// durations are labeled with the authenticated authority so per-issuer
// traffic can be charted; internal errors get their own counter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Client owns the service's Prometheus collectors. Construct exactly once at
// startup and pass by handle; collectors register against the default
// registry.
type Client struct {
	requestDuration *prometheus.HistogramVec
	internalErrors  *prometheus.CounterVec
}

// NewClient registers the service collectors under the given name prefix.
func NewClient(prefix string) *Client {
	return &Client{
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.015, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path", "status_code", "authorized_subject"}),
		internalErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "internal_error_count",
			Help: "Number of internal errors which have occurred",
		}, []string{"method", "path"}),
	}
}

// ObserveRequest records one handled request.
func (c *Client) ObserveRequest(method, path, statusCode, authorizedSubject string, duration time.Duration) {
	if c == nil {
		return
	}
	c.requestDuration.WithLabelValues(method, path, statusCode, authorizedSubject).
		Observe(duration.Seconds())
}

// CountInternalError records one internal fault.
func (c *Client) CountInternalError(method, path string) {
	if c == nil {
		return
	}
	c.internalErrors.WithLabelValues(method, path).Inc()
}
