package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPCollector records request counts and latencies of the inspection API.
type HTTPCollector struct {
	Requests  *prometheus.CounterVec
	Durations *prometheus.HistogramVec
}

// NewHTTPCollector registers HTTP metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewHTTPCollector(reg prometheus.Registerer) (*HTTPCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Total number of handled API requests, labeled by method, route, and status code.",
	}, []string{"method", "route", "code"}), "api_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "API request latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "route"}), "api_request_duration_seconds")
	if err != nil {
		return nil, err
	}
	return &HTTPCollector{Requests: requests, Durations: durations}, nil
}

// Middleware records every request handled by a gin engine. Unmatched paths
// are reported under the route "unknown" to keep label cardinality bounded.
func (c *HTTPCollector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		if c == nil {
			return
		}
		route := ctx.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := ctx.Request.Method
		code := strconv.Itoa(ctx.Writer.Status())

		if c.Requests != nil {
			c.Requests.WithLabelValues(method, route, code).Inc()
		}
		if c.Durations != nil {
			c.Durations.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		}
	}
}
