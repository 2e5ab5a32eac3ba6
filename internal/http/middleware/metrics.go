// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Prometheus instrumentation for gateway traffic lives here. Labels are kept
// bounded: the route label is the registered Gin route, and requests that
// match no route share the single value "unmatched".
package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// functionsPrefix is the route prefix of the dispatchable functions.
const functionsPrefix = "/functions/v1/"

var (
	gatewayReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		},
		[]string{"method", "route", "status"},
	)

	gatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			// Generation misses wait on an LLM; cache hits return in milliseconds.
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)

	gatewayInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gateway",
			Name:      "http_requests_inflight",
			Help:      "Requests currently being served.",
		},
	)

	gatewayRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "http_response_size_bytes",
			Help:      "Response body size by route.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8), // 256B..4MiB
		},
		[]string{"method", "route"},
	)

	functionCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "function_calls_total",
			Help:      "Calls to /functions/v1 routes by function and outcome (ok, client_error, server_error).",
		},
		[]string{"function", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(gatewayReqs, gatewayLatency, gatewayInflight, gatewayRespSize, functionCalls)
}

// Metrics records request counts, latency, in-flight concurrency and response
// sizes, plus a per-function outcome counter for the function routes.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		gatewayInflight.Inc()
		defer gatewayInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		status := c.Writer.Status()

		gatewayReqs.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		gatewayLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			gatewayRespSize.WithLabelValues(method, route).Observe(float64(size))
		}
		if fn, ok := strings.CutPrefix(route, functionsPrefix); ok && fn != "" {
			functionCalls.WithLabelValues(fn, outcomeOf(status)).Inc()
		}
	}
}

func outcomeOf(status int) string {
	switch {
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return "ok"
	}
}
