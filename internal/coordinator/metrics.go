package coordinator

import "github.com/prometheus/client_golang/prometheus"

var (
	// flushesTotal counts batch calls made by any Manager in the process.
	flushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coordinator_flushes_total",
			Help: "Total number of batch flushes sent by the coordinator.",
		},
	)

	// requestsTotal counts Add outcomes: enqueued, reused, throttled.
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordinator_requests_total",
			Help: "Requests seen by the coordinator by outcome.",
		},
		[]string{"outcome"},
	)

	flushSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coordinator_flush_size",
			Help:    "Number of sub-requests per flushed batch.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
		},
	)
)

func init() {
	prometheus.MustRegister(flushesTotal, requestsTotal, flushSize)
}
