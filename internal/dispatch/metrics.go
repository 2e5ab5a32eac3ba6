package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	subrequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_subrequests_total",
			Help: "Downstream sub-requests dispatched, by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// dedupTotal counts sub-requests answered from an identical one in the same batch.
	dedupTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_dedup_total",
			Help: "Sub-requests served from a duplicate within the same batch.",
		},
	)
)

func init() {
	prometheus.MustRegister(subrequestsTotal, dedupTotal)
}
