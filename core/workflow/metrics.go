package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finrag_runs_total",
			Help: "Total number of reasoning runs by final status",
		},
		[]string{"status"},
	)

	nodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finrag_node_duration_seconds",
			Help:    "Time spent in each workflow node",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"node"},
	)

	namespaceVotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finrag_namespace_votes_total",
			Help: "Namespace classifier votes, invalid votes are counted as invalid",
		},
		[]string{"namespace"},
	)

	stepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finrag_step_failures_total",
			Help: "Recoverable failures per workflow node",
		},
		[]string{"node"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal, nodeDuration, namespaceVotes, stepFailures)
}
