package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "transactions_total",
			Help:      "Transactions processed, by kind and final status.",
		},
		[]string{"kind", "status"},
	)

	commitRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "commit_retries_total",
			Help:      "Commit attempts retried after a serialization conflict.",
		},
	)

	commitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "commit_duration_seconds",
			Help:      "Wall time of commit scopes, by transaction kind.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	sweepOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "sweep_transactions_total",
			Help:      "Pending transactions swept, by outcome.",
		},
		[]string{"outcome"},
	)
)
