package arbor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auto-commit triggers.
const (
	triggerNodes    = "nodes"
	triggerInterval = "interval"
)

var (
	commitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arbor",
		Subsystem: "txn",
		Name:      "commits_total",
		Help:      "Revisions committed by write transactions.",
	})

	commitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arbor",
		Subsystem: "txn",
		Name:      "commit_failures_total",
		Help:      "Commits that failed and discarded their pending work.",
	})

	abortsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arbor",
		Subsystem: "txn",
		Name:      "aborts_total",
		Help:      "Write transaction aborts.",
	})

	autoCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbor",
		Subsystem: "txn",
		Name:      "auto_commits_total",
		Help:      "Commits issued by a write transaction on its own, by trigger.",
	}, []string{"trigger"})

	commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "arbor",
		Subsystem: "txn",
		Name:      "commit_duration_seconds",
		Help:      "Time spent persisting and publishing a revision.",
		Buckets:   prometheus.DefBuckets,
	})

	openReadTxns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbor",
		Subsystem: "session",
		Name:      "open_read_txns",
		Help:      "Read transactions currently open.",
	})

	openWriteTxns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbor",
		Subsystem: "session",
		Name:      "open_write_txns",
		Help:      "Write transactions currently open.",
	})
)
