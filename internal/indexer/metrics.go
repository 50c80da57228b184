package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reindex kinds used as metric labels.
const (
	kindFull = "full"
	kindList = "list"
)

var (
	// reindexTotal counts reindex runs by index, kind and result.
	reindexTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statsidx",
		Subsystem: "indexer",
		Name:      "reindex_total",
		Help:      "Reindex runs by index, kind and result",
	}, []string{"index", "kind", "result"})

	// reindexDuration tracks reindex latency.
	reindexDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "statsidx",
		Subsystem: "indexer",
		Name:      "reindex_duration_seconds",
		Help:      "Reindex duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
	}, []string{"index", "kind"})

	// reindexRows counts index rows written.
	reindexRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statsidx",
		Subsystem: "indexer",
		Name:      "reindex_rows_total",
		Help:      "Index rows written by index and kind",
	}, []string{"index", "kind"})

	changelogPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "statsidx",
		Subsystem: "indexer",
		Name:      "changelog_pending",
		Help:      "Pending changelog entries observed at the last runner tick",
	}, []string{"index"})

	changelogAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statsidx",
		Subsystem: "indexer",
		Name:      "changelog_appended_total",
		Help:      "Natural ids appended to the changelog",
	}, []string{"index"})

	// runnerSkipped counts ticks that found the index locked by another reindex.
	runnerSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statsidx",
		Subsystem: "indexer",
		Name:      "runner_skipped_total",
		Help:      "Runner ticks skipped because the index was busy",
	}, []string{"index"})
)

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
