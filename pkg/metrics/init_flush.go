package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initFlushMetrics() {
	r.FlushesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_flushes_total",
			Help: "Total number of memtable-to-SSTable flushes",
		},
		[]string{"status"},
	)

	r.FlushDurationSeconds = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_flush_duration_seconds",
			Help:    "Duration of a memtable flush to an SSTable",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)

	r.FlushedBytesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_flushed_bytes_total",
			Help: "Total bytes written to SSTables by flushes",
		},
	)
}

func (r *Registry) initCompactionMetrics() {
	r.CompactionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_compactions_total",
			Help: "Total number of compaction runs",
		},
		[]string{"status"},
	)

	r.CompactionDurationSeconds = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_compaction_duration_seconds",
			Help:    "Duration of a compaction run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		},
	)

	r.SSTableCount = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledger_sstable_count",
			Help: "Number of SSTables per level",
		},
		[]string{"level"},
	)
}

func (r *Registry) initCacheMetrics() {
	r.CacheHitsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_cache_hits_total",
			Help: "Total block cache hits",
		},
	)

	r.CacheMissesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_cache_misses_total",
			Help: "Total block cache misses",
		},
	)

	r.CacheSizeEntries = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_cache_size_entries",
			Help: "Current number of entries held by the block cache",
		},
	)

	r.BloomFalsePositivesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_bloom_false_positives_total",
			Help: "Estimated Bloom filter false positives observed during reads",
		},
	)

	r.BloomNegativesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_bloom_negatives_total",
			Help: "Total reads short-circuited by a definite Bloom filter negative",
		},
	)
}
