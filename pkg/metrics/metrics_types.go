package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the storage engine.
type Registry struct {
	// Memtable metrics
	MemtablePutsTotal      *prometheus.CounterVec
	MemtableGetsTotal       *prometheus.CounterVec
	MemtableFreezesTotal    prometheus.Counter
	MemtableThawsTotal      prometheus.Counter
	MemtableLiveRecords     prometheus.Gauge
	MemtableCapacityRecords prometheus.Gauge

	// Flush metrics
	FlushesTotal        *prometheus.CounterVec
	FlushDurationSeconds prometheus.Histogram
	FlushedBytesTotal   prometheus.Counter

	// Compaction metrics
	CompactionsTotal        *prometheus.CounterVec
	CompactionDurationSeconds prometheus.Histogram
	SSTableCount            *prometheus.GaugeVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheSizeEntries prometheus.Gauge

	// Bloom filter metrics
	BloomFalsePositivesTotal prometheus.Counter
	BloomNegativesTotal      prometheus.Counter

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initMemtableMetrics()
	r.initFlushMetrics()
	r.initCompactionMetrics()
	r.initCacheMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
