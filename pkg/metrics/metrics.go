package metrics

import (
	"strconv"
	"time"
)

// RecordPut records a memtable write.
func (r *Registry) RecordPut(label string) {
	r.MemtablePutsTotal.WithLabelValues(label).Inc()
}

// RecordGet records a memtable test/fuzz lookup and whether it hit.
func (r *Registry) RecordGet(label string, hit bool) {
	hitLabel := "miss"
	if hit {
		hitLabel = "hit"
	}
	r.MemtableGetsTotal.WithLabelValues(label, hitLabel).Inc()
}

// RecordFreeze records a memtable freeze transition.
func (r *Registry) RecordFreeze() {
	r.MemtableFreezesTotal.Inc()
}

// RecordThaw records a memtable thaw transition.
func (r *Registry) RecordThaw() {
	r.MemtableThawsTotal.Inc()
}

// SetMemtableSize updates the live-record and capacity gauges.
func (r *Registry) SetMemtableSize(live, capacity int) {
	r.MemtableLiveRecords.Set(float64(live))
	r.MemtableCapacityRecords.Set(float64(capacity))
}

// RecordFlush records a completed or failed memtable flush.
func (r *Registry) RecordFlush(status string, duration time.Duration, bytesWritten int) {
	r.FlushesTotal.WithLabelValues(status).Inc()
	r.FlushDurationSeconds.Observe(duration.Seconds())
	if bytesWritten > 0 {
		r.FlushedBytesTotal.Add(float64(bytesWritten))
	}
}

// RecordCompaction records a completed or failed compaction run.
func (r *Registry) RecordCompaction(status string, duration time.Duration) {
	r.CompactionsTotal.WithLabelValues(status).Inc()
	r.CompactionDurationSeconds.Observe(duration.Seconds())
}

// SetSSTableCount updates the per-level SSTable count gauge.
func (r *Registry) SetSSTableCount(level int, count int) {
	r.SSTableCount.WithLabelValues(levelLabel(level)).Set(float64(count))
}

// RecordCacheResult records a block cache lookup outcome.
func (r *Registry) RecordCacheResult(hit bool) {
	if hit {
		r.CacheHitsTotal.Inc()
	} else {
		r.CacheMissesTotal.Inc()
	}
}

// SetCacheSize updates the cache entry count gauge.
func (r *Registry) SetCacheSize(entries int) {
	r.CacheSizeEntries.Set(float64(entries))
}

// RecordBloomNegative records a read short-circuited by a Bloom filter
// negative.
func (r *Registry) RecordBloomNegative() {
	r.BloomNegativesTotal.Inc()
}

// RecordBloomFalsePositive records a Bloom filter positive that turned out
// not to be present once the data block was read.
func (r *Registry) RecordBloomFalsePositive() {
	r.BloomFalsePositivesTotal.Inc()
}

func levelLabel(level int) string {
	return strconv.Itoa(level)
}
