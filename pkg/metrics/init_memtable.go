package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initMemtableMetrics() {
	r.MemtablePutsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_memtable_puts_total",
			Help: "Total number of records written to a memtable",
		},
		[]string{"label"},
	)

	r.MemtableGetsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_memtable_gets_total",
			Help: "Total number of test/fuzz lookups served by a memtable",
		},
		[]string{"label", "hit"},
	)

	r.MemtableFreezesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_memtable_freezes_total",
			Help: "Total number of memtable freeze transitions",
		},
	)

	r.MemtableThawsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_memtable_thaws_total",
			Help: "Total number of memtable thaw transitions",
		},
	)

	r.MemtableLiveRecords = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_memtable_live_records",
			Help: "Number of live records in the active memtable",
		},
	)

	r.MemtableCapacityRecords = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_memtable_capacity_records",
			Help: "Fixed record capacity of a memtable buffer",
		},
	)
}
