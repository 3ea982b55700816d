package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ricirt/plinko-sync/internal/domain"
	"github.com/ricirt/plinko-sync/internal/queue"
	"github.com/ricirt/plinko-sync/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	ItemsEnqueued *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
	CorruptReads  prometheus.Counter

	SyncCycles    prometheus.Counter
	ItemsApplied  *prometheus.CounterVec
	ItemsRequeued *prometheus.CounterVec
	ItemsLost     *prometheus.CounterVec
	CycleDuration prometheus.Histogram
}

// New registers all instruments with the given registerer. A private
// registry keeps tests isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_items_enqueued_total",
			Help: "Mutations durably recorded in the offline queue.",
		}, []string{"table", "op"}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Items currently pending in the offline queue.",
		}),

		CorruptReads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_corrupt_reads_total",
			Help: "Reads that found an undecodable queue document and treated it as empty.",
		}),

		SyncCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_cycles_total",
			Help: "Sync cycles run by the sync driver.",
		}),

		ItemsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_items_applied_total",
			Help: "Mutations the remote store accepted.",
		}, []string{"table", "op"}),

		ItemsRequeued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_items_requeued_total",
			Help: "Mutations put back for a later cycle.",
		}, []string{"table"}),

		ItemsLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_items_lost_total",
			Help: "Mutations dropped without reaching the remote store.",
		}, []string{"table", "reason"}),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sync_cycle_seconds",
			Help:    "Wall time of one sync cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.ItemsEnqueued,
		m.QueueDepth,
		m.CorruptReads,
		m.SyncCycles,
		m.ItemsApplied,
		m.ItemsRequeued,
		m.ItemsLost,
		m.CycleDuration,
	)

	return m
}

// QueueHooks returns the callbacks expected by queue.New.
func (m *Metrics) QueueHooks() queue.Hooks {
	return queue.Hooks{
		OnEnqueued: func(it domain.QueueItem) {
			m.ItemsEnqueued.WithLabelValues(string(it.Table), string(it.Op)).Inc()
		},
		OnDepth: func(depth int) {
			m.QueueDepth.Set(float64(depth))
		},
	}
}

// OnCorruptRead is the store's corruption callback.
func (m *Metrics) OnCorruptRead() {
	m.CorruptReads.Inc()
}

// SyncHooks returns the callbacks expected by worker.NewSyncDriver. onLost,
// when non-nil, is chained after the counter so main can log or alert too.
func (m *Metrics) SyncHooks(onLost func(worker.LostMutation)) worker.SyncHooks {
	return worker.SyncHooks{
		OnApplied: func(it domain.QueueItem) {
			m.ItemsApplied.WithLabelValues(string(it.Table), string(it.Op)).Inc()
		},
		OnRequeued: func(it domain.QueueItem) {
			m.ItemsRequeued.WithLabelValues(string(it.Table)).Inc()
		},
		OnLost: func(l worker.LostMutation) {
			m.ItemsLost.WithLabelValues(string(l.Item.Table), l.Reason).Inc()
			if onLost != nil {
				onLost(l)
			}
		},
		OnCycle: func(res worker.CycleResult) {
			m.SyncCycles.Inc()
			m.CycleDuration.Observe(res.Duration.Seconds())
		},
	}
}

