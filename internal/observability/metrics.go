package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of ParaLedger.
type Metrics struct {
	// --- Engine ---
	OpsApplied   *prometheus.CounterVec
	OpsRejected  *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	Journals     *prometheus.CounterVec
	StateHashDur prometheus.Histogram
	Sequence     prometheus.Gauge

	// --- Insurance flow ---
	PoliciesUnderwritten prometheus.Counter
	PremiumCollected     prometheus.Counter
	FeesCollected        *prometheus.CounterVec
	PayoutsPaid          prometheus.Counter
	PayoutAmount         prometheus.Counter
	TransfersFailed      *prometheus.CounterVec
	TreasurySuspended    prometheus.Gauge

	// --- Riskpool ---
	RiskpoolCapital prometheus.Gauge
	RiskpoolLocked  prometheus.Gauge
	RiskpoolBalance prometheus.Gauge
	ActiveBundles   prometheus.Gauge

	// --- Oracle ---
	OracleRequests  prometheus.Counter
	OracleResponses *prometheus.CounterVec
	NATSMessages    *prometheus.CounterVec

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupTier2Duration    prometheus.Histogram

	// --- Persistence ---
	PersistOpsWritten      prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     *prometheus.CounterVec
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ArchiveUploads    *prometheus.CounterVec

	// --- HTTP API ---
	APIRequests *prometheus.CounterVec
	APIDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on the default registry.
// Call it once per process.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.1,
	}

	return &Metrics{
		// Engine
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "para_engine_ops_applied_total",
			Help: "Operations committed by the engine",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "para_engine_ops_rejected_total",
			Help: "Operations rolled back, by failure reason",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "para_engine_op_duration_seconds",
			Help:    "Time to run one operation including transfers",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		Journals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "para_engine_journals_total",
			Help: "Journal entries committed",
		}, []string{"journal_type"}),

		StateHashDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "para_engine_state_hash_duration_seconds",
			Help:    "Time to compute the state hash",
			Buckets: latencyBuckets,
		}),

		Sequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "para_engine_sequence",
			Help: "Sequence of the last committed operation",
		}),

		// Insurance flow
		PoliciesUnderwritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "para_policies_underwritten_total",
			Help: "Policies underwritten",
		}),

		PremiumCollected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "para_premium_collected_total",
			Help: "Gross premium collected, token units",
		}),

		FeesCollected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "para_fees_collected_total",
			Help: "Protocol fees collected, token units",
		}, []string{"component"}),

		PayoutsPaid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "para_payouts_paid_total",
			Help: "Payouts paid out",
		}),

		PayoutAmount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "para_payout_amount_total",
			Help: "Payout volume, token units",
		}),

		TransfersFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "para_transfers_failed_total",
			Help: "Failed token transfers",
		}, []string{"reason"}),

		TreasurySuspended: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "para_treasury_suspended",
			Help: "1 while the treasury is suspended",
		}),

		// Riskpool
		RiskpoolCapital: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "para_riskpool_capital",
			Help: "Capital over active and locked bundles",
		}),

		RiskpoolLocked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "para_riskpool_locked_capital",
			Help: "Locked capital over active and locked bundles",
		}),

		RiskpoolBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "para_riskpool_balance",
			Help: "Balance over active and locked bundles",
		}),

		ActiveBundles: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "para_riskpool_active_bundles",
			Help: "Active and locked bundles",
		}),

		// Oracle
		OracleRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "para_oracle_requests_total",
			Help: "Oracle requests triggered",
		}),

		OracleResponses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "para_oracle_responses_total",
			Help: "Oracle responses by outcome",
		}, []string{"outcome"}),

		NATSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "para_nats_messages_total",
			Help: "NATS messages handled",
		}, []string{"subject", "outcome"}),

		// Channel & Backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "para_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "para_channel_capacity",
			Help: "Channel capacity",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "para_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "para_publish_drops_total",
			Help: "Operations dropped due to a full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "para_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		// Idempotency
		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "para_idempotency_duplicates_total",
			Help: "Duplicate operations caught",
		}, []string{"op", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "para_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupTier2Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "para_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		// Persistence
		PersistOpsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "para_persist_ops_written_total",
			Help: "Operations written to Postgres",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "para_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "para_persist_batch_size",
			Help:    "Operations per write batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "para_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "para_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "para_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "para_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Snapshot
		SnapshotTaken: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "para_snapshot_taken_total",
			Help: "Snapshots saved",
		}, []string{"store"}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "para_snapshot_duration_seconds",
			Help:    "Snapshot save time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "para_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "para_snapshot_last_sequence",
			Help: "Sequence of the last snapshot",
		}),

		ArchiveUploads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "para_archive_uploads_total",
			Help: "Snapshot archive uploads to object storage",
		}, []string{"outcome"}),

		// HTTP API
		APIRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "para_api_requests_total",
			Help: "API requests",
		}, []string{"route", "status"}),

		APIDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "para_api_duration_seconds",
			Help:    "API latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"route"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}

// SetRiskpool publishes riskpool totals.
func (m *Metrics) SetRiskpool(capital, locked, balance int64, active int) {
	m.RiskpoolCapital.Set(float64(capital))
	m.RiskpoolLocked.Set(float64(locked))
	m.RiskpoolBalance.Set(float64(balance))
	m.ActiveBundles.Set(float64(active))
}
