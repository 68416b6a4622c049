package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Keyspace metrics
	KeysTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardkv_keys_total",
			Help: "Total number of keys by logical database",
		},
		[]string{"db"},
	)

	ExpiredKeysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardkv_expired_keys_total",
			Help: "Total number of keys removed by lazy or periodic expiration",
		},
	)

	EvictedKeysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardkv_evicted_keys_total",
			Help: "Total number of keys evicted under memory pressure",
		},
	)

	DefragStepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardkv_defrag_steps_total",
			Help: "Total number of periodic maintenance ticks that shrank a sparse hash table",
		},
	)

	// Connection / pipeline metrics
	ConnectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardkv_connections_total",
			Help: "Number of currently open client connections",
		},
	)

	DispatchQueueBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardkv_dispatch_queue_bytes",
			Help: "Pending-message queue memory footprint by connection",
		},
		[]string{"conn"},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardkv_commands_total",
			Help: "Total number of commands dispatched by name and outcome",
		},
		[]string{"command", "outcome"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shardkv_command_duration_seconds",
			Help:    "Command execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	MultiSquashExecutions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardkv_multi_squash_executions_total",
			Help: "Total number of squashed cross-shard hops executed",
		},
	)

	InlineExecutions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardkv_inline_executions_total",
			Help: "Total number of transactions that took the inline fast path",
		},
	)

	// Transaction metrics
	TxnHopsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardkv_txn_hops_total",
			Help: "Total number of per-shard transaction hops executed",
		},
	)

	TxnScheduleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardkv_txn_schedule_duration_seconds",
			Help:    "Time from transaction creation to its first hop",
			Buckets: prometheus.DefBuckets,
		},
	)

	OOOTxnTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardkv_ooo_txn_total",
			Help: "Total number of read-only transactions that ran out of order",
		},
	)

	// Snapshot / journal metrics
	SnapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardkv_snapshot_duration_seconds",
			Help:    "Time taken to produce a full snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotBucketsOutOfTurn = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardkv_snapshot_buckets_out_of_turn_total",
			Help: "Total number of buckets serialized out-of-turn by a concurrent mutation",
		},
	)

	JournalLSN = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardkv_journal_lsn",
			Help: "Highest LSN appended to the journal",
		},
	)

	JournalEvictedRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardkv_journal_evicted_records_total",
			Help: "Total number of journal records overwritten by the ring buffer",
		},
	)

	ReplicaLagRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardkv_replica_lag_records",
			Help: "Records between a replica's acknowledged LSN and the journal head",
		},
		[]string{"replica"},
	)

	ReplicaLagBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardkv_replica_lag_bytes",
			Help: "Estimated bytes between a replica's acknowledged LSN and the journal head",
		},
		[]string{"replica"},
	)

	ReplicaResyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardkv_replica_resync_total",
			Help: "Total number of full resyncs triggered by a replica falling off the journal's ring buffer",
		},
		[]string{"replica"},
	)

	// Cluster metrics
	ClusterSlotsOwned = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardkv_cluster_slots_owned",
			Help: "Number of cluster slots owned by this node",
		},
	)

	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardkv_clusterconfig_is_leader",
			Help: "Whether this node is the Raft leader for cluster-slot configuration (1 = leader)",
		},
	)

	MigratedKeysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardkv_migrated_keys_total",
			Help: "Total number of keys moved by the slot migrator",
		},
	)
)

func init() {
	prometheus.MustRegister(
		KeysTotal,
		ExpiredKeysTotal,
		EvictedKeysTotal,
		DefragStepsTotal,
		ConnectionsTotal,
		DispatchQueueBytes,
		CommandsTotal,
		CommandDuration,
		MultiSquashExecutions,
		InlineExecutions,
		TxnHopsTotal,
		TxnScheduleDuration,
		OOOTxnTotal,
		SnapshotDuration,
		SnapshotBucketsOutOfTurn,
		JournalLSN,
		JournalEvictedRecords,
		ReplicaLagRecords,
		ReplicaLagBytes,
		ReplicaResyncTotal,
		ClusterSlotsOwned,
		RaftLeader,
		MigratedKeysTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
