/*
Package metrics exposes shardkv's runtime counters as Prometheus series and a
JSON health endpoint.

Series follow the teacher's GaugeVec/CounterVec/HistogramVec package-variable
style, registered once in init() and served via Handler() on the admin port.
No INFO or DEBUG command is registered; these series are read through
/metrics.

Notable series: shardkv_keys_total, shardkv_expired_keys_total,
shardkv_multi_squash_executions_total, shardkv_txn_hops_total,
shardkv_snapshot_duration_seconds, shardkv_journal_lsn,
shardkv_replica_lag_records.
*/
package metrics
