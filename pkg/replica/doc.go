// Package replica tracks how far behind each connected replica has
// fallen, per SPEC_FULL.md §4.18. It is the teacher's
// worker.HealthMonitor (a ticker-driven loop that periodically samples a
// set of registered targets and reports their status) adapted from
// "is this container's health check still passing" to "how many journal
// records separate this replica's last acknowledged LSN from the shard's
// current head, and has it fallen off the ring buffer entirely."
package replica
