// Package maintenance runs each engine shard's periodic housekeeping
// pass: TTL sampling, statistics sliding-window rotation, and one
// hash-table defrag step, per spec.md §4.4 step 4 / SPEC_FULL.md §4.19.
// It is the teacher's reconciler.Reconciler loop shape (a ticker driving
// a reconcile pass over every tracked resource kind) retargeted from
// cluster desired-state reconciliation to a single shard's own
// dbslice.Slice, installed as a pkg/engine.Shard.MaintenanceFunc rather
// than run on its own ticker — the shard's event loop already drives the
// tick, so maintenance is just another kind of work the shard's single
// goroutine does between hops.
package maintenance
