// Package dbslice implements DbSlice, the per-shard owner of one or more
// logical databases (spec.md §4.3): find/find-mutable/add-or-find/delete,
// flush, change-notification callbacks, expiration, and the resumable
// scan used by SCAN/HSCAN and by the snapshot producer.
//
// A DbSlice never crosses a shard boundary; pkg/engine owns exactly one
// per worker and every call into it runs on that worker's goroutine, so
// none of the methods here take a lock.
package dbslice
