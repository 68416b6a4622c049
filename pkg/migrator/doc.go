// Package migrator moves a slot range's keys from the node that currently
// owns it to the node a cluster-slot migration names as the destination
// (spec.md §4.15, SPEC_FULL.md §1). It is grounded on
// pkg/scheduler/scheduler.go's reconcile-loop shape (a ticker, a
// sync.RWMutex, a stopCh) repurposed from "place containers on nodes" to
// "move keys between shards when a slot's owner changes." The wire format
// for a migrated key is pkg/snapshot's newline-delimited-JSON-over-zstd
// Record stream, reused rather than reinvented since a migrated key and a
// snapshotted key carry the same shape (DBIndex, Key, Value).
package migrator
