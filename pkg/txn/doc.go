// Package txn implements the transaction coordinator (spec.md §4.5): the
// CREATED -> SCHEDULED -> RUNNING -> CONCLUDED lifecycle for one command
// or one MULTI/EXEC block, TxId assignment, per-shard scheduling, the
// inline fast path, out-of-order read-only execution, multi-hop and
// global transactions, and cancellation.
package txn
