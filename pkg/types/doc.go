/*
Package types holds the value model shared by every shardkv package: the
PrimeValue tagged union, per-database tables, transaction bookkeeping
types (TxId, TxnState, CancelToken), the journal record shape, and the error-kind taxonomy.

Nothing here owns a goroutine or a lock; it is pure data so that hashtable,
dbslice, engine, txn, resp, and journal can all depend on it without forming
cycles.
*/
package types
