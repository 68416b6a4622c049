// Package engine implements the engine shard (spec.md §4.4): one per
// worker, owning a single dbslice.Slice and a TxId-ordered queue of
// transaction hops. Shards never share mutable state; cross-shard
// communication happens by submitting a hop onto the target shard's
// channel and waiting on a done signal, the same way the original
// engine's fibers suspend on the caller side and resume on the callee
// side of a proactor hop. Go has no fiber primitive, so a goroutine plus
// a buffered channel stands in for one, per Design Notes §9.
package engine
