// Package journal implements the append-only replication log (spec.md
// §4.9, grounded on original_source/src/server/journal/types.h and
// streamer.h/.cc): every shard keeps a bounded ring buffer of committed
// mutations tagged with a monotonically increasing LSN, and a replica
// either replays the buffered tail starting at its last acknowledged LSN
// or, if that LSN has already been evicted, falls back to a fresh
// snapshot. Fan-out to live subscribers follows pkg/events/events.go's
// buffered-channel broker shape, adapted to journal.Entry payloads.
package journal
