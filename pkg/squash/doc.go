// Package squash implements the command squasher (spec.md §4.1, grounded
// on original_source/src/server/multi_command_squasher.cc): inside one
// MULTI/EXEC or one pipelined non-atomic batch, a run of adjacent
// transactional, non-blocking, non-global commands that all resolve to
// the same shard is batched into a single cross-shard hop instead of one
// hop per command, cutting the scheduling overhead of a long pipeline to
// roughly one hop per shard per batch.
package squash
