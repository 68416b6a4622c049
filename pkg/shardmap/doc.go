// Package shardmap computes which engine shard and which cluster slot a
// key belongs to (spec.md §4.2/§4.15, grounded on
// original_source/src/server/cluster/cluster_defs.h's SlotId/kMaxSlotNum
// and hash-tag convention). Slot assignment is a pure function of the key;
// shard assignment within this process is the key's slot number modulo
// the local shard count,
// so resharding the cluster never changes which local shard a slot maps
// to once the slot range table itself is unchanged.
package shardmap
