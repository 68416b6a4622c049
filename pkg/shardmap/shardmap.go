package shardmap

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// NumSlots is the fixed cluster keyspace size, matching the original's
// kMaxSlotNum+1 (0x3FFF+1 = 16384).
const NumSlots = 0x3FFF + 1

// HashTag returns the substring of key between the first '{' and the next
// '}' that follows it, provided that substring is non-empty — the same
// convention the original uses so a caller can force a set of keys onto
// one slot (and therefore one shard) by sharing a tag, e.g. "user:{42}:name"
// and "user:{42}:age" both hash on "42".
func HashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return key
	}
	end := strings.IndexByte(key[start+1:], '}')
	if end < 0 {
		return key
	}
	if end == 0 {
		return key
	}
	return key[start+1 : start+1+end]
}

// SlotForKey computes the cluster slot a key belongs to.
func SlotForKey(key string) uint16 {
	tag := HashTag(key)
	return uint16(xxhash.Sum64String(tag) % NumSlots)
}

// Mapper resolves keys to the local engine shard that owns them. Slot
// ownership across the cluster is pkg/clusterconfig's job; Mapper only
// answers "of the shards running in this process, which one is this key
// for" by taking the key's slot modulo the local shard count — stable
// under a change in cluster slot ranges as long as the local shard count
// doesn't change.
type Mapper struct {
	numShards uint32
}

// New builds a Mapper over numShards local engine shards.
func New(numShards uint32) *Mapper {
	return &Mapper{numShards: numShards}
}

// ShardForKey returns the local shard index that owns key.
func (m *Mapper) ShardForKey(key string) uint32 {
	return uint32(SlotForKey(key)) % m.numShards
}

// ShardForSlot returns the local shard index that owns a cluster slot.
func (m *Mapper) ShardForSlot(slot uint16) uint32 {
	return uint32(slot) % m.numShards
}

// Route adapts ShardForKey to pkg/squash.ShardRouter's signature.
func (m *Mapper) Route(key string) uint32 {
	return m.ShardForKey(key)
}
