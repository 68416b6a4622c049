package clusterconfig

// NodeInfo identifies a cluster node for MOVED/ASK redirects.
type NodeInfo struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// SlotRange is an inclusive range of the fixed 16384-slot keyspace
// (matches pkg/shardmap.NumSlots), mirroring
// original_source/src/server/cluster/cluster_defs.h's SlotRange.
type SlotRange struct {
	Start uint16 `json:"start"`
	End   uint16 `json:"end"`
}

// Contains reports whether slot falls in [Start, End].
func (r SlotRange) Contains(slot uint16) bool {
	return slot >= r.Start && slot <= r.End
}

// Assignment binds a slot range to the node currently serving it.
type Assignment struct {
	Range SlotRange `json:"range"`
	Node  NodeInfo  `json:"node"`
}

// MigrationState tracks one in-flight slot migration, ordered the way the
// original's MigrationState enum is (state only ever moves forward).
type MigrationState uint8

const (
	MigrationConnecting MigrationState = iota
	MigrationSyncing
	MigrationFinished
	MigrationError
)

// Migration is a slot range moving from its current owner to Dest.
type Migration struct {
	Range SlotRange      `json:"range"`
	Dest  NodeInfo       `json:"dest"`
	State MigrationState `json:"state"`
}

// Event is published to Watch subscribers whenever the slot map changes.
type Event struct {
	Range SlotRange
	Node  NodeInfo
}
