package clusterconfig

import (
	"sync"

	"github.com/cuemby/shardkv/pkg/shardmap"
)

// ClusterConfig is the contract SPEC_FULL.md §1 carves out of spec.md's
// external "config gossip": resolve a key or slot to its owning node, and
// apply/observe slot migrations. Two backings satisfy it: StaticConfig
// (single-node/emulated mode) and RaftConfig (multi-node, Raft-replicated).
type ClusterConfig interface {
	// ShardForSlot returns the node currently serving slot, if assigned.
	ShardForSlot(slot uint16) (NodeInfo, bool)
	// SlotForKey computes a key's cluster slot.
	SlotForKey(key string) uint16
	// ApplySlotMigration moves a slot range to dest, effective immediately
	// in StaticConfig or once the Raft command commits in RaftConfig.
	ApplySlotMigration(r SlotRange, dest NodeInfo) error
	// PendingMigrations lists migrations that have been recorded but not
	// yet finished — what pkg/migrator polls to know what to move.
	PendingMigrations() ([]Migration, error)
	// Watch returns a channel of slot-map change events. The channel is
	// buffered and never closed; an event is dropped for a subscriber
	// whose buffer is full.
	Watch() <-chan Event
}

// StaticConfig is the single-node/"cluster emulated" backing: an
// in-memory slot map with no Raft replication, for a deployment with
// exactly one manager.
type StaticConfig struct {
	mu          sync.RWMutex
	assignments []Assignment
	watchers    *watcherSet
}

// NewStatic builds a StaticConfig with the entire slot range assigned to
// one node — the common single-node starting point.
func NewStatic(node NodeInfo) *StaticConfig {
	return &StaticConfig{
		assignments: []Assignment{{
			Range: SlotRange{Start: 0, End: shardmap.NumSlots - 1},
			Node:  node,
		}},
		watchers: newWatcherSet(),
	}
}

// ShardForSlot implements ClusterConfig.
func (c *StaticConfig) ShardForSlot(slot uint16) (NodeInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.assignments {
		if a.Range.Contains(slot) {
			return a.Node, true
		}
	}
	return NodeInfo{}, false
}

// SlotForKey implements ClusterConfig.
func (c *StaticConfig) SlotForKey(key string) uint16 {
	return shardmap.SlotForKey(key)
}

// ApplySlotMigration implements ClusterConfig by splitting any existing
// assignment(s) overlapping r and reassigning r itself to dest.
func (c *StaticConfig) ApplySlotMigration(r SlotRange, dest NodeInfo) error {
	c.mu.Lock()
	next := make([]Assignment, 0, len(c.assignments)+2)
	for _, a := range c.assignments {
		next = append(next, splitAround(a, r)...)
	}
	next = append(next, Assignment{Range: r, Node: dest})
	c.assignments = next
	c.mu.Unlock()

	c.watchers.publish(Event{Range: r, Node: dest})
	return nil
}

// PendingMigrations implements ClusterConfig. StaticConfig applies a
// migration the instant it's requested, so it never has anything pending.
func (c *StaticConfig) PendingMigrations() ([]Migration, error) {
	return nil, nil
}

// Watch implements ClusterConfig.
func (c *StaticConfig) Watch() <-chan Event {
	return c.watchers.subscribe()
}

// splitAround removes the portion of a's range that overlaps cut,
// returning zero, one, or two assignments covering what's left.
func splitAround(a Assignment, cut SlotRange) []Assignment {
	if cut.End < a.Range.Start || cut.Start > a.Range.End {
		return []Assignment{a}
	}
	var out []Assignment
	if a.Range.Start < cut.Start {
		out = append(out, Assignment{Range: SlotRange{Start: a.Range.Start, End: cut.Start - 1}, Node: a.Node})
	}
	if a.Range.End > cut.End {
		out = append(out, Assignment{Range: SlotRange{Start: cut.End + 1, End: a.Range.End}, Node: a.Node})
	}
	return out
}
