package clusterconfig

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/cuemby/shardkv/pkg/log"
	"github.com/cuemby/shardkv/pkg/metrics"
	"github.com/cuemby/shardkv/pkg/shardmap"
)

// RaftConfig is the multi-node ClusterConfig backing: the slot→node map is
// a Raft-replicated FSM, adapted from pkg/manager.Manager's
// Bootstrap/AddVoter/RemoveServer/IsLeader/LeaderAddr. Unlike the teacher,
// there is no dynamic Join RPC — see DESIGN.md for why.
type RaftConfig struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft  *raft.Raft
	fsm   *FSM
	store *Store

	watchers *watcherSet
}

// RaftOptions configures a RaftConfig's Bootstrap.
type RaftOptions struct {
	NodeID   string
	BindAddr string
	DataDir  string
	// Peers lists every voting member's (ID, Addr) known at bootstrap time.
	// A RaftConfig only ever starts from a fully-known configuration; there
	// is no later dynamic join.
	Peers []raft.Server
}

// NewRaftConfig opens the bbolt store and FSM for opts.DataDir without
// starting Raft; call Bootstrap to form or rejoin the cluster.
func NewRaftConfig(opts RaftOptions) (*RaftConfig, error) {
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("clusterconfig: create data dir: %w", err)
	}
	store, err := NewStore(opts.DataDir)
	if err != nil {
		return nil, err
	}
	return &RaftConfig{
		nodeID:   opts.NodeID,
		bindAddr: opts.BindAddr,
		dataDir:  opts.DataDir,
		fsm:      NewFSM(store),
		store:    store,
		watchers: newWatcherSet(),
	}, nil
}

// Bootstrap starts Raft and, if this is a fresh data directory, forms the
// cluster with the fixed membership peers (or with this node alone when
// peers is empty). RaftOptions.Peers is not consulted.
// Tunings mirror pkg/manager.Manager.Bootstrap's <10s-failover timeouts.
func (c *RaftConfig) Bootstrap(peers []raft.Server) error {
	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(c.nodeID)
	cfg.HeartbeatTimeout = 500 * time.Millisecond
	cfg.ElectionTimeout = 500 * time.Millisecond
	cfg.CommitTimeout = 50 * time.Millisecond
	cfg.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", c.bindAddr)
	if err != nil {
		return fmt.Errorf("clusterconfig: resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(c.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("clusterconfig: create transport: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(c.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("clusterconfig: create snapshot store: %w", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("clusterconfig: create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("clusterconfig: create stable store: %w", err)
	}

	r, err := raft.NewRaft(cfg, c.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("clusterconfig: create raft: %w", err)
	}
	c.raft = r

	if len(peers) == 0 {
		peers = []raft.Server{{ID: cfg.LocalID, Address: transport.LocalAddr()}}
	}
	future := c.raft.BootstrapCluster(raft.Configuration{Servers: peers})
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		return fmt.Errorf("clusterconfig: bootstrap cluster: %w", err)
	}

	go c.observeLeadership()
	return nil
}

// observeLeadership updates the RaftLeader gauge whenever this node's
// leadership status changes.
func (c *RaftConfig) observeLeadership() {
	for leader := range c.raft.LeaderCh() {
		if leader {
			metrics.RaftLeader.Set(1)
		} else {
			metrics.RaftLeader.Set(0)
		}
	}
}

// AddVoter adds a new member to the Raft cluster. Only the leader can do
// this, same constraint as pkg/manager.Manager.AddVoter.
func (c *RaftConfig) AddVoter(nodeID, addr string) error {
	if c.raft == nil {
		return fmt.Errorf("clusterconfig: raft not initialized")
	}
	if !c.IsLeader() {
		return fmt.Errorf("clusterconfig: not the leader, current leader: %s", c.LeaderAddr())
	}
	future := c.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("clusterconfig: add voter: %w", err)
	}
	return nil
}

// RemoveServer removes a member from the Raft cluster.
func (c *RaftConfig) RemoveServer(nodeID string) error {
	if c.raft == nil {
		return fmt.Errorf("clusterconfig: raft not initialized")
	}
	if !c.IsLeader() {
		return fmt.Errorf("clusterconfig: not the leader")
	}
	future := c.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("clusterconfig: remove server: %w", err)
	}
	return nil
}

// IsLeader reports whether this node is the current Raft leader.
func (c *RaftConfig) IsLeader() bool {
	return c.raft != nil && c.raft.State() == raft.Leader
}

// LeaderAddr returns the current Raft leader's address, or "" if unknown.
func (c *RaftConfig) LeaderAddr() string {
	if c.raft == nil {
		return ""
	}
	return string(c.raft.Leader())
}

// Shutdown stops Raft and closes the underlying store.
func (c *RaftConfig) Shutdown() error {
	if c.raft != nil {
		if err := c.raft.Shutdown().Error(); err != nil {
			return fmt.Errorf("clusterconfig: shutdown raft: %w", err)
		}
	}
	return c.store.Close()
}

func (c *RaftConfig) apply(cmd Command) error {
	if c.raft == nil {
		return fmt.Errorf("clusterconfig: raft not initialized")
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("clusterconfig: marshal command: %w", err)
	}
	future := c.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("clusterconfig: apply command: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

// ShardForSlot implements ClusterConfig, reading from the local FSM store
// (every node, leader or follower, applies committed entries).
func (c *RaftConfig) ShardForSlot(slot uint16) (NodeInfo, bool) {
	assignments, err := c.store.ListAssignments()
	if err != nil {
		log.WithComponent("clusterconfig").Error().Err(err).Msg("list assignments")
		return NodeInfo{}, false
	}
	for _, a := range assignments {
		if a.Range.Contains(slot) {
			return a.Node, true
		}
	}
	return NodeInfo{}, false
}

// SlotForKey implements ClusterConfig.
func (c *RaftConfig) SlotForKey(key string) uint16 {
	return shardmap.SlotForKey(key)
}

// ApplySlotMigration submits the move as two Raft commands: first
// migrate_slot to record the pending move, then finish_migration to
// flip ownership. Callers driving an actual key transfer (pkg/migrator)
// call StartMigration/FinishMigration directly instead of this shortcut,
// which is for tests and single-step administrative moves.
func (c *RaftConfig) ApplySlotMigration(r SlotRange, dest NodeInfo) error {
	if err := c.StartMigration(r, dest); err != nil {
		return err
	}
	return c.FinishMigration(r)
}

// StartMigration records a pending migration without moving ownership yet.
func (c *RaftConfig) StartMigration(r SlotRange, dest NodeInfo) error {
	data, err := json.Marshal(Migration{Range: r, Dest: dest, State: MigrationSyncing})
	if err != nil {
		return err
	}
	return c.apply(Command{Op: opMigrateSlot, Data: data})
}

// FinishMigration flips ownership of r to its recorded destination and
// clears the pending migration entry, then notifies watchers.
func (c *RaftConfig) FinishMigration(r SlotRange) error {
	migrations, err := c.store.ListMigrations()
	if err != nil {
		return err
	}
	var found *Migration
	for i := range migrations {
		if migrations[i].Range.Start == r.Start {
			found = &migrations[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("clusterconfig: no pending migration for range starting at %d", r.Start)
	}
	data, err := json.Marshal(*found)
	if err != nil {
		return err
	}
	if err := c.apply(Command{Op: opFinishMigrate, Data: data}); err != nil {
		return err
	}
	c.watchers.publish(Event{Range: found.Range, Node: found.Dest})
	return nil
}

// PendingMigrations implements ClusterConfig, reading the FSM's local
// store directly (no need to go through Raft for a read).
func (c *RaftConfig) PendingMigrations() ([]Migration, error) {
	return c.store.ListMigrations()
}

// Watch implements ClusterConfig.
func (c *RaftConfig) Watch() <-chan Event {
	return c.watchers.subscribe()
}
