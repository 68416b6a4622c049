package clusterconfig

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
)

// Command is one state change operation in the Raft log, mirroring
// pkg/manager's WarrenFSM Command shape ({Op, Data}) with ops specific to
// slot assignment instead of container orchestration.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opAssignSlot    = "assign_slot"
	opMigrateSlot   = "migrate_slot"
	opFinishMigrate = "finish_migration"
)

// FSM is the Raft finite state machine over the slot→node map, adapted
// from pkg/manager's WarrenFSM.
type FSM struct {
	mu    sync.RWMutex
	store *Store
}

// NewFSM builds an FSM over store.
func NewFSM(store *Store) *FSM {
	return &FSM{store: store}
}

// Apply applies one committed Raft log entry.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("clusterconfig: unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opAssignSlot:
		var a Assignment
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		return f.store.PutAssignment(a)

	case opMigrateSlot:
		var m Migration
		if err := json.Unmarshal(cmd.Data, &m); err != nil {
			return err
		}
		return f.store.PutMigration(m)

	case opFinishMigrate:
		var m Migration
		if err := json.Unmarshal(cmd.Data, &m); err != nil {
			return err
		}
		if err := f.store.PutAssignment(Assignment{Range: m.Range, Node: m.Dest}); err != nil {
			return err
		}
		return f.store.DeleteMigration(m.Range.Start)

	default:
		return fmt.Errorf("clusterconfig: unknown command %q", cmd.Op)
	}
}

// Snapshot captures the current slot map and pending migrations.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	assignments, err := f.store.ListAssignments()
	if err != nil {
		return nil, fmt.Errorf("clusterconfig: list assignments: %w", err)
	}
	migrations, err := f.store.ListMigrations()
	if err != nil {
		return nil, fmt.Errorf("clusterconfig: list migrations: %w", err)
	}
	return &fsmSnapshot{Assignments: assignments, Migrations: migrations}, nil
}

// Restore replaces the FSM's state with a decoded snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap fsmSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("clusterconfig: decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	oldAssignments, err := f.store.ListAssignments()
	if err != nil {
		return fmt.Errorf("clusterconfig: list assignments: %w", err)
	}
	for _, a := range oldAssignments {
		if err := f.store.DeleteAssignment(a.Range.Start); err != nil {
			return fmt.Errorf("clusterconfig: clear assignment: %w", err)
		}
	}
	oldMigrations, err := f.store.ListMigrations()
	if err != nil {
		return fmt.Errorf("clusterconfig: list migrations: %w", err)
	}
	for _, m := range oldMigrations {
		if err := f.store.DeleteMigration(m.Range.Start); err != nil {
			return fmt.Errorf("clusterconfig: clear migration: %w", err)
		}
	}

	for _, a := range snap.Assignments {
		if err := f.store.PutAssignment(a); err != nil {
			return fmt.Errorf("clusterconfig: restore assignment: %w", err)
		}
	}
	for _, m := range snap.Migrations {
		if err := f.store.PutMigration(m); err != nil {
			return fmt.Errorf("clusterconfig: restore migration: %w", err)
		}
	}
	return nil
}

type fsmSnapshot struct {
	Assignments []Assignment `json:"assignments"`
	Migrations  []Migration  `json:"migrations"`
}

// Persist writes the snapshot as JSON to sink, matching
// WarrenSnapshot.Persist's encode-then-close-or-cancel shape.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

// Release is a no-op; the snapshot holds no external resources.
func (s *fsmSnapshot) Release() {}
