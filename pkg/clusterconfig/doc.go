// Package clusterconfig implements the cluster-slot configuration contract
// spec.md carves out as external (SPEC_FULL.md §1/§4.15): a slot→node map,
// replicated by Raft across manager processes and polled by pkg/migrator
// for pending slot moves. No command path answers MOVED/ASK redirects from
// it. The FSM, its bbolt-backed store, and the
// hashicorp/raft wiring are pkg/manager's WarrenFSM/BoltStore/Manager
// adapted wholesale from container/service/task state to slot assignments
// and pending migrations.
package clusterconfig
