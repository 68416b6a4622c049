package txn

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cuemby/shardkv/pkg/engine"
	"github.com/cuemby/shardkv/pkg/metrics"
	"github.com/cuemby/shardkv/pkg/types"
)

// Transaction is one command or one MULTI/EXEC block moving through
// CREATED -> SCHEDULED -> RUNNING -> CONCLUDED (spec.md §4.5).
type Transaction struct {
	ID     types.TxId
	Shards []uint32
	Global bool
	Cancel *types.CancelToken

	mu    sync.Mutex
	state types.TxnState
}

// State reports the transaction's current lifecycle state.
func (t *Transaction) State() types.TxnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) setState(s types.TxnState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Coordinator assigns TxIds, computes each transaction's touched shard
// set, and drives its hops to completion.
type Coordinator struct {
	shards  []*engine.Shard
	nextTx  atomic.Uint64
	cancels sync.Map // types.TxId -> *types.CancelToken, for CLIENT KILL lookups
}

// NewCoordinator wires a coordinator to the full shard set. Shard index
// in the slice must match engine.Shard.ID().
func NewCoordinator(shards []*engine.Shard) *Coordinator {
	return &Coordinator{shards: shards}
}

// ShardCount reports the number of shards this coordinator drives.
func (c *Coordinator) ShardCount() int { return len(c.shards) }

// Schedule assigns a TxId and builds the transaction for the given shard
// set (deduplicated by the caller, typically via pkg/shardmap). An empty
// shards slice with global=true means every shard.
func (c *Coordinator) Schedule(shards []uint32, global bool) *Transaction {
	tx := &Transaction{
		ID:     types.TxId(c.nextTx.Add(1)),
		Shards: shards,
		Global: global,
		Cancel: types.NewCancelToken(context.Background()),
		state:  types.TxnCreated,
	}
	tx.setState(types.TxnScheduled)
	c.cancels.Store(tx.ID, tx.Cancel)
	return tx
}

// Cancel fires the cancellation token for a transaction by TxId, if it is
// still tracked (CLIENT KILL / shutdown).
func (c *Coordinator) Cancel(id types.TxId) bool {
	v, ok := c.cancels.Load(id)
	if !ok {
		return false
	}
	v.(*types.CancelToken).Fire()
	return true
}

func (c *Coordinator) forget(tx *Transaction) {
	c.cancels.Delete(tx.ID)
}

// Inline runs fn on the single shard a one-shard, non-global transaction
// touches, skipping explicit hop bookkeeping when that shard's queue is
// already empty. Callers must only use this for transactions with
// exactly one shard.
func (c *Coordinator) Inline(tx *Transaction, fn engine.HopFunc) {
	tx.setState(types.TxnRunning)
	shard := c.shards[tx.Shards[0]]
	if shard.QueueLen() == 0 {
		shard.RunInline(fn)
	} else {
		<-shard.Submit(&engine.Hop{TxID: tx.ID, Run: fn, Conclude: true})
	}
	tx.setState(types.TxnConcluded)
	c.forget(tx)
}

// Hop runs fn as one non-final hop on shardID, blocking until it
// completes. The transaction remains head-of-queue on that shard between
// hops (spec.md §4.5's multi-hop mode), since no later-TxId hop can be
// submitted to a shard still holding this transaction's place.
func (c *Coordinator) Hop(tx *Transaction, shardID uint32, fn engine.HopFunc) {
	tx.setState(types.TxnRunning)
	<-c.shards[shardID].Submit(&engine.Hop{TxID: tx.ID, Run: fn})
}

// Conclude runs fn as the final hop on shardID and marks the transaction
// concluded.
func (c *Coordinator) Conclude(tx *Transaction, shardID uint32, fn engine.HopFunc) {
	<-c.shards[shardID].Submit(&engine.Hop{TxID: tx.ID, Run: fn, Conclude: true})
	tx.setState(types.TxnConcluded)
	c.forget(tx)
}

// Execute runs fn as a single hop across every shard the transaction
// touches and waits for all of them, then concludes. Used for
// multi-shard writes that have no cross-shard ordering requirement beyond
// "all shards see this transaction's hop".
func (c *Coordinator) Execute(tx *Transaction, fn engine.HopFunc) {
	tx.setState(types.TxnRunning)
	targets := tx.Shards
	if tx.Global {
		targets = allShardIDs(c.shards)
	}
	dones := make([]<-chan struct{}, 0, len(targets))
	for _, id := range targets {
		dones = append(dones, c.shards[id].Submit(&engine.Hop{TxID: tx.ID, Run: fn, Conclude: true}))
	}
	for _, d := range dones {
		<-d
	}
	tx.setState(types.TxnConcluded)
	c.forget(tx)
}

// Global drains every shard's queue to quiescence for operations like
// FLUSHALL or snapshot coordination (spec.md §4.5's global transaction
// mode): fn runs on every shard, and Global blocks until all shards have
// processed every hop that was queued ahead of this one.
func (c *Coordinator) Global(fn engine.HopFunc) *Transaction {
	tx := c.Schedule(nil, true)
	c.Execute(tx, fn)
	return tx
}

// ReadOnly runs fn on shardID without assigning a TxId or touching the
// hop queue at all, the out-of-order execution mode for read-only
// transactions (spec.md §4.5). This is a deliberate simplification: the
// original engine only lets a read-only transaction jump the queue when
// its keys provably don't overlap any preceding queued write; tracking
// per-pending-write key ranges to prove that isn't implemented here, so
// every read-only single-shard query takes this path unconditionally (see
// DESIGN.md).
func (c *Coordinator) ReadOnly(shardID uint32, fn engine.HopFunc) {
	c.shards[shardID].RunInline(fn)
	metrics.OOOTxnTotal.Inc()
}

func allShardIDs(shards []*engine.Shard) []uint32 {
	out := make([]uint32, len(shards))
	for i, s := range shards {
		out[i] = s.ID()
	}
	return out
}
