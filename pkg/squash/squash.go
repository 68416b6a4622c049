package squash

import (
	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/dispatch"
	"github.com/cuemby/shardkv/pkg/metrics"
	"github.com/cuemby/shardkv/pkg/resp"
	"github.com/cuemby/shardkv/pkg/txn"
)

// maxSquashing bounds how many commands accumulate in one shard's bucket
// before a forced flush, mirroring kMaxSquashing: the squashed hop blocks
// the caller until every shard's bucket is replayed, so an unbounded
// bucket could grow without limit on a long pipeline.
const maxSquashing = 32

// StoredCommand is one parsed command awaiting either squashed or
// standalone execution.
type StoredCommand struct {
	Spec *dispatch.CommandSpec
	Argv [][]byte
}

// ShardRouter maps a key to the shard ID that owns it (pkg/shardmap).
type ShardRouter func(key string) uint32

// StandaloneFunc runs one command through the ordinary (non-squashed)
// single- or multi-shard transaction path. Squasher never implements this
// itself — original_source's ExecuteStandalone delegates to the
// command's regular CommandId::Invoke, which is the pre-existing
// execution mechanism, not something the squasher reimplements.
type StandaloneFunc func(cmd *StoredCommand) resp.Value

type squashResult int

const (
	notSquashed squashResult = iota
	squashed
	squashedFull
)

type shardBucket struct {
	cmds    []*StoredCommand
	replies []resp.Value
}

// Squasher batches a run of same-shard commands from one MULTI/EXEC
// block or one pipelined batch into per-shard hops.
type Squasher struct {
	coord      *txn.Coordinator
	router     ShardRouter
	standalone StandaloneFunc
	errorAbort bool

	sharded map[uint32]*shardBucket
	order   []uint32
}

// NewSquasher builds a squasher for one batch. errorAbort mirrors MULTI's
// abort-on-error semantics: true for MULTI/EXEC blocks, false for a plain
// pipelined non-atomic batch, which runs every command regardless of
// earlier errors.
func NewSquasher(coord *txn.Coordinator, router ShardRouter, standalone StandaloneFunc, errorAbort bool) *Squasher {
	return &Squasher{
		coord:      coord,
		router:     router,
		standalone: standalone,
		errorAbort: errorAbort,
		sharded:    make(map[uint32]*shardBucket),
	}
}

// Run executes cmds in order, squashing what it can, and returns one
// reply per command in cmds (fewer if errorAbort stopped the batch
// early).
func (sq *Squasher) Run(cmds []*StoredCommand) []resp.Value {
	out := make([]resp.Value, 0, len(cmds))

	for _, cmd := range cmds {
		res := sq.trySquash(cmd)

		if res == notSquashed || res == squashedFull {
			replies, aborted := sq.executeSquashed()
			out = append(out, replies...)
			if aborted {
				return out
			}
		}

		if res == notSquashed {
			reply := sq.standalone(cmd)
			out = append(out, reply)
			if sq.errorAbort && reply.Kind == resp.KindError {
				return out
			}
		}
	}

	replies, _ := sq.executeSquashed()
	out = append(out, replies...)
	return out
}

func (sq *Squasher) trySquash(cmd *StoredCommand) squashResult {
	if !cmd.Spec.Transactional() || cmd.Spec.Blocking() || cmd.Spec.Global() {
		return notSquashed
	}

	keys := cmd.Spec.ExtractKeys(cmd.Argv)
	if len(keys) == 0 {
		return notSquashed
	}

	var sid uint32
	found := false
	for _, k := range keys {
		s := sq.router(k)
		if !found {
			sid = s
			found = true
			continue
		}
		if s != sid {
			return notSquashed
		}
	}

	b := sq.bucketFor(sid)
	b.cmds = append(b.cmds, cmd)
	sq.order = append(sq.order, sid)

	if len(b.cmds) >= maxSquashing-1 {
		return squashedFull
	}
	return squashed
}

func (sq *Squasher) bucketFor(sid uint32) *shardBucket {
	b, ok := sq.sharded[sid]
	if !ok {
		b = &shardBucket{}
		sq.sharded[sid] = b
	}
	return b
}

// executeSquashed replays every bucket's commands in a single hop per
// shard, all shards running concurrently, then drains replies back in
// the original cross-shard interleaving order.
func (sq *Squasher) executeSquashed() (replies []resp.Value, aborted bool) {
	if len(sq.order) == 0 {
		return nil, false
	}

	shardIDs := make([]uint32, 0, len(sq.sharded))
	for sid, b := range sq.sharded {
		if len(b.cmds) > 0 {
			shardIDs = append(shardIDs, sid)
		}
	}

	tx := sq.coord.Schedule(shardIDs, false)
	sq.coord.Execute(tx, func(slice *dbslice.Slice) {
		b := sq.sharded[slice.ShardID()]
		if b == nil || len(b.cmds) == 0 {
			return
		}
		b.replies = make([]resp.Value, len(b.cmds))
		for i, cmd := range b.cmds {
			b.replies[i] = cmd.Spec.Handler(slice, cmd.Argv)
		}
	})
	metrics.MultiSquashExecutions.Inc()

	next := make(map[uint32]int, len(sq.sharded))
	out := make([]resp.Value, 0, len(sq.order))
	for _, sid := range sq.order {
		b := sq.sharded[sid]
		i := next[sid]
		reply := b.replies[i]
		next[sid] = i + 1
		out = append(out, reply)
		if sq.errorAbort && reply.Kind == resp.KindError {
			aborted = true
			break
		}
	}

	for _, b := range sq.sharded {
		b.cmds = b.cmds[:0]
		b.replies = nil
	}
	sq.order = sq.order[:0]

	return out, aborted
}
