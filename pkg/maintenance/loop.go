package maintenance

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/engine"
	"github.com/cuemby/shardkv/pkg/log"
	"github.com/cuemby/shardkv/pkg/metrics"
	"github.com/cuemby/shardkv/pkg/types"
)

// defaultExpireSampleSize bounds how many TTL-bearing keys
// ActiveExpireCycle inspects per database per tick, the same
// bounded-probe-cost discipline pkg/replica and pkg/migrator apply to
// their own per-tick work.
const defaultExpireSampleSize = 20

// Loop runs one shard's periodic maintenance pass: active TTL sampling,
// stats sliding-window rotation, and one hash-table defrag step per
// logical database. It is the teacher's reconciler.Reconciler adapted:
// where Reconciler.reconcile calls reconcileNodes/reconcileContainers
// once per tick, Loop.tick calls activeExpire/rotateStats/defragStep once
// per logical database on the shard that just ticked.
type Loop struct {
	logger zerolog.Logger

	mu      sync.Mutex
	windows map[uint32]map[int]*statsWindow

	expireSampleSize int
}

// NewLoop builds a Loop ready to attach to one or more shards.
func NewLoop() *Loop {
	return &Loop{
		logger:           log.WithComponent("maintenance"),
		windows:          make(map[uint32]map[int]*statsWindow),
		expireSampleSize: defaultExpireSampleSize,
	}
}

// Attach installs this Loop's per-tick hook on shard. Call before
// shard.Start, matching pkg/engine.Shard.OnMaintenance's contract.
func (l *Loop) Attach(shard *engine.Shard) {
	id := shard.ID()
	shard.OnMaintenance(func(slice *dbslice.Slice) {
		l.tick(id, slice)
	})
}

func (l *Loop) tick(shardID uint32, slice *dbslice.Slice) {
	for _, idx := range slice.DatabaseIndices() {
		l.activeExpire(slice, idx)
		l.rotateStats(shardID, idx, slice.Stats(idx))
		l.defragStep(slice, idx)
	}
}

func (l *Loop) activeExpire(slice *dbslice.Slice, dbIndex int) {
	removed := slice.ActiveExpireCycle(dbIndex, l.expireSampleSize)
	if removed > 0 {
		metrics.ExpiredKeysTotal.Add(float64(removed))
		l.logger.Debug().Int("db", dbIndex).Int("removed", removed).Msg("active expire cycle reclaimed keys")
	}
}

func (l *Loop) rotateStats(shardID uint32, dbIndex int, stats types.DbStats) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dbs, ok := l.windows[shardID]
	if !ok {
		dbs = make(map[int]*statsWindow)
		l.windows[shardID] = dbs
	}
	w, ok := dbs[dbIndex]
	if !ok {
		w = newStatsWindow()
		dbs[dbIndex] = w
	}
	w.rotate(sampleFrom(stats))
}

func (l *Loop) defragStep(slice *dbslice.Slice, dbIndex int) {
	if slice.Table(dbIndex).DefragStep() {
		metrics.DefragStepsTotal.Inc()
		l.logger.Debug().Int("db", dbIndex).Msg("hash table defragmented")
	}
}

// Window returns a copy of the rolling stats history for one shard's
// logical database, oldest sample first, or nil if nothing has been
// recorded yet.
func (l *Loop) Window(shardID uint32, dbIndex int) []StatsSample {
	l.mu.Lock()
	defer l.mu.Unlock()

	dbs, ok := l.windows[shardID]
	if !ok {
		return nil
	}
	w, ok := dbs[dbIndex]
	if !ok {
		return nil
	}
	return w.ordered()
}
