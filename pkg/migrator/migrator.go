package migrator

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/shardkv/pkg/clusterconfig"
	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/engine"
	"github.com/cuemby/shardkv/pkg/log"
	"github.com/cuemby/shardkv/pkg/metrics"
	"github.com/cuemby/shardkv/pkg/shardmap"
	"github.com/cuemby/shardkv/pkg/snapshot"
	"github.com/cuemby/shardkv/pkg/types"
)

// batchSize bounds how many keys one reconcile pass collects from a shard
// per migration before handing off to the network, the same
// bound-the-pause-per-tick idea as pkg/snapshot.Encoder's chunking, sized
// for memory scan cost rather than wire bytes.
const batchSize = 1024

// Migrator drives slot migrations this node is the source of: for every
// migration pkg/clusterconfig reports pending whose current owner is this
// node, it scans local shards for keys in the migrating range, streams
// them to the destination, deletes them once acknowledged, and finishes
// the migration once a pass finds nothing left to move.
type Migrator struct {
	cc       clusterconfig.ClusterConfig
	nodeID   string
	shards   []*engine.Shard
	interval time.Duration
	dial     func(addr string) (Target, error)

	logger zerolog.Logger
	mu     sync.RWMutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Migrator. shards must be every locally-owned engine.Shard;
// Migrator figures out which keys belong to a migrating range by hashing
// them with pkg/shardmap, not by asking the shard which slots it owns.
func New(cc clusterconfig.ClusterConfig, nodeID string, shards []*engine.Shard, interval time.Duration) *Migrator {
	return &Migrator{
		cc:       cc,
		nodeID:   nodeID,
		shards:   shards,
		interval: interval,
		dial:     DialTarget,
		logger:   log.WithComponent("migrator"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconcile loop.
func (m *Migrator) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop halts the reconcile loop and waits for it to exit.
func (m *Migrator) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Migrator) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reconcile()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Migrator) reconcile() {
	m.mu.Lock()
	defer m.mu.Unlock()

	migrations, err := m.cc.PendingMigrations()
	if err != nil {
		m.logger.Error().Err(err).Msg("list pending migrations")
		return
	}

	for _, mig := range migrations {
		owner, ok := m.cc.ShardForSlot(mig.Range.Start)
		if !ok || owner.ID != m.nodeID {
			continue
		}
		if err := m.migrateOne(mig); err != nil {
			m.logger.Error().Err(err).
				Uint16("slot_start", mig.Range.Start).
				Uint16("slot_end", mig.Range.End).
				Str("dest", mig.Dest.ID).
				Msg("migration pass failed")
		}
	}
}

func (m *Migrator) migrateOne(mig clusterconfig.Migration) error {
	target, err := m.dial(mig.Dest.Addr)
	if err != nil {
		return err
	}
	defer target.Close()

	moved := 0
	for _, shard := range m.shards {
		n, err := m.migrateFromShard(shard, mig.Range, target)
		if err != nil {
			return err
		}
		moved += n
	}

	if moved == 0 {
		if err := m.cc.ApplySlotMigration(mig.Range, mig.Dest); err != nil {
			return err
		}
		m.logger.Info().
			Uint16("slot_start", mig.Range.Start).
			Uint16("slot_end", mig.Range.End).
			Str("dest", mig.Dest.ID).
			Msg("migration finished")
	}
	metrics.MigratedKeysTotal.Add(float64(moved))
	return nil
}

// migrateFromShard collects up to batchSize matching keys from shard
// without blocking it on network I/O, sends them, then deletes only the
// ones the destination acknowledged — all inside one RunInline each so
// the shard's own goroutine is never the one waiting on the network.
func (m *Migrator) migrateFromShard(shard *engine.Shard, r clusterconfig.SlotRange, target Target) (int, error) {
	type kv struct {
		dbIndex int
		key     string
		value   *types.PrimeValue
	}
	var batch []kv

	shard.RunInline(func(slice *dbslice.Slice) {
		for _, idx := range slice.DatabaseIndices() {
			if len(batch) >= batchSize {
				return
			}
			var cursor dbslice.Cursor
			first := true
			for first || cursor != 0 {
				first = false
				cursor = slice.Scan(idx, cursor, func(key string, value *types.PrimeValue) {
					if len(batch) >= batchSize {
						return
					}
					if shardmap.SlotForKey(key) < r.Start || shardmap.SlotForKey(key) > r.End {
						return
					}
					batch = append(batch, kv{dbIndex: idx, key: key, value: value})
				})
				if len(batch) >= batchSize {
					break
				}
			}
		}
	})

	if len(batch) == 0 {
		return 0, nil
	}

	sent := make([]kv, 0, len(batch))
	var sendErr error
	for _, e := range batch {
		rec := snapshot.Record{Kind: snapshot.RecordKV, DBIndex: e.dbIndex, Key: e.key, Value: e.value}
		if err := target.Send(rec); err != nil {
			sendErr = err
			break
		}
		sent = append(sent, e)
	}

	if len(sent) > 0 {
		shard.RunInline(func(slice *dbslice.Slice) {
			for _, e := range sent {
				slice.Delete(e.dbIndex, e.key)
			}
		})
	}
	return len(sent), sendErr
}
