package dbslice

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/shardkv/pkg/hashtable"
	"github.com/cuemby/shardkv/pkg/log"
	"github.com/cuemby/shardkv/pkg/types"
)

// ChangeEvent describes a mutation DbSlice has just applied. Callbacks
// registered via RegisterOnChange see it after the table has been updated;
// a bucket's pre-mutation contents are only available through the
// BeginSnapshot hook, not through these callbacks.
type ChangeEvent struct {
	DBIndex int
	Key     string
	Deleted bool
	Value   *types.PrimeValue // nil when Deleted
}

// ChangeCallback is invoked synchronously on the owning shard's goroutine.
// It must not block or mutate the table it was called from.
type ChangeCallback func(ChangeEvent)

type database struct {
	table *hashtable.Table
	meta  *types.DbTable
}

// Slice is DbSlice: the per-shard container of logical databases.
type Slice struct {
	shardID uint32
	dbs     map[int]*database
	hooks   map[uint64]ChangeCallback
	nextCB  uint64
	expire  bool
	clock   func() time.Time
	log     zerolog.Logger
}

// New builds an empty Slice for one engine shard.
func New(shardID uint32) *Slice {
	return &Slice{
		shardID: shardID,
		dbs:     make(map[int]*database),
		hooks:   make(map[uint64]ChangeCallback),
		expire:  true,
		clock:   time.Now,
		log:     log.WithShard(shardID),
	}
}

// ShardID reports which engine shard owns this slice, so a hop function
// submitted identically to every shard (e.g. pkg/squash's squashed hop
// callback, or pkg/txn.Coordinator.Execute/Global) can look up its own
// shard-local work.
func (s *Slice) ShardID() uint32 { return s.shardID }

func (s *Slice) db(index int) *database {
	d, ok := s.dbs[index]
	if !ok {
		d = &database{table: hashtable.New(0), meta: types.NewDbTable(index)}
		s.dbs[index] = d
	}
	return d
}

// SetExpireEnabled toggles the lazy+periodic expiration checks, e.g. for
// the duration of a CLIENT PAUSE ALL.
func (s *Slice) SetExpireEnabled(enabled bool) { s.expire = enabled }

// ExpireEnabled reports the current setting.
func (s *Slice) ExpireEnabled() bool { return s.expire }

func (s *Slice) nowMs() int64 { return types.NowMs(s.clock()) }

// NowMs exposes the slice's clock in unix milliseconds, so command
// handlers computing an absolute expiry (SET ... EX/PX) anchor to the
// same clock Find's lazy expiration check uses.
func (s *Slice) NowMs() int64 { return s.nowMs() }

// expireIfDue lazily deletes key if its TTL has passed, returning true if
// it was removed.
func (s *Slice) expireIfDue(index int, d *database, key string) bool {
	if !s.expire {
		return false
	}
	if !d.meta.IsExpired(key, s.nowMs()) {
		return false
	}
	s.deleteLocked(index, d, key)
	d.meta.Stats.ExpiredHits++
	return true
}

// Find is the read-only lookup: no LRU bump, no expiration side effects
// beyond the lazy check every accessor performs.
func (s *Slice) Find(index int, key string) (*types.PrimeValue, bool) {
	d := s.db(index)
	if s.expireIfDue(index, d, key) {
		return nil, false
	}
	e, ok := d.table.Find(key)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// MutationReceipt is the post-updater handle find_mutable returns: call
// Commit after mutating the value in place to fire change callbacks.
type MutationReceipt struct {
	slice   *Slice
	index   int
	key     string
	value   *types.PrimeValue
	fired   bool
	deleted bool
}

// Commit fires every registered change callback; the slice keeps no memory
// accounting to reconcile. Safe to call multiple times; only the first
// call has effect.
func (r *MutationReceipt) Commit() {
	if r.fired {
		return
	}
	r.fired = true
	r.slice.fire(ChangeEvent{DBIndex: r.index, Key: r.key, Value: r.value, Deleted: r.deleted})
}

// FindMutable returns a handle to key's value for in-place mutation. The
// returned *PrimeValue must not be retained past Commit.
func (s *Slice) FindMutable(index int, key string) (*types.PrimeValue, *MutationReceipt, bool) {
	d := s.db(index)
	if s.expireIfDue(index, d, key) {
		return nil, nil, false
	}
	e, ok := d.table.Find(key)
	if !ok {
		return nil, nil, false
	}
	return e.Value, &MutationReceipt{slice: s, index: index, key: key, value: e.Value}, true
}

// AddOrFind inserts value under key if absent, or returns the existing
// entry. Reports whether the key was newly created.
func (s *Slice) AddOrFind(index int, key string, value *types.PrimeValue) (*types.PrimeValue, bool) {
	d := s.db(index)
	s.expireIfDue(index, d, key)
	e, isNew := d.table.Insert(key, value)
	if isNew {
		d.meta.Stats.Keys++
		s.fire(ChangeEvent{DBIndex: index, Key: key, Value: e.Value})
	}
	return e.Value, isNew
}

// Set unconditionally installs value under key, replacing any prior
// value, and fires change callbacks.
func (s *Slice) Set(index int, key string, value *types.PrimeValue) {
	d := s.db(index)
	_, isNew := d.table.Insert(key, value)
	if isNew {
		d.meta.Stats.Keys++
	}
	s.fire(ChangeEvent{DBIndex: index, Key: key, Value: value})
}

// Delete removes key, running the delete callback and clearing any
// expiration entry. Reports whether it existed.
func (s *Slice) Delete(index int, key string) bool {
	d := s.db(index)
	return s.deleteLocked(index, d, key)
}

func (s *Slice) deleteLocked(index int, d *database, key string) bool {
	if !d.table.Delete(key) {
		return false
	}
	d.meta.Stats.Keys--
	d.meta.Persist(key)
	s.fire(ChangeEvent{DBIndex: index, Key: key, Deleted: true})
	return true
}

// FlushDB marks every entry in the selected database for deletion. index
// of -1 flushes every database on this shard. Callers are responsible for
// broadcasting the client-tracking invalidation message (pkg/invalidation)
// since that is a cross-connection concern DbSlice doesn't own.
func (s *Slice) FlushDB(index int) {
	if index < 0 {
		for i := range s.dbs {
			s.flushOne(i)
		}
		return
	}
	s.flushOne(index)
}

func (s *Slice) flushOne(index int) {
	d, ok := s.dbs[index]
	if !ok {
		return
	}
	s.log.Debug().Int("db", index).Int("keys", int(d.meta.Stats.Keys)).Msg("flushing database")
	d.table = hashtable.New(0)
	d.meta = types.NewDbTable(index)
	s.fire(ChangeEvent{DBIndex: index, Deleted: true})
}

// RegisterOnChange adds a callback invoked on every insert, replace,
// delete, committed FindMutable receipt, and flush, and returns a handle
// for UnregisterOnChange. Expire and Persist change only the expiration
// table and do not invoke it.
func (s *Slice) RegisterOnChange(cb ChangeCallback) uint64 {
	id := s.nextCB
	s.nextCB++
	s.hooks[id] = cb
	return id
}

// UnregisterOnChange removes a previously registered callback.
func (s *Slice) UnregisterOnChange(id uint64) {
	delete(s.hooks, id)
}

func (s *Slice) fire(ev ChangeEvent) {
	for _, cb := range s.hooks {
		cb(ev)
	}
}

// Expire installs an absolute expiration time (unix ms) for key.
func (s *Slice) Expire(index int, key string, atMs int64) bool {
	d := s.db(index)
	if _, ok := d.table.Find(key); !ok {
		return false
	}
	d.meta.SetExpireAt(key, atMs)
	return true
}

// Persist removes key's expiration, if any.
func (s *Slice) Persist(index int, key string) bool {
	d := s.db(index)
	return d.meta.Persist(key)
}

// TTL returns the remaining milliseconds until key expires, or false if
// key has no expiration set (distinct from key-not-found, which Find
// reports separately).
func (s *Slice) TTL(index int, key string) (int64, bool) {
	d := s.db(index)
	at, ok := d.meta.ExpiresAt(key)
	if !ok {
		return 0, false
	}
	return at - s.nowMs(), true
}

// ActiveExpireCycle samples up to limit keys carrying a TTL in database
// index and deletes whichever have already passed their expiry, the
// active counterpart to Find's lazy expireIfDue check — a key nobody
// reads again would otherwise never be reclaimed. Map iteration order is
// already pseudo-random in Go, so no separate sampling scheme is needed
// to avoid always checking the same keys first. Returns the number of
// keys removed.
func (s *Slice) ActiveExpireCycle(index int, limit int) int {
	d := s.db(index)
	now := s.nowMs()

	sampled := 0
	removed := 0
	for key, at := range d.meta.Expires {
		if sampled >= limit {
			break
		}
		sampled++
		if now < at {
			continue
		}
		s.deleteLocked(index, d, key)
		d.meta.Stats.ExpiredHits++
		removed++
	}
	return removed
}

// Stats reports the logical database's key counters.
func (s *Slice) Stats(index int) types.DbStats {
	return s.db(index).meta.Stats
}

// Cursor resumes Scan across a single logical database.
type Cursor = hashtable.Cursor

// Scan walks database index starting at cursor, invoking emit for every
// live (non-expired) entry visited in this step, and returns the cursor
// to resume from.
func (s *Slice) Scan(index int, cursor Cursor, emit func(key string, value *types.PrimeValue)) Cursor {
	d := s.db(index)
	now := s.nowMs()
	return d.table.Scan(cursor, func(e *hashtable.Entry) {
		if s.expire && d.meta.IsExpired(e.Key, now) {
			return
		}
		emit(e.Key, e.Value)
	})
}

// ScanVersioned walks database index one bucket per call, like Scan, but
// skips (without emitting) any bucket an out-of-turn snapshot hook already
// serialized at snapshotVersion or later, and marks every bucket it visits
// serialized at snapshotVersion before returning — so a bucket is never
// emitted by both the forward walk and the out-of-turn hook. Only valid
// between BeginSnapshot and EndSnapshot for index, with snapshotVersion the
// value BeginSnapshot returned.
func (s *Slice) ScanVersioned(index int, cursor Cursor, snapshotVersion uint64, emit func(key string, value *types.PrimeValue)) Cursor {
	d := s.db(index)
	t := d.table
	size := uint64(t.BucketCount())
	i := int(uint64(cursor) & (size - 1))

	if t.BucketVersion(i) < snapshotVersion {
		now := s.nowMs()
		for _, e := range t.BucketEntries(i) {
			if s.expire && d.meta.IsExpired(e.Key, now) {
				continue
			}
			emit(e.Key, e.Value)
		}
		t.MarkBucketSerialized(i, snapshotVersion)
	}

	next := (uint64(i) + 1) & (size - 1)
	if next == 0 {
		return 0
	}
	return Cursor(next)
}

// BeginSnapshot starts out-of-turn bucket tracking on one database's
// table (see hashtable.Table.BeginSnapshot) and returns the version to
// pass to pkg/snapshot's walk.
func (s *Slice) BeginSnapshot(index int, hook hashtable.SnapshotHook) uint64 {
	return s.db(index).table.BeginSnapshot(hook)
}

// EndSnapshot stops out-of-turn tracking on one database's table.
func (s *Slice) EndSnapshot(index int) {
	s.db(index).table.EndSnapshot()
}

// Table exposes the underlying hash table for a database, for callers
// (pkg/snapshot, pkg/maintenance) that need direct bucket-level access.
func (s *Slice) Table(index int) *hashtable.Table {
	return s.db(index).table
}

// DatabaseIndices returns every logical database index that has been
// touched on this shard.
func (s *Slice) DatabaseIndices() []int {
	out := make([]int, 0, len(s.dbs))
	for i := range s.dbs {
		out = append(out, i)
	}
	return out
}
