package types

import "time"

// DbStats are the aggregate counters a DbTable maintains alongside its
// primary table.
type DbStats struct {
	Keys        int64
	Expires     int64
	ExpiredHits int64
}

// DbTable is one logical database index's state: a primary key->value table
// (owned by hashtable.Table in practice; this struct only carries the
// expiration side-table and flags that dbslice reasons about directly),
// an expiration table, and aggregate statistics.
type DbTable struct {
	Index   int
	Expires map[string]int64 // key -> absolute expiry unix ms
	Stats   DbStats
}

// NewDbTable constructs an empty logical database.
func NewDbTable(index int) *DbTable {
	return &DbTable{Index: index, Expires: make(map[string]int64)}
}

// ExpiresAt reports a key's absolute expiry and whether one is set.
func (d *DbTable) ExpiresAt(key string) (int64, bool) {
	ms, ok := d.Expires[key]
	return ms, ok
}

// SetExpireAt installs or updates a key's expiration entry.
func (d *DbTable) SetExpireAt(key string, atMs int64) {
	if _, existed := d.Expires[key]; !existed {
		d.Stats.Expires++
	}
	d.Expires[key] = atMs
}

// Persist removes a key's expiration entry. Returns true if one existed.
// Must be called in the same shard hop as clearing PrimeValue.Flags'
// FlagExpire bit so the two stay consistent (see DESIGN.md Open Question).
func (d *DbTable) Persist(key string) bool {
	if _, ok := d.Expires[key]; !ok {
		return false
	}
	delete(d.Expires, key)
	d.Stats.Expires--
	return true
}

// IsExpired reports whether now (unix ms) is at or past key's expiry.
func (d *DbTable) IsExpired(key string, nowMs int64) bool {
	at, ok := d.Expires[key]
	return ok && nowMs >= at
}

// NowMs is the unit the expiration table and journal EXPIRED records use.
func NowMs(t time.Time) int64 { return t.UnixMilli() }
