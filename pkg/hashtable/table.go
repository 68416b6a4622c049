package hashtable

import (
	"github.com/cespare/xxhash/v2"

	"github.com/cuemby/shardkv/pkg/types"
)

// bucketKind is the state a single bucket slot is in.
type bucketKind uint8

const (
	bucketEmpty bucketKind = iota
	bucketInline
	bucketChain
)

// flag bits, kept alongside the bucket rather than stolen from a pointer
// (see doc.go).
type flag uint8

const (
	flagTTL flag = 1 << iota
	// flagHomeRight: the entry stored in this bucket actually belongs to
	// the bucket one to the right (it was displaced left of its home).
	flagHomeRight
	// flagHomeLeft: the entry stored in this bucket actually belongs to
	// the bucket one to the left (it was displaced right of its home).
	flagHomeLeft
)

func (f flag) has(bit flag) bool { return f&bit != 0 }

// Entry is one inline or chained record: a key plus its value. Expiration
// is tracked out-of-line in types.DbTable, not here.
type Entry struct {
	Key   string
	Value *types.PrimeValue
}

type chainNode struct {
	entry Entry
	next  *chainNode
}

type bucket struct {
	kind  bucketKind
	flags flag
	entry Entry      // valid iff kind == bucketInline
	chain *chainNode // valid iff kind == bucketChain
}

// Table is the dense hash table described in spec.md §4.1. The zero value
// is not usable; construct with New.
type Table struct {
	buckets []bucket
	mask    uint64
	count   int
	version uint64 // bumped on every mutation; snapshot uses this as V

	bucketVersion []uint64 // parallel to buckets; last version each bucket was serialized at

	// snapshot-in-flight state. Only one snapshot walk may be active on a
	// table at a time: BeginSnapshot panics if one is already open, and
	// nothing in pkg/snapshot queues a second walk.
	snapshotV    uint64
	snapshotFn   SnapshotHook
	snapshotOpen bool
}

// SnapshotHook is invoked synchronously, before a bucket's content is
// mutated, for any bucket whose serialized version is still behind the
// active snapshot's V. It must copy out whatever it needs from entries
// before returning; the slice is only valid for the call's duration.
type SnapshotHook func(bucketIndex int, entries []*Entry)

const (
	initialBuckets = 16
	maxLoadNum     = 7
	maxLoadDen     = 8 // grow when count/size > 7/8
)

// New constructs an empty table with room for at least hint entries.
func New(hint int) *Table {
	size := uint64(initialBuckets)
	for int(size)*maxLoadNum/maxLoadDen < hint {
		size *= 2
	}
	return &Table{
		buckets:       make([]bucket, size),
		mask:          size - 1,
		bucketVersion: make([]uint64, size),
	}
}

// BeginSnapshot starts tracking per-bucket serialization against a new
// walk: V is the table's current change-version, and hook fires for any
// bucket mutated before the walk (pkg/snapshot's cursor loop) reaches it.
// Panics if a snapshot is already open, since the engine shard's loop is
// single-threaded and a second concurrent full-sync must be queued by the
// caller instead.
func (t *Table) BeginSnapshot(hook SnapshotHook) (v uint64) {
	if t.snapshotOpen {
		panic("hashtable: BeginSnapshot called while a snapshot is already in flight")
	}
	t.snapshotOpen = true
	t.snapshotV = t.version
	t.snapshotFn = hook
	return t.snapshotV
}

// EndSnapshot stops out-of-turn serialization tracking.
func (t *Table) EndSnapshot() {
	t.snapshotOpen = false
	t.snapshotFn = nil
}

// BucketVersion reports the version a bucket was last serialized at (0 if
// never). Used by pkg/snapshot's forward walk to skip buckets an
// out-of-turn mutation already captured.
func (t *Table) BucketVersion(index int) uint64 {
	if index < 0 || index >= len(t.bucketVersion) {
		return 0
	}
	return t.bucketVersion[index]
}

// MarkBucketSerialized records that a bucket has been written to the
// snapshot's output as of the given version.
func (t *Table) MarkBucketSerialized(index int, version uint64) {
	if index >= 0 && index < len(t.bucketVersion) {
		t.bucketVersion[index] = version
	}
}

// BucketEntries returns the live entries in a single bucket (its inline
// entry, or its whole chain), for the snapshot producer's per-bucket
// serialization step.
func (t *Table) BucketEntries(index int) []*Entry {
	b := &t.buckets[index]
	switch b.kind {
	case bucketInline:
		return []*Entry{&b.entry}
	case bucketChain:
		var out []*Entry
		for n := b.chain; n != nil; n = n.next {
			out = append(out, &n.entry)
		}
		return out
	default:
		return nil
	}
}

// BucketCount reports the number of addressable buckets (the table's
// physical size, a power of two).
func (t *Table) BucketCount() int { return len(t.buckets) }

// maybeSerializeOutOfTurn gives an active snapshot's hook first look at a
// bucket's pre-mutation content, then marks it done at V so the forward
// walk skips it when it gets there.
func (t *Table) maybeSerializeOutOfTurn(index uint64) {
	if !t.snapshotOpen {
		return
	}
	i := int(index)
	if t.bucketVersion[i] >= t.snapshotV {
		return
	}
	entries := t.BucketEntries(i)
	if len(entries) == 0 {
		t.bucketVersion[i] = t.snapshotV
		return
	}
	t.snapshotFn(i, entries)
	t.bucketVersion[i] = t.snapshotV
}

// Len reports the number of live entries.
func (t *Table) Len() int { return t.count }

// Version is the table's change-version counter; dbslice and the snapshot
// producer use it to tell which buckets have been serialized.
func (t *Table) Version() uint64 { return t.version }

func hashKey(key string) uint64 {
	return xxhash.Sum64String(key)
}

func (t *Table) natural(key string) uint64 {
	return hashKey(key) & t.mask
}

func (t *Table) left(i uint64) uint64  { return (i - 1) & t.mask }
func (t *Table) right(i uint64) uint64 { return (i + 1) & t.mask }

// Find looks up key, following displacement and chaining. It never mutates
// the table (no LRU bump), matching DbSlice.find's read-only contract.
func (t *Table) Find(key string) (*Entry, bool) {
	nb := t.natural(key)
	if e, ok := t.findAt(nb, key); ok {
		return e, true
	}
	return nil, false
}

func (t *Table) findAt(nb uint64, key string) (*Entry, bool) {
	b := &t.buckets[nb]
	switch b.kind {
	case bucketInline:
		if b.entry.Key == key {
			return &b.entry, true
		}
	case bucketChain:
		for n := b.chain; n != nil; n = n.next {
			if n.entry.Key == key {
				return &n.entry, true
			}
		}
	}
	if l := t.left(nb); t.buckets[l].kind == bucketInline && t.buckets[l].flags.has(flagHomeRight) && t.buckets[l].entry.Key == key {
		return &t.buckets[l].entry, true
	}
	if r := t.right(nb); t.buckets[r].kind == bucketInline && t.buckets[r].flags.has(flagHomeLeft) && t.buckets[r].entry.Key == key {
		return &t.buckets[r].entry, true
	}
	return nil, false
}

// Insert adds or replaces key's value, returning the stored entry and
// whether it is new.
func (t *Table) Insert(key string, value *types.PrimeValue) (*Entry, bool) {
	nb := t.natural(key)
	t.maybeSerializeOutOfTurn(nb)
	t.maybeSerializeOutOfTurn(t.left(nb))
	t.maybeSerializeOutOfTurn(t.right(nb))

	if e, ok := t.Find(key); ok {
		e.Value = value
		t.version++
		return e, false
	}
	if t.count+1 > len(t.buckets)*maxLoadNum/maxLoadDen {
		t.grow()
		nb = t.natural(key)
	}
	e := t.insertAt(nb, Entry{Key: key, Value: value})
	t.count++
	t.version++
	return e, true
}

func (t *Table) insertAt(nb uint64, entry Entry) *Entry {
	b := &t.buckets[nb]
	if b.kind == bucketEmpty {
		b.kind = bucketInline
		b.entry = entry
		return &b.entry
	}
	if b.kind == bucketInline {
		if l := t.left(nb); t.buckets[l].kind == bucketEmpty {
			nl := &t.buckets[l]
			nl.kind = bucketInline
			nl.entry = entry
			nl.flags |= flagHomeRight
			return &nl.entry
		}
		if r := t.right(nb); t.buckets[r].kind == bucketEmpty {
			nr := &t.buckets[r]
			nr.kind = bucketInline
			nr.entry = entry
			nr.flags |= flagHomeLeft
			return &nr.entry
		}
		if b.flags.has(flagHomeRight) || b.flags.has(flagHomeLeft) {
			// The occupant was displaced here from a neighbor and Find
			// only looks for it inline: give this bucket to entry and
			// place the occupant again from its own home bucket.
			home := t.right(nb)
			if b.flags.has(flagHomeLeft) {
				home = t.left(nb)
			}
			displaced := b.entry
			b.flags &^= flagHomeRight | flagHomeLeft
			b.entry = entry
			t.insertAt(home, displaced)
			e, _ := t.findAt(nb, entry.Key)
			return e
		}
		// Neither neighbor is free: promote to a chain and push-front
		// both the existing inline occupant and the new entry.
		existing := &chainNode{entry: b.entry}
		fresh := &chainNode{entry: entry, next: existing}
		b.kind = bucketChain
		b.entry = Entry{}
		b.chain = fresh
		return &fresh.entry
	}
	// bucketChain: push-front.
	node := &chainNode{entry: entry, next: b.chain}
	b.chain = node
	return &node.entry
}

// Delete removes key if present, returning whether it existed.
func (t *Table) Delete(key string) bool {
	nb := t.natural(key)
	t.maybeSerializeOutOfTurn(nb)
	t.maybeSerializeOutOfTurn(t.left(nb))
	t.maybeSerializeOutOfTurn(t.right(nb))
	b := &t.buckets[nb]

	switch b.kind {
	case bucketInline:
		if b.entry.Key == key {
			*b = bucket{}
			t.count--
			t.version++
			return true
		}
	case bucketChain:
		var prev *chainNode
		for n := b.chain; n != nil; n = n.next {
			if n.entry.Key != key {
				prev = n
				continue
			}
			if prev == nil {
				b.chain = n.next
			} else {
				prev.next = n.next
			}
			t.count--
			t.version++
			t.collapseChain(nb)
			return true
		}
	}

	if l := t.left(nb); t.buckets[l].kind == bucketInline && t.buckets[l].flags.has(flagHomeRight) && t.buckets[l].entry.Key == key {
		t.buckets[l] = bucket{}
		t.count--
		t.version++
		return true
	}
	if r := t.right(nb); t.buckets[r].kind == bucketInline && t.buckets[r].flags.has(flagHomeLeft) && t.buckets[r].entry.Key == key {
		t.buckets[r] = bucket{}
		t.count--
		t.version++
		return true
	}
	return false
}

// collapseChain demotes a bucket back to inline (or empty) once its chain
// has zero or one node left.
func (t *Table) collapseChain(nb uint64) {
	b := &t.buckets[nb]
	if b.kind != bucketChain {
		return
	}
	if b.chain == nil {
		*b = bucket{}
		return
	}
	if b.chain.next == nil {
		b.kind = bucketInline
		b.entry = b.chain.entry
		b.chain = nil
	}
}

// grow doubles the bucket count and rehashes every entry. This is a
// bounded, non-suspending operation: no fiber yield happens mid-grow.
func (t *Table) grow() {
	old := t.buckets
	t.buckets = make([]bucket, len(old)*2)
	t.bucketVersion = make([]uint64, len(old)*2)
	t.mask = uint64(len(t.buckets)) - 1
	for i := range old {
		switch old[i].kind {
		case bucketInline:
			nb := t.natural(old[i].entry.Key)
			t.insertAt(nb, old[i].entry)
		case bucketChain:
			for n := old[i].chain; n != nil; n = n.next {
				nb := t.natural(n.entry.Key)
				t.insertAt(nb, n.entry)
			}
		}
	}
}

// minLoadDen is the other side of grow's load factor: shrink only once
// occupancy drops below count/size < 1/minLoadDen, so a table that just
// grew doesn't immediately shrink back on the next few deletes.
const minLoadDen = 8

// DefragStep halves the bucket count and rehashes every entry if the
// table has become sparse (count/size below 1/minLoadDen), the same
// bounded, non-suspending rehash grow performs, run in reverse. It
// reports whether a shrink happened. Called once per pkg/maintenance
// tick per logical database (spec.md §4.4 step 4's "heap defragmentation
// step") — this is the Go-native analogue of DragonflyDB's per-thread
// heap defragmentation: there is no custom allocator to compact here, so
// the fragmentation this collapses is bucket-chain sparsity rather than
// heap pages.
func (t *Table) DefragStep() bool {
	if len(t.buckets) <= initialBuckets {
		return false
	}
	if t.count*minLoadDen >= len(t.buckets) {
		return false
	}

	old := t.buckets
	newSize := len(old) / 2
	for newSize > initialBuckets && t.count*minLoadDen < newSize {
		newSize /= 2
	}

	t.buckets = make([]bucket, newSize)
	t.bucketVersion = make([]uint64, newSize)
	t.mask = uint64(newSize) - 1
	t.version++

	for i := range old {
		switch old[i].kind {
		case bucketInline:
			nb := t.natural(old[i].entry.Key)
			t.insertAt(nb, old[i].entry)
		case bucketChain:
			for n := old[i].chain; n != nil; n = n.next {
				nb := t.natural(n.entry.Key)
				t.insertAt(nb, n.entry)
			}
		}
	}
	return true
}

// Cursor resumes a Scan. The zero Cursor starts a fresh traversal.
type Cursor uint64

// Scan visits entries starting at cursor, calling emit for each, batching
// one bucket (plus its whole chain) per call, and returns the cursor to
// resume from. A returned cursor of 0 after a non-empty table means the
// scan has completed a full pass. The cursor is a plain bucket index: if
// the table grows or shrinks between calls it is reinterpreted against the
// new bucket count, and entries moved by the rehash may be visited twice
// or not at all.
func (t *Table) Scan(cursor Cursor, emit func(*Entry)) Cursor {
	size := uint64(len(t.buckets))
	i := uint64(cursor) & (size - 1)
	b := &t.buckets[i]
	switch b.kind {
	case bucketInline:
		emit(&b.entry)
	case bucketChain:
		for n := b.chain; n != nil; n = n.next {
			emit(&n.entry)
		}
	}
	next := (i + 1) & (size - 1)
	if next == 0 {
		return 0
	}
	return Cursor(next)
}
