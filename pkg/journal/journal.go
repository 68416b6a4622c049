package journal

import (
	"sync"

	"github.com/cuemby/shardkv/pkg/metrics"
	"github.com/cuemby/shardkv/pkg/types"
)

// Op classifies one journal entry, mirroring
// original_source/src/server/journal/types.h's journal::Op.
type Op uint8

const (
	OpNoop Op = iota
	OpSelect
	OpExpired
	OpCommand
	OpMultiCommand
	OpExec
	OpFin
)

// Entry is one record in the log: either a control marker (OpSelect,
// OpFin, ...) or a command that mutated the keyspace.
type Entry struct {
	LSN     uint64
	TxID    types.TxId
	Op      Op
	DBIndex int
	Args    [][]byte
}

// ChangeCallback is invoked synchronously, on the appending goroutine,
// for every entry appended. It must not block.
type ChangeCallback func(Entry)

// Journal is one shard's bounded ring buffer of committed mutations.
// Capacity is fixed at construction: once full, appending evicts the
// oldest entry, and any replica still behind that LSN must fall back to
// a full snapshot (spec.md §4.9).
type Journal struct {
	mu       sync.Mutex
	buf      []Entry
	capacity int
	nextLSN  uint64
	headLSN  uint64

	subs    map[uint64]ChangeCallback
	nextSub uint64
}

// New builds a journal retaining at most capacity entries.
func New(capacity int) *Journal {
	return &Journal{
		capacity: capacity,
		buf:      make([]Entry, 0, capacity),
		subs:     make(map[uint64]ChangeCallback),
	}
}

// Append assigns the next LSN to e and records it, evicting the oldest
// entry first if the buffer is full. Subscribers are invoked after the
// entry is durable in the buffer.
func (j *Journal) Append(op Op, dbIndex int, txID types.TxId, args [][]byte) Entry {
	j.mu.Lock()
	lsn := j.nextLSN
	j.nextLSN++
	e := Entry{LSN: lsn, TxID: txID, Op: op, DBIndex: dbIndex, Args: args}

	if len(j.buf) >= j.capacity {
		j.buf = j.buf[1:]
		j.headLSN++
		metrics.JournalEvictedRecords.Inc()
	}
	j.buf = append(j.buf, e)
	metrics.JournalLSN.Set(float64(lsn))

	cbs := make([]ChangeCallback, 0, len(j.subs))
	for _, cb := range j.subs {
		cbs = append(cbs, cb)
	}
	j.mu.Unlock()

	for _, cb := range cbs {
		cb(e)
	}
	return e
}

// LSN reports the next LSN that will be assigned — equivalently, one past
// the highest LSN currently recorded.
func (j *Journal) LSN() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextLSN
}

// IsLSNInBuffer reports whether lsn is still retained (not yet evicted,
// and not in the future).
func (j *Journal) IsLSNInBuffer(lsn uint64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return lsn >= j.headLSN && lsn < j.nextLSN
}

// Entry returns the buffered entry at lsn, if it hasn't been evicted.
func (j *Journal) Entry(lsn uint64) (Entry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if lsn < j.headLSN || lsn >= j.nextLSN {
		return Entry{}, false
	}
	return j.buf[lsn-j.headLSN], true
}

// RegisterOnChange subscribes cb to every future append, returning an ID
// for UnregisterOnChange.
func (j *Journal) RegisterOnChange(cb ChangeCallback) uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	id := j.nextSub
	j.nextSub++
	j.subs[id] = cb
	return id
}

// UnregisterOnChange removes a subscription registered by RegisterOnChange.
func (j *Journal) UnregisterOnChange(id uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.subs, id)
}
