package snapshot

import (
	"errors"

	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/hashtable"
	"github.com/cuemby/shardkv/pkg/metrics"
	"github.com/cuemby/shardkv/pkg/types"
)

// RecordKind discriminates the entries a Producer emits onto its
// destination channel.
type RecordKind uint8

const (
	// RecordKV carries one live key/value pair.
	RecordKV RecordKind = iota
	// RecordFullSyncCut marks the boundary between the point-in-time dump
	// and the live journal stream a replica should splice onto it
	// (spec.md §4.9's full-sync-then-incremental handoff).
	RecordFullSyncCut
)

// Record is one unit of snapshot output.
type Record struct {
	Kind    RecordKind
	DBIndex int
	Key     string
	Value   *types.PrimeValue
}

// ErrCancelled is returned by Run when cancel fires before the walk
// completes.
var ErrCancelled = errors.New("snapshot: cancelled")

// Producer walks one shard's DbSlice and emits every live key exactly
// once, using the hash table's out-of-turn serialization hook to catch
// keys a concurrent write touches mid-walk.
type Producer struct {
	slice *dbslice.Slice
	dest  chan<- Record
}

// NewProducer builds a producer that writes to dest. dest should be
// buffered or drained concurrently — Run blocks sending to it.
func NewProducer(slice *dbslice.Slice, dest chan<- Record) *Producer {
	return &Producer{slice: slice, dest: dest}
}

// Run walks every database in the slice in bucket-index order, skipping
// buckets already serialized out of turn, and closes out with a RecordFullSyncCut. It must run on the shard's own
// goroutine, same as every other DbSlice access.
func (p *Producer) Run(cancel <-chan struct{}) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SnapshotDuration)

	indices := p.slice.DatabaseIndices()
	versions := make(map[int]uint64, len(indices))

	for _, idx := range indices {
		dbIndex := idx
		hook := func(bucketIndex int, entries []*hashtable.Entry) {
			for _, e := range entries {
				metrics.SnapshotBucketsOutOfTurn.Inc()
				select {
				case p.dest <- Record{Kind: RecordKV, DBIndex: dbIndex, Key: e.Key, Value: e.Value}:
				case <-cancel:
				}
			}
		}
		versions[dbIndex] = p.slice.BeginSnapshot(dbIndex, hook)
	}
	defer func() {
		for _, idx := range indices {
			p.slice.EndSnapshot(idx)
		}
	}()

	for _, idx := range indices {
		if err := p.walkOne(idx, versions[idx], cancel); err != nil {
			return err
		}
	}

	select {
	case p.dest <- Record{Kind: RecordFullSyncCut}:
	case <-cancel:
		return ErrCancelled
	}
	return nil
}

// walkOne drives the forward, in-order walk over one database's buckets.
// It uses ScanVersioned rather than Scan so a bucket an out-of-turn
// mutation already serialized (see Run's hook) is skipped here instead of
// being emitted a second time with its post-mutation value.
func (p *Producer) walkOne(idx int, version uint64, cancel <-chan struct{}) error {
	var cursor dbslice.Cursor
	first := true
	for first || cursor != 0 {
		first = false
		select {
		case <-cancel:
			return ErrCancelled
		default:
		}

		var sendErr error
		cursor = p.slice.ScanVersioned(idx, cursor, version, func(key string, value *types.PrimeValue) {
			if sendErr != nil {
				return
			}
			select {
			case p.dest <- Record{Kind: RecordKV, DBIndex: idx, Key: key, Value: value}:
			case <-cancel:
				sendErr = ErrCancelled
			}
		})
		if sendErr != nil {
			return sendErr
		}
	}
	return nil
}
