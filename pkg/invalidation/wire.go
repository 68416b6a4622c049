package invalidation

import "github.com/cuemby/shardkv/pkg/dbslice"

// WireSlice registers a dbslice.ChangeCallback on slice that republishes
// every mutation as an invalidation Event. Call it once per engine shard
// at startup, matching pkg/events.Broker's cluster-side hook sites in the
// teacher, which subscribe to state-machine mutations at construction
// time rather than per-request.
func WireSlice(b *Broker, slice *dbslice.Slice) uint64 {
	return slice.RegisterOnChange(func(ev dbslice.ChangeEvent) {
		b.Publish(&Event{Key: []byte(ev.Key), DBIndex: ev.DBIndex})
	})
}
