package listener

import "sync"

// ShardPicker tracks each shard's live connection count and hands new
// connections to whichever shard currently has the fewest, under a
// single short-held mutex — the Go analogue of Listener's
// absl::base_internal::SpinLock-guarded per_thread_/min_cnt_ bookkeeping
// in dragonfly_listener.cc. The original also biases placement toward
// the CPU that received the packet's RX interrupt (SO_INCOMING_CPU);
// that affinity tuning has no portable Go equivalent and is dropped,
// leaving least-connections as the sole placement rule.
type ShardPicker struct {
	mu          sync.Mutex
	counts      []int32
	minCount    int32
	minShardIdx uint32
}

// NewShardPicker builds a picker over numShards local shards.
func NewShardPicker(numShards int) *ShardPicker {
	return &ShardPicker{counts: make([]int32, numShards)}
}

// Acquire returns the least-loaded shard and increments its count.
func (p *ShardPicker) Acquire() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.minShardIdx
	p.counts[id]++
	p.recomputeMin()
	return id
}

// Release decrements shardID's count, reopening it as a placement
// candidate if it drops below the current minimum.
func (p *ShardPicker) Release(shardID uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[shardID]--
	p.recomputeMin()
}

func (p *ShardPicker) recomputeMin() {
	minIdx, minVal := uint32(0), p.counts[0]
	for i, c := range p.counts {
		if c < minVal {
			minVal, minIdx = c, uint32(i)
		}
	}
	p.minCount, p.minShardIdx = minVal, minIdx
}

// Count reports shardID's current connection count (test/metrics use).
func (p *ShardPicker) Count(shardID uint32) int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[shardID]
}

// Total reports the live connection count across every shard this picker
// places onto, for enforcing a listener-wide max-clients ceiling.
func (p *ShardPicker) Total() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total int32
	for _, c := range p.counts {
		total += c
	}
	return total
}
