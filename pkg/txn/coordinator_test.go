package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/engine"
	"github.com/cuemby/shardkv/pkg/types"
)

func newShards(t *testing.T, n int) []*engine.Shard {
	t.Helper()
	shards := make([]*engine.Shard, n)
	for i := range shards {
		shards[i] = engine.New(uint32(i), 0)
		shards[i].Start()
		t.Cleanup(shards[i].Stop)
	}
	return shards
}

func TestInlineSingleShard(t *testing.T) {
	shards := newShards(t, 1)
	c := NewCoordinator(shards)

	tx := c.Schedule([]uint32{0}, false)
	assert.Equal(t, types.TxnScheduled, tx.State())

	c.Inline(tx, func(slice *dbslice.Slice) {
		slice.Set(0, "a", types.NewStringValue("1"))
	})
	assert.Equal(t, types.TxnConcluded, tx.State())

	v, ok := shards[0].Slice().Find(0, "a")
	require.True(t, ok)
	assert.Equal(t, "1", v.Str)
}

func TestExecuteAcrossMultipleShards(t *testing.T) {
	shards := newShards(t, 3)
	c := NewCoordinator(shards)

	tx := c.Schedule([]uint32{0, 1, 2}, false)
	c.Execute(tx, func(slice *dbslice.Slice) {
		slice.Set(0, "k", types.NewStringValue("v"))
	})
	assert.Equal(t, types.TxnConcluded, tx.State())

	for _, s := range shards {
		v, ok := s.Slice().Find(0, "k")
		require.True(t, ok)
		assert.Equal(t, "v", v.Str)
	}
}

func TestMultiHopKeepsTransactionRunningBetweenHops(t *testing.T) {
	shards := newShards(t, 1)
	c := NewCoordinator(shards)

	tx := c.Schedule([]uint32{0}, false)
	c.Hop(tx, 0, func(slice *dbslice.Slice) {
		slice.Set(0, "a", types.NewStringValue("step1"))
	})
	assert.Equal(t, types.TxnRunning, tx.State())

	c.Conclude(tx, 0, func(slice *dbslice.Slice) {
		slice.Set(0, "a", types.NewStringValue("step2"))
	})
	assert.Equal(t, types.TxnConcluded, tx.State())

	v, ok := shards[0].Slice().Find(0, "a")
	require.True(t, ok)
	assert.Equal(t, "step2", v.Str)
}

func TestGlobalTransactionTouchesEveryShard(t *testing.T) {
	shards := newShards(t, 4)
	c := NewCoordinator(shards)

	c.Global(func(slice *dbslice.Slice) {
		slice.Set(0, "flag", types.NewStringValue("set"))
	})

	for _, s := range shards {
		v, ok := s.Slice().Find(0, "flag")
		require.True(t, ok)
		assert.Equal(t, "set", v.Str)
	}
}

func TestReadOnlyDoesNotAssignTxId(t *testing.T) {
	shards := newShards(t, 1)
	c := NewCoordinator(shards)
	shards[0].Slice().Set(0, "a", types.NewStringValue("1"))

	var got string
	c.ReadOnly(0, func(slice *dbslice.Slice) {
		v, _ := slice.Find(0, "a")
		got = v.Str
	})
	assert.Equal(t, "1", got)
}

func TestCancelFiresToken(t *testing.T) {
	shards := newShards(t, 1)
	c := NewCoordinator(shards)
	tx := c.Schedule([]uint32{0}, false)

	assert.False(t, tx.Cancel.Fired())
	assert.True(t, c.Cancel(tx.ID))
	assert.True(t, tx.Cancel.Fired())

	assert.False(t, c.Cancel(types.TxId(99999)))
}

func TestTxIdsAreMonotonic(t *testing.T) {
	shards := newShards(t, 1)
	c := NewCoordinator(shards)
	tx1 := c.Schedule([]uint32{0}, false)
	tx2 := c.Schedule([]uint32{0}, false)
	assert.Greater(t, tx2.ID, tx1.ID)
}
