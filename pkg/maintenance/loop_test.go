package maintenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/engine"
	"github.com/cuemby/shardkv/pkg/types"
)

func TestLoopActiveExpireReclaimsDueKeys(t *testing.T) {
	slice := dbslice.New(0)
	slice.Set(0, "gone", types.NewStringValue("v"))
	slice.Expire(0, "gone", 1) // already past, any nowMs > 1
	slice.Set(0, "keeper", types.NewStringValue("v"))

	l := NewLoop()
	l.tick(0, slice)

	_, found := slice.Find(0, "gone")
	assert.False(t, found)
	_, found = slice.Find(0, "keeper")
	assert.True(t, found)
}

func TestLoopRotatesStatsWindow(t *testing.T) {
	slice := dbslice.New(0)
	slice.Set(0, "a", types.NewStringValue("v"))

	l := NewLoop()
	l.tick(0, slice)
	l.tick(0, slice)

	window := l.Window(0, 0)
	require.Len(t, window, 2)
	assert.EqualValues(t, 1, window[0].Keys)
	assert.EqualValues(t, 1, window[1].Keys)
}

func TestLoopWindowEmptyForUnknownShard(t *testing.T) {
	l := NewLoop()
	assert.Nil(t, l.Window(9, 0))
}

func TestLoopAttachesToShardMaintenanceTick(t *testing.T) {
	shard := engine.New(0, 10*time.Millisecond)
	l := NewLoop()
	l.Attach(shard)
	shard.Start()
	defer shard.Stop()

	shard.RunInline(func(slice *dbslice.Slice) {
		slice.Set(0, "k", types.NewStringValue("v"))
	})

	require.Eventually(t, func() bool {
		return len(l.Window(0, 0)) > 0
	}, time.Second, 10*time.Millisecond)
}
