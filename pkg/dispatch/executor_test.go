package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardkv/pkg/engine"
	"github.com/cuemby/shardkv/pkg/resp"
	"github.com/cuemby/shardkv/pkg/shardmap"
	"github.com/cuemby/shardkv/pkg/txn"
)

func newTestExecutor(t *testing.T, numShards int) (*Executor, []*engine.Shard) {
	t.Helper()
	shards := make([]*engine.Shard, numShards)
	for i := range shards {
		shards[i] = engine.New(uint32(i), time.Hour)
		shards[i].Start()
		t.Cleanup(shards[i].Stop)
	}
	r := NewRegistry()
	RegisterAll(r)
	coord := txn.NewCoordinator(shards)
	mapper := shardmap.New(uint32(numShards))
	return NewExecutor(r, mapper, coord), shards
}

func TestExecutorRoutesSetAndGetToSameShard(t *testing.T) {
	e, _ := newTestExecutor(t, 4)

	reply := e.Dispatch(argv("SET", "foo", "bar"))
	assert.Equal(t, resp.SimpleString("OK"), reply)

	reply = e.Dispatch(argv("GET", "foo"))
	assert.Equal(t, resp.Bulk("bar"), reply)
}

func TestExecutorUnknownCommand(t *testing.T) {
	e, _ := newTestExecutor(t, 1)
	reply := e.Dispatch(argv("NOPE", "a"))
	assert.Equal(t, resp.KindError, reply.Kind)
}

func TestExecutorArityMismatch(t *testing.T) {
	e, _ := newTestExecutor(t, 1)
	reply := e.Dispatch(argv("GET"))
	assert.Equal(t, resp.KindError, reply.Kind)
}

func TestExecutorGlobalCommandTouchesEveryShard(t *testing.T) {
	e, _ := newTestExecutor(t, 3)

	e.Dispatch(argv("SET", "k1", "v")) // lands on whichever shard k1 hashes to
	reply := e.Dispatch(argv("FLUSHALL"))
	assert.Equal(t, resp.SimpleString("OK"), reply)

	reply = e.Dispatch(argv("GET", "k1"))
	assert.Equal(t, resp.NullBulk(), reply)
}

func TestExecutorUnroutedCommandRunsOnShardZero(t *testing.T) {
	e, _ := newTestExecutor(t, 2)
	reply := e.Dispatch(argv("PING"))
	assert.Equal(t, resp.SimpleString("PONG"), reply)
}

func TestExecutorKeysOnDifferentShardsStayIndependent(t *testing.T) {
	e, _ := newTestExecutor(t, 8)
	for i := 0; i < 20; i++ {
		key := string(rune('a' + i))
		reply := e.Dispatch(argv("SET", key, key))
		require.Equal(t, resp.SimpleString("OK"), reply)
	}
	for i := 0; i < 20; i++ {
		key := string(rune('a' + i))
		reply := e.Dispatch(argv("GET", key))
		assert.Equal(t, resp.Bulk(key), reply)
	}
}
