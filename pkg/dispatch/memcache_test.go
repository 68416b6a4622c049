package dispatch

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardkv/pkg/engine"
	"github.com/cuemby/shardkv/pkg/memcache"
	"github.com/cuemby/shardkv/pkg/shardmap"
	"github.com/cuemby/shardkv/pkg/txn"
)

func newTestMemcacheAdapter(t *testing.T) *MemcacheAdapter {
	t.Helper()
	shards := make([]*engine.Shard, 2)
	for i := range shards {
		shards[i] = engine.New(uint32(i), time.Hour)
		shards[i].Start()
		t.Cleanup(shards[i].Stop)
	}
	r := NewRegistry()
	RegisterAll(r)
	exec := NewExecutor(r, shardmap.New(2), txn.NewCoordinator(shards))
	return NewMemcacheAdapter(exec)
}

func runMemcache(t *testing.T, a *MemcacheAdapter, cmd *memcache.Command) string {
	t.Helper()
	var buf bytes.Buffer
	w := memcache.NewWriter(&buf)
	require.NoError(t, a.Handle(0, cmd, w))
	require.NoError(t, w.Flush())
	return buf.String()
}

func TestMemcacheSetAndGet(t *testing.T) {
	a := newTestMemcacheAdapter(t)

	out := runMemcache(t, a, &memcache.Command{Name: memcache.CmdSet, Key: "foo", Payload: []byte("bar")})
	assert.Equal(t, "STORED\r\n", out)

	out = runMemcache(t, a, &memcache.Command{Name: memcache.CmdGet, Key: "foo"})
	assert.Equal(t, "VALUE foo 0 3\r\nbar\r\nEND\r\n", out)
}

func TestMemcacheGetMiss(t *testing.T) {
	a := newTestMemcacheAdapter(t)
	out := runMemcache(t, a, &memcache.Command{Name: memcache.CmdGet, Key: "missing"})
	assert.Equal(t, "END\r\n", out)
}

func TestMemcacheAddRejectsExisting(t *testing.T) {
	a := newTestMemcacheAdapter(t)
	runMemcache(t, a, &memcache.Command{Name: memcache.CmdSet, Key: "k", Payload: []byte("1")})

	out := runMemcache(t, a, &memcache.Command{Name: memcache.CmdAdd, Key: "k", Payload: []byte("2")})
	assert.Equal(t, "NOT_STORED\r\n", out)
}

func TestMemcacheReplaceRequiresExisting(t *testing.T) {
	a := newTestMemcacheAdapter(t)
	out := runMemcache(t, a, &memcache.Command{Name: memcache.CmdReplace, Key: "k", Payload: []byte("1")})
	assert.Equal(t, "NOT_STORED\r\n", out)
}

func TestMemcacheDelete(t *testing.T) {
	a := newTestMemcacheAdapter(t)
	runMemcache(t, a, &memcache.Command{Name: memcache.CmdSet, Key: "k", Payload: []byte("1")})

	out := runMemcache(t, a, &memcache.Command{Name: memcache.CmdDelete, Key: "k"})
	assert.Equal(t, "DELETED\r\n", out)

	out = runMemcache(t, a, &memcache.Command{Name: memcache.CmdDelete, Key: "k"})
	assert.Equal(t, "NOT_FOUND\r\n", out)
}

func TestMemcacheIncrDecr(t *testing.T) {
	a := newTestMemcacheAdapter(t)
	runMemcache(t, a, &memcache.Command{Name: memcache.CmdSet, Key: "n", Payload: []byte("10")})

	out := runMemcache(t, a, &memcache.Command{Name: memcache.CmdIncr, Key: "n", Delta: 5})
	assert.Equal(t, "15\r\n", out)

	out = runMemcache(t, a, &memcache.Command{Name: memcache.CmdDecr, Key: "n", Delta: 20})
	assert.Equal(t, "0\r\n", out) // clamps at zero rather than going negative

	out = runMemcache(t, a, &memcache.Command{Name: memcache.CmdIncr, Key: "nope", Delta: 1})
	assert.Equal(t, "NOT_FOUND\r\n", out)
}

func TestMemcacheIncrOnNonNumeric(t *testing.T) {
	a := newTestMemcacheAdapter(t)
	runMemcache(t, a, &memcache.Command{Name: memcache.CmdSet, Key: "k", Payload: []byte("notanumber")})

	out := runMemcache(t, a, &memcache.Command{Name: memcache.CmdIncr, Key: "k", Delta: 1})
	assert.Contains(t, out, "CLIENT_ERROR")
}
