package dbslice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardkv/pkg/hashtable"
	"github.com/cuemby/shardkv/pkg/types"
)

func TestAddOrFindAndFind(t *testing.T) {
	s := New(0)
	_, isNew := s.AddOrFind(0, "a", types.NewStringValue("1"))
	assert.True(t, isNew)

	_, isNew = s.AddOrFind(0, "a", types.NewStringValue("ignored"))
	assert.False(t, isNew, "existing key is returned, not replaced")

	v, ok := s.Find(0, "a")
	require.True(t, ok)
	assert.Equal(t, "1", v.Str)
}

func TestSetReplacesValue(t *testing.T) {
	s := New(0)
	s.Set(0, "a", types.NewStringValue("1"))
	s.Set(0, "a", types.NewStringValue("2"))
	v, ok := s.Find(0, "a")
	require.True(t, ok)
	assert.Equal(t, "2", v.Str)
}

func TestDeleteClearsExpiration(t *testing.T) {
	s := New(0)
	s.Set(0, "a", types.NewStringValue("1"))
	s.Expire(0, "a", 1)
	assert.True(t, s.Delete(0, "a"))
	assert.False(t, s.Delete(0, "a"))
	_, ok := s.TTL(0, "a")
	assert.False(t, ok)
}

func TestLazyExpirationOnFind(t *testing.T) {
	now := time.Unix(1000, 0)
	s := New(0)
	s.clock = func() time.Time { return now }
	s.Set(0, "a", types.NewStringValue("1"))
	s.Expire(0, "a", types.NowMs(now)-1)

	_, ok := s.Find(0, "a")
	assert.False(t, ok, "an already-past expiry is deleted lazily on access")

	stats := s.Stats(0)
	assert.EqualValues(t, 1, stats.ExpiredHits)
}

func TestExpireDisabledSuppressesLazyCheck(t *testing.T) {
	now := time.Unix(1000, 0)
	s := New(0)
	s.clock = func() time.Time { return now }
	s.Set(0, "a", types.NewStringValue("1"))
	s.Expire(0, "a", types.NowMs(now)-1)
	s.SetExpireEnabled(false)

	v, ok := s.Find(0, "a")
	require.True(t, ok, "expiration checks are suppressed while disabled")
	assert.Equal(t, "1", v.Str)
}

func TestActiveExpireCycleRemovesOnlyDueKeys(t *testing.T) {
	now := time.Unix(1000, 0)
	s := New(0)
	s.clock = func() time.Time { return now }

	s.Set(0, "due", types.NewStringValue("1"))
	s.Expire(0, "due", types.NowMs(now)-1)

	s.Set(0, "notdue", types.NewStringValue("2"))
	s.Expire(0, "notdue", types.NowMs(now)+1_000_000)

	s.Set(0, "no-ttl", types.NewStringValue("3"))

	removed := s.ActiveExpireCycle(0, 10)
	assert.Equal(t, 1, removed)

	_, ok := s.Find(0, "due")
	assert.False(t, ok)
	_, ok = s.Find(0, "notdue")
	assert.True(t, ok)
	_, ok = s.Find(0, "no-ttl")
	assert.True(t, ok)
}

func TestActiveExpireCycleRespectsLimit(t *testing.T) {
	now := time.Unix(1000, 0)
	s := New(0)
	s.clock = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		key := string(rune('a' + i))
		s.Set(0, key, types.NewStringValue("v"))
		s.Expire(0, key, types.NowMs(now)-1)
	}

	removed := s.ActiveExpireCycle(0, 2)
	assert.Equal(t, 2, removed)
	assert.EqualValues(t, 3, s.Stats(0).Keys)
}

func TestFlushDB(t *testing.T) {
	s := New(0)
	s.Set(0, "a", types.NewStringValue("1"))
	s.Set(1, "b", types.NewStringValue("2"))

	s.FlushDB(0)
	_, ok := s.Find(0, "a")
	assert.False(t, ok)
	v, ok := s.Find(1, "b")
	require.True(t, ok)
	assert.Equal(t, "2", v.Str)

	s.FlushDB(-1)
	_, ok = s.Find(1, "b")
	assert.False(t, ok)
}

func TestRegisterOnChangeFiresAndUnregisters(t *testing.T) {
	s := New(0)
	var events []ChangeEvent
	id := s.RegisterOnChange(func(ev ChangeEvent) { events = append(events, ev) })

	s.Set(0, "a", types.NewStringValue("1"))
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].Key)
	assert.False(t, events[0].Deleted)

	s.Delete(0, "a")
	require.Len(t, events, 2)
	assert.True(t, events[1].Deleted)

	s.UnregisterOnChange(id)
	s.Set(0, "b", types.NewStringValue("2"))
	assert.Len(t, events, 2, "no further callbacks after unregister")
}

func TestFindMutableCommitFiresChangeAfterMutation(t *testing.T) {
	s := New(0)
	s.Set(0, "a", types.NewStringValue("1"))

	var got ChangeEvent
	s.RegisterOnChange(func(ev ChangeEvent) { got = ev })

	v, receipt, ok := s.FindMutable(0, "a")
	require.True(t, ok)
	v.Str = "2"
	receipt.Commit()
	receipt.Commit() // idempotent

	assert.Equal(t, "2", got.Value.Str)

	v2, ok := s.Find(0, "a")
	require.True(t, ok)
	assert.Equal(t, "2", v2.Str)
}

func TestScanVisitsLiveKeysOnly(t *testing.T) {
	now := time.Unix(1000, 0)
	s := New(0)
	s.clock = func() time.Time { return now }
	for _, k := range []string{"a", "b", "c"} {
		s.Set(0, k, types.NewStringValue(k))
	}
	s.Expire(0, "b", types.NowMs(now)-1)

	seen := map[string]bool{}
	var cursor Cursor
	for {
		cursor = s.Scan(0, cursor, func(key string, v *types.PrimeValue) { seen[key] = true })
		if cursor == 0 {
			break
		}
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["c"])
	assert.False(t, seen["b"], "expired key must not surface in a scan")
}

func TestBeginSnapshotCapturesPreMutationState(t *testing.T) {
	s := New(0)
	s.Set(0, "a", types.NewStringValue("orig"))

	var captured []string
	s.BeginSnapshot(0, func(bucketIndex int, entries []*hashtable.Entry) {
		for _, e := range entries {
			captured = append(captured, e.Key+"="+e.Value.Str)
		}
	})
	s.Set(0, "a", types.NewStringValue("changed"))
	require.Len(t, captured, 1)
	assert.Equal(t, "a=orig", captured[0])
	s.EndSnapshot(0)
}
