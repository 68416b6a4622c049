package hashtable

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardkv/pkg/types"
)

func val(s string) *types.PrimeValue { return types.NewStringValue(s) }

func TestInsertAndFind(t *testing.T) {
	tbl := New(0)

	_, isNew := tbl.Insert("a", val("1"))
	assert.True(t, isNew)

	e, ok := tbl.Find("a")
	require.True(t, ok)
	assert.Equal(t, "1", e.Value.Str)

	_, isNew = tbl.Insert("a", val("2"))
	assert.False(t, isNew, "re-insert of an existing key is a replace, not a new entry")

	e, ok = tbl.Find("a")
	require.True(t, ok)
	assert.Equal(t, "2", e.Value.Str)

	assert.Equal(t, 1, tbl.Len())
}

func TestFindMissing(t *testing.T) {
	tbl := New(0)
	_, ok := tbl.Find("nope")
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	tbl := New(0)
	tbl.Insert("a", val("1"))
	tbl.Insert("b", val("2"))

	assert.True(t, tbl.Delete("a"))
	assert.False(t, tbl.Delete("a"), "second delete of the same key finds nothing")

	_, ok := tbl.Find("a")
	assert.False(t, ok)

	e, ok := tbl.Find("b")
	require.True(t, ok)
	assert.Equal(t, "2", e.Value.Str)

	assert.Equal(t, 1, tbl.Len())
}

// TestNeighborDisplacement forces two keys onto the same natural bucket by
// shrinking the table to a single bit of addressable space is impractical
// (New always rounds up), so instead this drives enough insertions that
// collisions on a small table are a near-certainty and verifies every
// inserted key is still reachable afterward — exercising the
// chain-promotion path alongside straight neighbor placement.
func TestNeighborDisplacementAndChaining(t *testing.T) {
	tbl := New(0)
	const n = 200
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		tbl.Insert(key, val(fmt.Sprintf("v%d", i)))
	}
	require.Equal(t, n, tbl.Len())
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		e, ok := tbl.Find(key)
		require.True(t, ok, "key %s should be findable", key)
		assert.Equal(t, fmt.Sprintf("v%d", i), e.Value.Str)
	}
}

func TestGrowPreservesEntries(t *testing.T) {
	tbl := New(0)
	const n = 500
	for i := 0; i < n; i++ {
		tbl.Insert(fmt.Sprintf("k%d", i), val("x"))
	}
	assert.Equal(t, n, tbl.Len())
	assert.GreaterOrEqual(t, len(tbl.buckets), n*maxLoadDen/maxLoadNum)
	for i := 0; i < n; i++ {
		_, ok := tbl.Find(fmt.Sprintf("k%d", i))
		assert.True(t, ok)
	}
}

func TestScanVisitsEveryEntryExactlyOnce(t *testing.T) {
	tbl := New(0)
	const n = 300
	want := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("scan-%d", i)
		tbl.Insert(key, val("v"))
		want[key] = false
	}

	var cursor Cursor
	seen := 0
	for {
		cursor = tbl.Scan(cursor, func(e *Entry) {
			require.False(t, want[e.Key], "duplicate visit of %s", e.Key)
			want[e.Key] = true
			seen++
		})
		if cursor == 0 {
			break
		}
	}
	assert.Equal(t, n, seen)
	for k, v := range want {
		assert.True(t, v, "key %s was never visited", k)
	}
}

func TestDeleteThenReinsertChain(t *testing.T) {
	tbl := New(0)
	keys := []string{"chain-a", "chain-b", "chain-c", "chain-d", "chain-e"}
	for _, k := range keys {
		tbl.Insert(k, val(k))
	}
	assert.True(t, tbl.Delete("chain-c"))
	_, ok := tbl.Find("chain-c")
	assert.False(t, ok)

	for _, k := range []string{"chain-a", "chain-b", "chain-d", "chain-e"} {
		e, ok := tbl.Find(k)
		require.True(t, ok)
		assert.Equal(t, k, e.Value.Str)
	}

	tbl.Insert("chain-c", val("chain-c"))
	e, ok := tbl.Find("chain-c")
	require.True(t, ok)
	assert.Equal(t, "chain-c", e.Value.Str)
}

func TestSnapshotHookFiresOnceBeforeMutation(t *testing.T) {
	tbl := New(0)
	tbl.Insert("a", val("orig"))

	var captured []string
	v := tbl.BeginSnapshot(func(bucketIndex int, entries []*Entry) {
		for _, e := range entries {
			captured = append(captured, e.Key+"="+e.Value.Str)
		}
	})
	assert.Equal(t, tbl.Version(), v)

	tbl.Insert("a", val("changed"))
	require.Len(t, captured, 1)
	assert.Equal(t, "a=orig", captured[0])

	e, ok := tbl.Find("a")
	require.True(t, ok)
	assert.Equal(t, "changed", e.Value.Str)

	// A second mutation of the same key must not re-invoke the hook: the
	// bucket was already marked serialized at V.
	tbl.Insert("a", val("changed-again"))
	assert.Len(t, captured, 1)

	tbl.EndSnapshot()
}

func TestVersionBumpsOnMutation(t *testing.T) {
	tbl := New(0)
	v0 := tbl.Version()
	tbl.Insert("a", val("1"))
	v1 := tbl.Version()
	assert.Greater(t, v1, v0)

	tbl.Insert("a", val("2"))
	v2 := tbl.Version()
	assert.Greater(t, v2, v1)

	tbl.Delete("a")
	v3 := tbl.Version()
	assert.Greater(t, v3, v2)
}

func TestDefragStepShrinksSparseTableAndPreservesEntries(t *testing.T) {
	tbl := New(0)
	const n = 500
	for i := 0; i < n; i++ {
		tbl.Insert(fmt.Sprintf("k%d", i), val("x"))
	}
	grown := len(tbl.buckets)

	for i := 0; i < n-10; i++ {
		tbl.Delete(fmt.Sprintf("k%d", i))
	}
	require.Equal(t, 10, tbl.Len())

	shrunk := tbl.DefragStep()
	assert.True(t, shrunk)
	assert.Less(t, len(tbl.buckets), grown)

	for i := n - 10; i < n; i++ {
		_, ok := tbl.Find(fmt.Sprintf("k%d", i))
		assert.True(t, ok)
	}
}

func TestDefragStepNoopOnDenseTable(t *testing.T) {
	tbl := New(0)
	tbl.Insert("a", val("1"))
	assert.False(t, tbl.DefragStep())
}

func TestDefragStepNeverShrinksBelowInitialSize(t *testing.T) {
	tbl := New(0)
	tbl.Insert("a", val("1"))
	tbl.Delete("a")
	assert.False(t, tbl.DefragStep())
	assert.Equal(t, initialBuckets, len(tbl.buckets))
}
