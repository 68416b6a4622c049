package rankindex

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intCmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func TestInsertContainsDelete(t *testing.T) {
	tr := New(intCmp)
	assert.True(t, tr.Insert(5))
	assert.False(t, tr.Insert(5), "duplicate insert reports false")
	assert.True(t, tr.Contains(5))
	assert.Equal(t, 1, tr.Len())

	assert.True(t, tr.Delete(5))
	assert.False(t, tr.Delete(5))
	assert.False(t, tr.Contains(5))
	assert.Equal(t, 0, tr.Len())
}

func TestRankMatchesSortedOrder(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	var values []int
	seen := map[int]bool{}
	tr := New(intCmp)
	for len(values) < 500 {
		v := r.Intn(10000)
		if seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
		tr.Insert(v)
	}

	sorted := append([]int(nil), values...)
	sort.Ints(sorted)

	for wantRank, v := range sorted {
		gotRank, ok := tr.Rank(v)
		require.True(t, ok)
		assert.Equal(t, wantRank, gotRank)
	}

	_, ok := tr.Rank(-1)
	assert.False(t, ok)
}

func TestSelectMatchesSortedOrder(t *testing.T) {
	tr := New(intCmp)
	values := []int{7, 1, 9, 3, 5, 2, 8, 4, 6, 0}
	for _, v := range values {
		tr.Insert(v)
	}
	for i := 0; i < 10; i++ {
		got, ok := tr.Select(i)
		require.True(t, ok)
		assert.Equal(t, i, got)
	}
	_, ok := tr.Select(10)
	assert.False(t, ok)
	_, ok = tr.Select(-1)
	assert.False(t, ok)
}

func TestRangeInclusiveBounds(t *testing.T) {
	tr := New(intCmp)
	for i := 0; i < 20; i++ {
		tr.Insert(i)
	}
	var got []int
	tr.Range(5, 9, func(item int) { got = append(got, item) })
	assert.Equal(t, []int{5, 6, 7, 8, 9}, got)

	got = nil
	tr.Range(-100, 2, func(item int) { got = append(got, item) })
	assert.Equal(t, []int{0, 1, 2}, got)

	got = nil
	tr.Range(18, 1000, func(item int) { got = append(got, item) })
	assert.Equal(t, []int{18, 19}, got)
}

func TestDeleteRebalancesAndPreservesRank(t *testing.T) {
	tr := New(intCmp)
	for i := 0; i < 100; i++ {
		tr.Insert(i)
	}
	for i := 0; i < 100; i += 2 {
		require.True(t, tr.Delete(i))
	}
	require.Equal(t, 50, tr.Len())

	var want []int
	for i := 1; i < 100; i += 2 {
		want = append(want, i)
	}
	for rank, v := range want {
		got, ok := tr.Rank(v)
		require.True(t, ok)
		assert.Equal(t, rank, got)
	}
}

// compositeScore models the (score, member) ordering a real sorted-set
// index uses so member is only the tiebreaker when scores collide.
type compositeScore struct {
	score  float64
	member string
}

func compositeCmp(a, b compositeScore) int {
	switch {
	case a.score < b.score:
		return -1
	case a.score > b.score:
		return 1
	case a.member < b.member:
		return -1
	case a.member > b.member:
		return 1
	default:
		return 0
	}
}

func TestCompositeScoreOrdering(t *testing.T) {
	tr := New(compositeCmp)
	tr.Insert(compositeScore{score: 1, member: "b"})
	tr.Insert(compositeScore{score: 1, member: "a"})
	tr.Insert(compositeScore{score: 0, member: "z"})

	var order []string
	tr.Range(0, tr.Len()-1, func(item compositeScore) { order = append(order, item.member) })
	assert.Equal(t, []string{"z", "a", "b"}, order)
}
