package dispatch

import (
	"sort"
	"strconv"

	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/rankindex"
	"github.com/cuemby/shardkv/pkg/resp"
	"github.com/cuemby/shardkv/pkg/types"
)

func newZSetValue() *types.PrimeValue {
	return &types.PrimeValue{Kind: types.KindZSet, Encoding: types.EncodingListPack}
}

func zmemberLess(a, b types.ZMember) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

// insertSorted keeps v.ZSet ordered by (score, member), replacing any
// existing entry for member.Member. Reports whether member was newly added.
func insertSorted(v *types.PrimeValue, member types.ZMember) bool {
	existed := false
	for i, m := range v.ZSet {
		if m.Member == member.Member {
			v.ZSet = append(v.ZSet[:i], v.ZSet[i+1:]...)
			existed = true
			break
		}
	}
	idx := sort.Search(len(v.ZSet), func(i int) bool { return !zmemberLess(v.ZSet[i], member) })
	v.ZSet = append(v.ZSet, types.ZMember{})
	copy(v.ZSet[idx+1:], v.ZSet[idx:])
	v.ZSet[idx] = member
	return !existed
}

func cmdZAdd(slice *dbslice.Slice, argv [][]byte) resp.Value {
	if len(argv) < 4 || len(argv)%2 != 0 {
		return resp.Err("ERR", "wrong number of arguments for 'zadd' command")
	}
	v, _ := slice.AddOrFind(0, string(argv[1]), newZSetValue())
	if v.Kind != types.KindZSet {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	added := int64(0)
	for i := 2; i+1 < len(argv); i += 2 {
		score, err := strconv.ParseFloat(string(argv[i]), 64)
		if err != nil {
			return resp.Err("ERR", "value is not a valid float")
		}
		member := string(argv[i+1])
		if insertSorted(v, types.ZMember{Score: score, Member: member}) {
			added++
		}
	}
	slice.Set(0, string(argv[1]), v)
	return resp.Integer(added)
}

func cmdZScore(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.NullBulk()
	}
	if v.Kind != types.KindZSet {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	member := string(argv[2])
	for _, m := range v.ZSet {
		if m.Member == member {
			return resp.Bulk(strconv.FormatFloat(m.Score, 'g', -1, 64))
		}
	}
	return resp.NullBulk()
}

// zsetRankTree builds a pkg/rankindex AVL rank index from the stored,
// already-sorted members. ZRANK rebuilds it on every call, after finding
// the member with a linear scan over ZSet, so each call is O(n log n).
func zsetRankTree(v *types.PrimeValue) *rankindex.Tree[types.ZMember] {
	t := rankindex.New(func(a, b types.ZMember) int {
		switch {
		case zmemberLess(a, b):
			return -1
		case zmemberLess(b, a):
			return 1
		default:
			return 0
		}
	})
	for _, m := range v.ZSet {
		t.Insert(m)
	}
	return t
}

func cmdZRank(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.NullBulk()
	}
	if v.Kind != types.KindZSet {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	member := string(argv[2])
	var target types.ZMember
	found := false
	for _, m := range v.ZSet {
		if m.Member == member {
			target = m
			found = true
			break
		}
	}
	if !found {
		return resp.NullBulk()
	}
	rank, ok := zsetRankTree(v).Rank(target)
	if !ok {
		return resp.NullBulk()
	}
	return resp.Integer(int64(rank))
}

func cmdZRange(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.Array()
	}
	if v.Kind != types.KindZSet {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	start, err := strconv.Atoi(string(argv[2]))
	if err != nil {
		return resp.Err("ERR", "value is not an integer or out of range")
	}
	stop, err := strconv.Atoi(string(argv[3]))
	if err != nil {
		return resp.Err("ERR", "value is not an integer or out of range")
	}
	n := len(v.ZSet)
	start = clampIndex(start, n)
	stop = clampIndex(stop, n)
	if start > stop || start >= n {
		return resp.Array()
	}
	if stop >= n {
		stop = n - 1
	}
	items := make([]resp.Value, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		items = append(items, resp.Bulk(v.ZSet[i].Member))
	}
	return resp.Array(items...)
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		i = 0
	}
	return i
}

func cmdZRem(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.Integer(0)
	}
	if v.Kind != types.KindZSet {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	removed := int64(0)
	for _, m := range argv[2:] {
		member := string(m)
		for i, zm := range v.ZSet {
			if zm.Member == member {
				v.ZSet = append(v.ZSet[:i], v.ZSet[i+1:]...)
				removed++
				break
			}
		}
	}
	if len(v.ZSet) == 0 {
		slice.Delete(0, string(argv[1]))
	} else {
		slice.Set(0, string(argv[1]), v)
	}
	return resp.Integer(removed)
}

func registerZSetCommands(r *Registry) {
	r.Register(&CommandSpec{Name: "ZADD", Arity: -4, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdZAdd})
	r.Register(&CommandSpec{Name: "ZSCORE", Arity: 3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdZScore})
	r.Register(&CommandSpec{Name: "ZRANK", Arity: 3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdZRank})
	r.Register(&CommandSpec{Name: "ZRANGE", Arity: 4, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdZRange})
	r.Register(&CommandSpec{Name: "ZREM", Arity: -3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdZRem})
}
