package dispatch

import (
	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/resp"
	"github.com/cuemby/shardkv/pkg/types"
)

func newSetValue() *types.PrimeValue {
	return &types.PrimeValue{Kind: types.KindSet, Encoding: types.EncodingListPack, Set: make(map[string]struct{})}
}

func cmdSAdd(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, _ := slice.AddOrFind(0, string(argv[1]), newSetValue())
	if v.Kind != types.KindSet {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	added := int64(0)
	for _, m := range argv[2:] {
		member := string(m)
		if _, exists := v.Set[member]; !exists {
			v.Set[member] = struct{}{}
			added++
		}
	}
	slice.Set(0, string(argv[1]), v)
	return resp.Integer(added)
}

func cmdSRem(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.Integer(0)
	}
	if v.Kind != types.KindSet {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	removed := int64(0)
	for _, m := range argv[2:] {
		member := string(m)
		if _, exists := v.Set[member]; exists {
			delete(v.Set, member)
			removed++
		}
	}
	if len(v.Set) == 0 {
		slice.Delete(0, string(argv[1]))
	} else {
		slice.Set(0, string(argv[1]), v)
	}
	return resp.Integer(removed)
}

func cmdSMembers(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.Set()
	}
	if v.Kind != types.KindSet {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	items := make([]resp.Value, 0, len(v.Set))
	for m := range v.Set {
		items = append(items, resp.Bulk(m))
	}
	return resp.Set(items...)
}

func cmdSIsMember(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.Integer(0)
	}
	if v.Kind != types.KindSet {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	if _, exists := v.Set[string(argv[2])]; exists {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdSCard(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.Integer(0)
	}
	if v.Kind != types.KindSet {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	return resp.Integer(int64(len(v.Set)))
}

func registerSetCommands(r *Registry) {
	r.Register(&CommandSpec{Name: "SADD", Arity: -3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdSAdd})
	r.Register(&CommandSpec{Name: "SREM", Arity: -3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdSRem})
	r.Register(&CommandSpec{Name: "SMEMBERS", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdSMembers})
	r.Register(&CommandSpec{Name: "SISMEMBER", Arity: 3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdSIsMember})
	r.Register(&CommandSpec{Name: "SCARD", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdSCard})
}
