package dispatch

import (
	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/resp"
	"github.com/cuemby/shardkv/pkg/types"
)

func newHashValue() *types.PrimeValue {
	return &types.PrimeValue{Kind: types.KindHash, Encoding: types.EncodingListPack, Hash: make(map[string]string)}
}

func cmdHSet(slice *dbslice.Slice, argv [][]byte) resp.Value {
	if len(argv) < 4 || len(argv)%2 != 0 {
		return resp.Err("ERR", "wrong number of arguments for 'hset' command")
	}
	v, _ := slice.AddOrFind(0, string(argv[1]), newHashValue())
	if v.Kind != types.KindHash {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	added := int64(0)
	for i := 2; i+1 < len(argv); i += 2 {
		field := string(argv[i])
		if _, exists := v.Hash[field]; !exists {
			added++
		}
		v.Hash[field] = string(argv[i+1])
	}
	slice.Set(0, string(argv[1]), v)
	return resp.Integer(added)
}

func cmdHGet(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.NullBulk()
	}
	if v.Kind != types.KindHash {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	val, ok := v.Hash[string(argv[2])]
	if !ok {
		return resp.NullBulk()
	}
	return resp.Bulk(val)
}

func cmdHDel(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.Integer(0)
	}
	if v.Kind != types.KindHash {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	removed := int64(0)
	for _, f := range argv[2:] {
		if _, exists := v.Hash[string(f)]; exists {
			delete(v.Hash, string(f))
			removed++
		}
	}
	if len(v.Hash) == 0 {
		slice.Delete(0, string(argv[1]))
	} else {
		slice.Set(0, string(argv[1]), v)
	}
	return resp.Integer(removed)
}

func cmdHGetAll(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.Array()
	}
	if v.Kind != types.KindHash {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	items := make([]resp.Value, 0, len(v.Hash)*2)
	for field, val := range v.Hash {
		items = append(items, resp.Bulk(field), resp.Bulk(val))
	}
	return resp.Array(items...)
}

func cmdHExists(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.Integer(0)
	}
	if v.Kind != types.KindHash {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	if _, exists := v.Hash[string(argv[2])]; exists {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdHLen(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.Integer(0)
	}
	if v.Kind != types.KindHash {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	return resp.Integer(int64(len(v.Hash)))
}

func registerHashCommands(r *Registry) {
	r.Register(&CommandSpec{Name: "HSET", Arity: -4, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdHSet})
	r.Register(&CommandSpec{Name: "HGET", Arity: 3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdHGet})
	r.Register(&CommandSpec{Name: "HDEL", Arity: -3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdHDel})
	r.Register(&CommandSpec{Name: "HGETALL", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdHGetAll})
	r.Register(&CommandSpec{Name: "HEXISTS", Arity: 3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdHExists})
	r.Register(&CommandSpec{Name: "HLEN", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdHLen})
}
