package dispatch

import (
	"strconv"

	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/resp"
	"github.com/cuemby/shardkv/pkg/types"
)

func newListValue() *types.PrimeValue {
	return &types.PrimeValue{Kind: types.KindList, Encoding: types.EncodingListPack}
}

func cmdLPush(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, _ := slice.AddOrFind(0, string(argv[1]), newListValue())
	if v.Kind != types.KindList {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	for _, e := range argv[2:] {
		v.List = append([]string{string(e)}, v.List...)
	}
	slice.Set(0, string(argv[1]), v)
	return resp.Integer(int64(len(v.List)))
}

func cmdRPush(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, _ := slice.AddOrFind(0, string(argv[1]), newListValue())
	if v.Kind != types.KindList {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	for _, e := range argv[2:] {
		v.List = append(v.List, string(e))
	}
	slice.Set(0, string(argv[1]), v)
	return resp.Integer(int64(len(v.List)))
}

func cmdLRange(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.Array()
	}
	if v.Kind != types.KindList {
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
	n := len(v.List)
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
		items = append(items, resp.Bulk(v.List[i]))
	}
	return resp.Array(items...)
}

func cmdLLen(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.Integer(0)
	}
	if v.Kind != types.KindList {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	return resp.Integer(int64(len(v.List)))
}

func cmdLPop(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok || len(v.List) == 0 {
		return resp.NullBulk()
	}
	if v.Kind != types.KindList {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	first := v.List[0]
	v.List = v.List[1:]
	if len(v.List) == 0 {
		slice.Delete(0, string(argv[1]))
	} else {
		slice.Set(0, string(argv[1]), v)
	}
	return resp.Bulk(first)
}

func cmdRPop(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok || len(v.List) == 0 {
		return resp.NullBulk()
	}
	if v.Kind != types.KindList {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	last := v.List[len(v.List)-1]
	v.List = v.List[:len(v.List)-1]
	if len(v.List) == 0 {
		slice.Delete(0, string(argv[1]))
	} else {
		slice.Set(0, string(argv[1]), v)
	}
	return resp.Bulk(last)
}

func registerListCommands(r *Registry) {
	r.Register(&CommandSpec{Name: "LPUSH", Arity: -3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdLPush})
	r.Register(&CommandSpec{Name: "RPUSH", Arity: -3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdRPush})
	r.Register(&CommandSpec{Name: "LRANGE", Arity: 4, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdLRange})
	r.Register(&CommandSpec{Name: "LLEN", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdLLen})
	r.Register(&CommandSpec{Name: "LPOP", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdLPop})
	r.Register(&CommandSpec{Name: "RPOP", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdRPop})
}
