package dispatch

import (
	"strconv"

	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/resp"
	"github.com/cuemby/shardkv/pkg/types"
)

func cmdGet(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.NullBulk()
	}
	if v.Kind != types.KindString {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	return resp.Bulk(v.Str)
}

func cmdSet(slice *dbslice.Slice, argv [][]byte) resp.Value {
	key := string(argv[1])
	slice.Set(0, key, types.NewStringValue(string(argv[2])))

	for i := 3; i < len(argv); i++ {
		switch string(argv[i]) {
		case "EX", "ex":
			if i+1 >= len(argv) {
				return resp.Err("ERR", "syntax error")
			}
			secs, err := strconv.ParseInt(string(argv[i+1]), 10, 64)
			if err != nil {
				return resp.Err("ERR", "value is not an integer or out of range")
			}
			slice.Expire(0, key, slice.NowMs()+secs*1000)
			i++
		case "PX", "px":
			if i+1 >= len(argv) {
				return resp.Err("ERR", "syntax error")
			}
			ms, err := strconv.ParseInt(string(argv[i+1]), 10, 64)
			if err != nil {
				return resp.Err("ERR", "value is not an integer or out of range")
			}
			slice.Expire(0, key, slice.NowMs()+ms)
			i++
		}
	}
	return resp.SimpleString("OK")
}

func cmdMSet(slice *dbslice.Slice, argv [][]byte) resp.Value {
	for i := 1; i+1 < len(argv); i += 2 {
		slice.Set(0, string(argv[i]), types.NewStringValue(string(argv[i+1])))
	}
	return resp.SimpleString("OK")
}

func cmdMGet(slice *dbslice.Slice, argv [][]byte) resp.Value {
	items := make([]resp.Value, 0, len(argv)-1)
	for _, k := range argv[1:] {
		v, ok := slice.Find(0, string(k))
		if !ok || v.Kind != types.KindString {
			items = append(items, resp.NullBulk())
			continue
		}
		items = append(items, resp.Bulk(v.Str))
	}
	return resp.Array(items...)
}

func cmdIncrBy(slice *dbslice.Slice, argv [][]byte, delta int64) resp.Value {
	key := string(argv[1])
	v, isNew := slice.AddOrFind(0, key, types.NewStringValue("0"))
	if !isNew && v.Kind != types.KindString {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	n, err := strconv.ParseInt(v.Str, 10, 64)
	if err != nil {
		return resp.Err("ERR", "value is not an integer or out of range")
	}
	n += delta
	slice.Set(0, key, types.NewStringValue(strconv.FormatInt(n, 10)))
	return resp.Integer(n)
}

func cmdIncr(slice *dbslice.Slice, argv [][]byte) resp.Value { return cmdIncrBy(slice, argv, 1) }
func cmdDecr(slice *dbslice.Slice, argv [][]byte) resp.Value { return cmdIncrBy(slice, argv, -1) }

func cmdIncrByN(slice *dbslice.Slice, argv [][]byte) resp.Value {
	n, err := strconv.ParseInt(string(argv[2]), 10, 64)
	if err != nil {
		return resp.Err("ERR", "value is not an integer or out of range")
	}
	return cmdIncrBy(slice, argv, n)
}

func cmdDecrByN(slice *dbslice.Slice, argv [][]byte) resp.Value {
	n, err := strconv.ParseInt(string(argv[2]), 10, 64)
	if err != nil {
		return resp.Err("ERR", "value is not an integer or out of range")
	}
	return cmdIncrBy(slice, argv, -n)
}

func cmdAppend(slice *dbslice.Slice, argv [][]byte) resp.Value {
	key := string(argv[1])
	v, isNew := slice.AddOrFind(0, key, types.NewStringValue(string(argv[2])))
	if !isNew {
		if v.Kind != types.KindString {
			return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
		}
		v.Str += string(argv[2])
		slice.Set(0, key, v)
	}
	return resp.Integer(int64(len(v.Str)))
}

func cmdStrlen(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.Integer(0)
	}
	if v.Kind != types.KindString {
		return resp.Err("WRONGTYPE", "Operation against a key holding the wrong kind of value")
	}
	return resp.Integer(int64(len(v.Str)))
}

func registerStringCommands(r *Registry) {
	r.Register(&CommandSpec{Name: "GET", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdGet})
	r.Register(&CommandSpec{Name: "SET", Arity: -3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdSet})
	r.Register(&CommandSpec{Name: "MSET", Arity: -3, Keys: KeySpec{First: 1, Last: -1, Step: 2}, Opts: OptWrite, Handler: cmdMSet})
	r.Register(&CommandSpec{Name: "MGET", Arity: -2, Keys: KeySpec{First: 1, Last: -1, Step: 1}, Opts: OptReadonly, Handler: cmdMGet})
	r.Register(&CommandSpec{Name: "INCR", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdIncr})
	r.Register(&CommandSpec{Name: "DECR", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdDecr})
	r.Register(&CommandSpec{Name: "INCRBY", Arity: 3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdIncrByN})
	r.Register(&CommandSpec{Name: "DECRBY", Arity: 3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdDecrByN})
	r.Register(&CommandSpec{Name: "APPEND", Arity: 3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdAppend})
	r.Register(&CommandSpec{Name: "STRLEN", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdStrlen})
}
