package dispatch

import (
	"strconv"

	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/resp"
)

func cmdDel(slice *dbslice.Slice, argv [][]byte) resp.Value {
	n := int64(0)
	for _, k := range argv[1:] {
		if slice.Delete(0, string(k)) {
			n++
		}
	}
	return resp.Integer(n)
}

func cmdExists(slice *dbslice.Slice, argv [][]byte) resp.Value {
	n := int64(0)
	for _, k := range argv[1:] {
		if _, ok := slice.Find(0, string(k)); ok {
			n++
		}
	}
	return resp.Integer(n)
}

func cmdType(slice *dbslice.Slice, argv [][]byte) resp.Value {
	v, ok := slice.Find(0, string(argv[1]))
	if !ok {
		return resp.SimpleString("none")
	}
	return resp.SimpleString(v.Kind.String())
}

func cmdExpire(slice *dbslice.Slice, argv [][]byte) resp.Value {
	secs, err := strconv.ParseInt(string(argv[2]), 10, 64)
	if err != nil {
		return resp.Err("ERR", "value is not an integer or out of range")
	}
	if slice.Expire(0, string(argv[1]), slice.NowMs()+secs*1000) {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdPExpire(slice *dbslice.Slice, argv [][]byte) resp.Value {
	ms, err := strconv.ParseInt(string(argv[2]), 10, 64)
	if err != nil {
		return resp.Err("ERR", "value is not an integer or out of range")
	}
	if slice.Expire(0, string(argv[1]), slice.NowMs()+ms) {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdTTL(slice *dbslice.Slice, argv [][]byte) resp.Value {
	key := string(argv[1])
	if _, ok := slice.Find(0, key); !ok {
		return resp.Integer(-2)
	}
	remainMs, ok := slice.TTL(0, key)
	if !ok {
		return resp.Integer(-1)
	}
	secs := remainMs / 1000
	if remainMs%1000 != 0 {
		secs++
	}
	return resp.Integer(secs)
}

func cmdPTTL(slice *dbslice.Slice, argv [][]byte) resp.Value {
	key := string(argv[1])
	if _, ok := slice.Find(0, key); !ok {
		return resp.Integer(-2)
	}
	remainMs, ok := slice.TTL(0, key)
	if !ok {
		return resp.Integer(-1)
	}
	return resp.Integer(remainMs)
}

func cmdPersist(slice *dbslice.Slice, argv [][]byte) resp.Value {
	if slice.Persist(0, string(argv[1])) {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func registerGenericCommands(r *Registry) {
	r.Register(&CommandSpec{Name: "DEL", Arity: -2, Keys: KeySpec{First: 1, Last: -1, Step: 1}, Opts: OptWrite, Handler: cmdDel})
	r.Register(&CommandSpec{Name: "EXISTS", Arity: -2, Keys: KeySpec{First: 1, Last: -1, Step: 1}, Opts: OptReadonly, Handler: cmdExists})
	r.Register(&CommandSpec{Name: "TYPE", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdType})
	r.Register(&CommandSpec{Name: "EXPIRE", Arity: 3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdExpire})
	r.Register(&CommandSpec{Name: "PEXPIRE", Arity: 3, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdPExpire})
	r.Register(&CommandSpec{Name: "TTL", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdTTL})
	r.Register(&CommandSpec{Name: "PTTL", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptReadonly, Handler: cmdPTTL})
	r.Register(&CommandSpec{Name: "PERSIST", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Opts: OptWrite, Handler: cmdPersist})
}
