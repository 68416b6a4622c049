package dispatch

import (
	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/resp"
)

func cmdPing(_ *dbslice.Slice, argv [][]byte) resp.Value {
	if len(argv) > 1 {
		return resp.Bulk(string(argv[1]))
	}
	return resp.SimpleString("PONG")
}

func cmdFlushDB(slice *dbslice.Slice, _ [][]byte) resp.Value {
	slice.FlushDB(0)
	return resp.SimpleString("OK")
}

func cmdFlushAll(slice *dbslice.Slice, _ [][]byte) resp.Value {
	slice.FlushDB(-1)
	return resp.SimpleString("OK")
}

func cmdDBSize(slice *dbslice.Slice, _ [][]byte) resp.Value {
	return resp.Integer(slice.Stats(0).Keys)
}

// registerAdminCommands registers the handful of admin commands whose
// behavior is entirely shard-local. Connection-scoped commands (HELLO,
// AUTH, SELECT, CLIENT, CONFIG, INFO, CLUSTER, DEBUG) need access to the
// owning pkg/conn.Conn, not just a shard's Slice; they are not registered
// here, and no connection-layer handler for them exists either.
func registerAdminCommands(r *Registry) {
	r.Register(&CommandSpec{Name: "PING", Arity: -1, Opts: OptReadonly, Handler: cmdPing})
	r.Register(&CommandSpec{Name: "FLUSHDB", Arity: 1, Opts: OptWrite | OptGlobalTrans, Handler: cmdFlushDB})
	r.Register(&CommandSpec{Name: "FLUSHALL", Arity: 1, Opts: OptWrite | OptGlobalTrans, Handler: cmdFlushAll})
	r.Register(&CommandSpec{Name: "DBSIZE", Arity: 1, Opts: OptReadonly, Handler: cmdDBSize})
}

// RegisterAll wires every command family into r. Call once at startup
// before any shard begins dispatching.
func RegisterAll(r *Registry) {
	registerStringCommands(r)
	registerGenericCommands(r)
	registerHashCommands(r)
	registerSetCommands(r)
	registerZSetCommands(r)
	registerListCommands(r)
	registerAdminCommands(r)
}
