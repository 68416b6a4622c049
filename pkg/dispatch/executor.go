package dispatch

import (
	"strings"

	"github.com/cuemby/shardkv/pkg/conn"
	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/resp"
	"github.com/cuemby/shardkv/pkg/shardmap"
	"github.com/cuemby/shardkv/pkg/txn"
)

// Executor turns a parsed command line into a reply by routing it through
// the transaction coordinator to the shard(s) its keys hash to. It is the
// glue original_source/src/server/main_service.cc's DispatchCommand plays
// between the command table and the per-shard execution engine.
type Executor struct {
	registry *Registry
	mapper   *shardmap.Mapper
	coord    *txn.Coordinator
}

// NewExecutor builds an Executor over registry, routing keys via mapper
// and executing hops through coord.
func NewExecutor(registry *Registry, mapper *shardmap.Mapper, coord *txn.Coordinator) *Executor {
	return &Executor{registry: registry, mapper: mapper, coord: coord}
}

// Dispatch executes one command's argv (argv[0] is the command name) and
// returns its reply.
func (e *Executor) Dispatch(argv [][]byte) resp.Value {
	if len(argv) == 0 {
		return resp.Err("ERR", "empty command")
	}
	name := strings.ToUpper(string(argv[0]))
	spec, ok := e.registry.Lookup(name)
	if !ok {
		return resp.Err("ERR", "unknown command '"+name+"'")
	}
	if !spec.CheckArity(len(argv)) {
		return resp.Err("ERR", "wrong number of arguments for '"+name+"' command")
	}

	if spec.Global() {
		return e.dispatchGlobal(spec, argv)
	}

	keys := spec.ExtractKeys(argv)
	if len(keys) == 0 {
		return e.dispatchUnrouted(spec, argv)
	}

	shardID := e.mapper.ShardForKey(keys[0])
	return e.dispatchOne(shardID, spec, argv)
}

func (e *Executor) dispatchOne(shardID uint32, spec *CommandSpec, argv [][]byte) resp.Value {
	var reply resp.Value
	fn := func(slice *dbslice.Slice) { reply = spec.Handler(slice, argv) }

	if spec.Write() {
		tx := e.coord.Schedule([]uint32{shardID}, false)
		e.coord.Execute(tx, fn) // blocks until the shard's hop has run
		return reply
	}

	e.coord.ReadOnly(shardID, fn)
	return reply
}

// dispatchUnrouted runs a keyless, non-global command (PING, DBSIZE) on
// shard 0; it touches no keyspace so any shard answers identically enough
// for commands this surface registers as keyless today.
func (e *Executor) dispatchUnrouted(spec *CommandSpec, argv [][]byte) resp.Value {
	return e.dispatchOne(0, spec, argv)
}

func (e *Executor) dispatchGlobal(spec *CommandSpec, argv [][]byte) resp.Value {
	replies := make([]resp.Value, e.coord.ShardCount())
	e.coord.Global(func(slice *dbslice.Slice) { // blocks until every shard's hop has run
		replies[slice.ShardID()] = spec.Handler(slice, argv)
	})
	if len(replies) == 0 {
		return resp.SimpleString("OK")
	}
	return replies[0]
}

// HandlerFactory adapts Executor into a pkg/listener.RESPHandlerFactory,
// ignoring the per-connection shard affinity hint: every command routes by
// key, not by which shard accepted the TCP connection.
func (e *Executor) HandlerFactory() func(connID uint64, shardID uint32) conn.Handler {
	return func(connID uint64, shardID uint32) conn.Handler {
		return e.Dispatch
	}
}
