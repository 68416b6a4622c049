package dispatch

import (
	"strconv"

	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/memcache"
	"github.com/cuemby/shardkv/pkg/types"
)

// MemcacheAdapter answers the memcache text protocol against the same
// keyspace the RESP commands in strings.go operate on, grounded on
// original_source/src/server/memcache_parser.cc's observation that
// memcache GET/SET/DELETE/INCR/DECR are thin restatements of the string
// commands with a different wire format. It reuses Executor's shard
// routing rather than duplicating it.
type MemcacheAdapter struct {
	exec *Executor
}

// NewMemcacheAdapter builds a MemcacheAdapter over exec's registry,
// mapper, and coordinator.
func NewMemcacheAdapter(exec *Executor) *MemcacheAdapter {
	return &MemcacheAdapter{exec: exec}
}

// Handle implements pkg/listener.MemcacheHandler. shardID is the
// connection's pinned shard for commands this adapter treats as keyless
// (there are none today, since every memcache command carries a key).
func (a *MemcacheAdapter) Handle(_ uint32, cmd *memcache.Command, w *memcache.Writer) error {
	switch cmd.Name {
	case memcache.CmdGet, memcache.CmdGets:
		return a.handleGet(cmd, w)
	case memcache.CmdSet:
		return a.handleSet(cmd, w)
	case memcache.CmdAdd:
		return a.handleAddReplace(cmd, w, true)
	case memcache.CmdReplace:
		return a.handleAddReplace(cmd, w, false)
	case memcache.CmdDelete:
		return a.handleDelete(cmd, w)
	case memcache.CmdIncr:
		return a.handleIncrDecr(cmd, w, int64(cmd.Delta))
	case memcache.CmdDecr:
		return a.handleIncrDecr(cmd, w, -int64(cmd.Delta))
	case memcache.CmdQuit:
		return nil
	default:
		return w.WriteError()
	}
}

func (a *MemcacheAdapter) run(key string, fn func(slice *dbslice.Slice)) {
	shardID := a.exec.mapper.ShardForKey(key)
	a.exec.coord.ReadOnly(shardID, fn)
}

func (a *MemcacheAdapter) runWrite(key string, fn func(slice *dbslice.Slice)) {
	shardID := a.exec.mapper.ShardForKey(key)
	tx := a.exec.coord.Schedule([]uint32{shardID}, false)
	a.exec.coord.Execute(tx, fn)
}

func (a *MemcacheAdapter) handleGet(cmd *memcache.Command, w *memcache.Writer) error {
	keys := cmd.Keys
	if len(keys) == 0 && cmd.Key != "" {
		keys = []string{cmd.Key}
	}
	for _, key := range keys {
		var payload []byte
		var found bool
		a.run(key, func(slice *dbslice.Slice) {
			v, ok := slice.Find(0, key)
			if ok && v.Kind == types.KindString {
				payload, found = []byte(v.Str), true
			}
		})
		if found {
			if err := w.WriteValue(key, 0, payload); err != nil {
				return err
			}
		}
	}
	return w.WriteEnd()
}

func (a *MemcacheAdapter) handleSet(cmd *memcache.Command, w *memcache.Writer) error {
	a.runWrite(cmd.Key, func(slice *dbslice.Slice) {
		slice.Set(0, cmd.Key, types.NewStringValue(string(cmd.Payload)))
		if cmd.ExpTime > 0 {
			slice.Expire(0, cmd.Key, slice.NowMs()+cmd.ExpTime*1000)
		}
	})
	if cmd.NoReply {
		return nil
	}
	return w.WriteStored()
}

func (a *MemcacheAdapter) handleAddReplace(cmd *memcache.Command, w *memcache.Writer, wantAbsent bool) error {
	var stored bool
	a.runWrite(cmd.Key, func(slice *dbslice.Slice) {
		_, exists := slice.Find(0, cmd.Key)
		if exists == wantAbsent {
			return
		}
		slice.Set(0, cmd.Key, types.NewStringValue(string(cmd.Payload)))
		if cmd.ExpTime > 0 {
			slice.Expire(0, cmd.Key, slice.NowMs()+cmd.ExpTime*1000)
		}
		stored = true
	})
	if cmd.NoReply {
		return nil
	}
	if stored {
		return w.WriteStored()
	}
	return w.WriteNotStored()
}

func (a *MemcacheAdapter) handleDelete(cmd *memcache.Command, w *memcache.Writer) error {
	var deleted bool
	a.runWrite(cmd.Key, func(slice *dbslice.Slice) {
		deleted = slice.Delete(0, cmd.Key)
	})
	if cmd.NoReply {
		return nil
	}
	if deleted {
		return w.WriteDeleted()
	}
	return w.WriteNotFound()
}

func (a *MemcacheAdapter) handleIncrDecr(cmd *memcache.Command, w *memcache.Writer, delta int64) error {
	var result uint64
	var found, failed bool
	a.runWrite(cmd.Key, func(slice *dbslice.Slice) {
		v, exists := slice.Find(0, cmd.Key)
		if !exists {
			return
		}
		found = true
		n, err := strconv.ParseInt(v.Str, 10, 64)
		if err != nil {
			failed = true
			return
		}
		n += delta
		if n < 0 {
			n = 0
		}
		slice.Set(0, cmd.Key, types.NewStringValue(strconv.FormatInt(n, 10)))
		result = uint64(n)
	})
	if cmd.NoReply {
		return nil
	}
	if !found {
		return w.WriteNotFound()
	}
	if failed {
		return w.WriteClientError("cannot increment or decrement non-numeric value")
	}
	return w.WriteInteger(result)
}
