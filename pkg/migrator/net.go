package migrator

import (
	"fmt"
	"net"
	"time"

	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/engine"
	"github.com/cuemby/shardkv/pkg/shardmap"
	"github.com/cuemby/shardkv/pkg/snapshot"
)

// Target accepts migrated keys and forwards them to wherever they now
// belong — always a remote node's migration listener in practice, kept as
// an interface so tests can substitute an in-memory fake.
type Target interface {
	Send(e snapshot.Record) error
	Close() error
}

// netTarget streams records to a destination node's migration listener
// using pkg/snapshot's own wire encoder, so a migrated key is
// indistinguishable on the wire from a snapshotted one.
type netTarget struct {
	conn net.Conn
	enc  *snapshot.Encoder
}

// DialTarget opens a connection to addr and returns a Target that streams
// migrated keys to it.
func DialTarget(addr string) (Target, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("migrator: dial %s: %w", addr, err)
	}
	enc, err := snapshot.NewEncoder(conn, 0)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrator: build encoder: %w", err)
	}
	return &netTarget{conn: conn, enc: enc}, nil
}

func (t *netTarget) Send(e snapshot.Record) error {
	return t.enc.Encode(e)
}

func (t *netTarget) Close() error {
	if err := t.enc.Close(); err != nil {
		t.conn.Close()
		return err
	}
	return t.conn.Close()
}

// Apply is called once per received record on the destination side.
type Apply func(e snapshot.Record) error

// Serve accepts connections on ln and decodes each as a stream of
// snapshot.Record values, handing every RecordKV to apply. One connection
// is served at a time per goroutine; Serve returns when ln is closed.
func Serve(ln net.Listener, apply Apply) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go serveConn(conn, apply)
	}
}

func serveConn(conn net.Conn, apply Apply) {
	defer conn.Close()
	dec, err := snapshot.NewDecoder(conn)
	if err != nil {
		return
	}
	defer dec.Close()

	for {
		rec, err := dec.Decode()
		if err != nil {
			return
		}
		if rec.Kind != snapshot.RecordKV {
			continue
		}
		if err := apply(rec); err != nil {
			return
		}
	}
}

// ApplyToShards builds an Apply that routes a received record to whichever
// local shard now owns its key, writing it with the slice's normal Set —
// a migrated key arrives exactly like a replicated SET, not through any
// special migration code path on the receiving side.
func ApplyToShards(shards []*engine.Shard, mapper *shardmap.Mapper) Apply {
	byID := make(map[uint32]*engine.Shard, len(shards))
	for _, s := range shards {
		byID[s.ID()] = s
	}
	return func(rec snapshot.Record) error {
		shard, ok := byID[mapper.ShardForKey(rec.Key)]
		if !ok {
			return nil
		}
		shard.RunInline(func(slice *dbslice.Slice) {
			slice.Set(rec.DBIndex, rec.Key, rec.Value)
		})
		return nil
	}
}
