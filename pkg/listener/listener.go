package listener

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/cuemby/shardkv/pkg/conn"
	"github.com/cuemby/shardkv/pkg/log"
	"github.com/cuemby/shardkv/pkg/memcache"
)

// Protocol is the single wire protocol a Listener speaks. A connection's
// protocol is fixed by which Listener accepted it, never sniffed from its
// first bytes (see doc.go).
type Protocol int

const (
	ProtocolRESP Protocol = iota
	ProtocolMemcache
)

// Role mirrors Listener::Role from dragonfly_listener.h. Only RoleAdmin
// changes behavior here: with WithHTTPProbe it enables the HTTP liveness
// probe. No command is restricted by role.
type Role int

const (
	RoleMain Role = iota
	RoleAdmin
	RoleOther
)

// RESPHandlerFactory builds the per-connection command handler for a RESP
// connection pinned to shardID. Implementations close over shard/txn/
// dispatch wiring (pkg/txn.Coordinator, pkg/dispatch.Registry,
// pkg/squash.Squasher) that lives above this package.
type RESPHandlerFactory func(connID uint64, shardID uint32) conn.Handler

// MemcacheHandler executes one parsed memcache command against shardID,
// writing its reply via w itself (memcache replies range from a single
// status line to a multi-key VALUE/END block, so the handler owns
// framing).
type MemcacheHandler func(shardID uint32, cmd *memcache.Command, w *memcache.Writer) error

// Listener accepts connections on one address and dispatches each to a
// shard chosen by a ShardPicker (spec.md §5's "listener bookkeeping" spin
// lock, here a mutex) before handing it to the protocol-specific pipeline.
type Listener struct {
	addr     string
	protocol Protocol
	role     Role

	picker      *ShardPicker
	pool        *conn.MessagePool
	respFactory RESPHandlerFactory
	mcHandler   MemcacheHandler

	httpProbe bool // only ever consulted when role == RoleAdmin

	maxClients  int   // 0 means unbounded
	byteCeiling int64 // 0 means leave conn.Conn's own default

	log    zerolog.Logger
	ln     net.Listener
	nextID atomic.Uint64
}

// Option configures optional Listener behavior.
type Option func(*Listener)

// WithHTTPProbe enables the admin-port HTTP liveness-probe detection
// (spec.md §4.6/§6). Only meaningful when role == RoleAdmin.
func WithHTTPProbe() Option {
	return func(l *Listener) { l.httpProbe = true }
}

// WithMaxClients caps the number of simultaneously accepted connections
// across every shard this listener places onto. n <= 0 leaves it
// unbounded.
func WithMaxClients(n int) Option {
	return func(l *Listener) { l.maxClients = n }
}

// WithByteCeiling overrides every accepted connection's dispatch-queue
// memory ceiling (conn.Conn.SetByteCeiling). n <= 0 leaves conn's own
// default.
func WithByteCeiling(n int64) Option {
	return func(l *Listener) { l.byteCeiling = n }
}

// WithPipelineCacheCeiling bounds, in bytes, the shared conn.MessagePool
// freelist this listener's connections draw PipelineMessages from. n <= 0
// leaves the pool unbounded.
func WithPipelineCacheCeiling(n int64) Option {
	return func(l *Listener) { l.pool.SetByteCeiling(n) }
}

// New builds a Listener. For ProtocolRESP, respFactory must be non-nil;
// for ProtocolMemcache, mcHandler must be non-nil.
func New(addr string, protocol Protocol, role Role, numShards int, respFactory RESPHandlerFactory, mcHandler MemcacheHandler, opts ...Option) *Listener {
	l := &Listener{
		addr:        addr,
		protocol:    protocol,
		role:        role,
		picker:      NewShardPicker(numShards),
		pool:        conn.NewMessagePool(),
		respFactory: respFactory,
		mcHandler:   mcHandler,
		log:         log.WithComponent("listener"),
	}
	l.pool.SetConnCount(numShards)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Serve accepts connections until ctx is cancelled or the listener socket
// fails. It blocks; callers typically run it in its own goroutine per
// configured port.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	l.ln = ln

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stopped:
		}
	}()
	defer close(stopped)

	l.log.Info().Str("addr", l.addr).Msg("listening")
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		go l.handle(c)
	}
}

// Addr reports the listener's bound address, valid only after Serve has
// started listening.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

func (l *Listener) handle(netConn net.Conn) {
	if l.maxClients > 0 && int(l.picker.Total()) >= l.maxClients {
		l.log.Warn().Int("maxClients", l.maxClients).Msg("rejecting connection: at capacity")
		_ = netConn.Close()
		return
	}

	shardID := l.picker.Acquire()
	defer l.picker.Release(shardID)

	switch l.protocol {
	case ProtocolRESP:
		l.serveRESP(netConn, shardID)
	case ProtocolMemcache:
		l.serveMemcache(netConn, shardID)
	}
}

func (l *Listener) serveRESP(netConn net.Conn, shardID uint32) {
	if l.role == RoleAdmin && l.httpProbe {
		br := bufio.NewReader(netConn)
		isHTTP, err := conn.ProbeHTTP(br)
		if err == nil && isHTTP {
			l.serveHTTP(&bufferedConn{Conn: netConn, br: br})
			return
		}
		netConn = &bufferedConn{Conn: netConn, br: br}
	}

	id := l.nextID.Add(1)
	handler := l.respFactory(id, shardID)
	c := conn.New(id, netConn, handler, l.pool)
	if l.byteCeiling > 0 {
		c.SetByteCeiling(l.byteCeiling)
	}
	c.Start()
	c.Wait()
}

func (l *Listener) serveMemcache(netConn net.Conn, shardID uint32) {
	defer netConn.Close()
	r := memcache.NewReader(netConn)
	w := memcache.NewWriter(netConn)
	for {
		cmd, err := r.ReadCommand()
		if err != nil {
			return
		}
		if cmd.Name == memcache.CmdQuit {
			return
		}
		if err := l.mcHandler(shardID, cmd, w); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

// bufferedConn replays bytes already consumed into br by ProbeHTTP's peek
// before falling through to netConn's own Read. Type assertions on the
// original concrete net.Conn (e.g. *net.TCPConn, for half-close on a
// protocol error) no longer succeed once a connection is wrapped this
// way — an accepted, documented cost of the HTTP probe, which only ever
// runs on the admin port.
type bufferedConn struct {
	net.Conn
	br *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.br.Read(p)
}
