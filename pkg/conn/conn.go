package conn

import (
	"errors"
	"io"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/cuemby/shardkv/pkg/log"
	"github.com/cuemby/shardkv/pkg/metrics"
	"github.com/cuemby/shardkv/pkg/resp"
)

// defaultByteCeiling is the default dispatch-queue memory ceiling per
// connection, per spec.md §4.6.
const defaultByteCeiling = 5 * 1024 * 1024

// yieldQueueLen is the pending-queue length past which the input fiber
// yields one round-trip rather than racing ahead of the dispatch fiber.
const yieldQueueLen = 10

// Handler executes one parsed command and returns its reply. Handlers
// run on whichever goroutine dispatches them — inline commands run on
// the input goroutine, queued commands run on the dispatch goroutine —
// so a Handler must be safe to call from either.
type Handler func(argv [][]byte) resp.Value

// PipelineMessage owns a copy of one command's argument bytes while it
// waits in the dispatch queue (spec.md §4.6).
type PipelineMessage struct {
	Argv  [][]byte
	bytes int64
}

func (m *PipelineMessage) size() int64 {
	var n int64
	for _, a := range m.Argv {
		n += int64(len(a))
	}
	return n
}

// Conn runs one client connection's input and dispatch fibers (as
// goroutines) over a shared socket.
type Conn struct {
	id      uint64
	netConn net.Conn
	reader  *resp.Reader
	writer  *resp.Writer
	handler Handler
	pool    *MessagePool
	log     zerolog.Logger

	byteCeiling int64

	mu           sync.Mutex
	queue        []*PipelineMessage
	queueBytes   int64
	stopped      bool
	notEmpty     *sync.Cond
	belowCeiling *sync.Cond

	// writeMu serializes every write to the socket. Ordinary replies come
	// from exactly one of inputLoop or dispatchLoop at a time, but an
	// out-of-band push frame (pkg/invalidation) can arrive on a third,
	// independent goroutine, so all three need to agree on one lock.
	writeMu sync.Mutex

	asyncInFlight atomic.Bool
	subscriptions atomic.Int32

	wg           sync.WaitGroup
	dispatchDone chan struct{} // closed when dispatchLoop returns
}

// New wraps netConn with the connection pipeline. Call Start to launch
// its goroutines.
func New(id uint64, netConn net.Conn, handler Handler, pool *MessagePool) *Conn {
	c := &Conn{
		id:          id,
		netConn:     netConn,
		reader:      resp.NewReader(netConn),
		writer:      resp.NewWriter(netConn),
		handler:     handler,
		pool:        pool,
		log:         log.WithConn(id),
		byteCeiling: defaultByteCeiling,

		dispatchDone: make(chan struct{}),
	}
	c.notEmpty = sync.NewCond(&c.mu)
	c.belowCeiling = sync.NewCond(&c.mu)
	return c
}

// SetByteCeiling overrides the default dispatch-queue memory ceiling.
func (c *Conn) SetByteCeiling(n int64) { c.byteCeiling = n }

// SetRESP3 records a successful HELLO 3 upgrade, switching reply and push
// frame encoding to their RESP3 forms.
func (c *Conn) SetRESP3(enabled bool) { c.writer.SetRESP3(enabled) }

// RESP3 reports whether this connection has upgraded to RESP3.
func (c *Conn) RESP3() bool { return c.writer.RESP3() }

// AddSubscription/RemoveSubscription track active pub/sub subscriptions,
// which force every command onto the dispatch queue (spec.md §4.6: "no
// active subscriptions" is a precondition for the inline fast path, since
// a subscription may inject out-of-band push frames).
func (c *Conn) AddSubscription()    { c.subscriptions.Add(1) }
func (c *Conn) RemoveSubscription() { c.subscriptions.Add(-1) }

// Start launches the input and dispatch goroutines.
func (c *Conn) Start() {
	metrics.ConnectionsTotal.Inc()
	c.wg.Add(2)
	go c.inputLoop()
	go c.dispatchLoop()
}

// Wait blocks until both goroutines have exited.
func (c *Conn) Wait() { c.wg.Wait() }

func (c *Conn) canDispatchInline() bool {
	if c.reader.HasBufferedInput() {
		return false
	}
	if c.asyncInFlight.Load() {
		return false
	}
	if c.subscriptions.Load() > 0 {
		return false
	}
	c.mu.Lock()
	empty := len(c.queue) == 0
	c.mu.Unlock()
	return empty
}

func (c *Conn) inputLoop() {
	defer c.wg.Done()
	defer c.closeDispatch()

	for {
		argv, err := c.reader.ReadCommand()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if c.canDispatchInline() {
			reply := c.handler(argv)
			c.writeMu.Lock()
			_ = c.writer.WriteValue(reply)
			_ = c.writer.Flush()
			c.writeMu.Unlock()
			if c.pool != nil {
				c.pool.NoteInlineDispatch()
			}
			continue
		}

		msg := c.pool.Get()
		msg.Argv = argv
		msg.bytes = msg.size()
		c.push(msg)
	}
}

func (c *Conn) push(msg *PipelineMessage) {
	c.mu.Lock()
	c.queue = append(c.queue, msg)
	c.queueBytes += msg.bytes
	metrics.DispatchQueueBytes.WithLabelValues(connLabel(c.id)).Set(float64(c.queueBytes))
	qlen := len(c.queue)
	c.mu.Unlock()
	c.notEmpty.Signal()

	c.mu.Lock()
	for !c.stopped && c.queueBytes > c.byteCeiling {
		c.belowCeiling.Wait()
	}
	c.mu.Unlock()

	if qlen > yieldQueueLen {
		runtime.Gosched()
	}
}

func (c *Conn) dispatchLoop() {
	defer c.wg.Done()
	defer close(c.dispatchDone)

	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.stopped {
			c.notEmpty.Wait()
		}
		if c.stopped && len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		msg := c.queue[0]
		c.queue = c.queue[1:]
		c.queueBytes -= msg.bytes
		metrics.DispatchQueueBytes.WithLabelValues(connLabel(c.id)).Set(float64(c.queueBytes))
		c.mu.Unlock()
		c.belowCeiling.Signal()

		c.asyncInFlight.Store(true)
		reply := c.handler(msg.Argv)
		c.asyncInFlight.Store(false)

		c.writeMu.Lock()
		_ = c.writer.WriteValue(reply)
		_ = c.writer.Flush()
		c.writeMu.Unlock()

		if c.pool != nil {
			c.pool.Put(msg)
		}
	}
}

// handleReadError implements spec.md §7's protocol-error propagation: a
// clean EOF just closes the connection, but a parse error drains any
// already-queued legitimate replies first, then writes a protocol-error
// line and shuts the socket down for reads and writes.
func (c *Conn) handleReadError(err error) {
	if errors.Is(err, io.EOF) {
		c.closeDispatch()
		_ = c.netConn.Close()
		return
	}

	c.closeDispatch()
	<-c.dispatchDone
	c.writeMu.Lock()
	_ = c.writer.WriteError("ERR", "Protocol error: "+err.Error())
	_ = c.writer.Flush()
	c.writeMu.Unlock()
	if tc, ok := c.netConn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	_ = c.netConn.Close()
	c.log.Warn().Err(err).Msg("connection closed on protocol error")
}

// SendPush writes an out-of-band RESP3 push frame (pkg/invalidation's
// delivery mechanism), safe to call concurrently with normal reply writes
// from any other connection goroutine.
func (c *Conn) SendPush(v resp.Value) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.writer.WriteValue(v); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *Conn) closeDispatch() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()
	c.notEmpty.Broadcast()
	c.belowCeiling.Broadcast()
}

func connLabel(id uint64) string {
	return itoa(id)
}

func itoa(id uint64) string {
	if id == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	return string(buf[i:])
}
