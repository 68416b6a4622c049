package conn

import "sync"

// MessagePool is a freelist of PipelineMessages shared by every connection
// on one proactor thread (spec.md §4.6). It is deliberately not a plain
// sync.Pool: the GC can reclaim a sync.Pool's contents between any two
// calls, which defeats the "shrink gradually while mostly inline" rule —
// a freelist that vanished on every GC cycle would just re-allocate on the
// next burst of pipelined traffic.
type MessagePool struct {
	mu           sync.Mutex
	free         []*PipelineMessage
	freeBytes    int64
	byteCeiling  int64 // 0 means unbounded
	connCount    int
	inlineStreak int
}

// NewMessagePool returns an empty pool.
func NewMessagePool() *MessagePool {
	return &MessagePool{}
}

// SetConnCount records how many connections currently share this pool —
// the shrink divisor N in "release one freelist entry per N inline
// dispatches, where N is the connection count on the thread".
func (p *MessagePool) SetConnCount(n int) {
	p.mu.Lock()
	p.connCount = n
	p.mu.Unlock()
}

// SetByteCeiling bounds how many bytes of retained PipelineMessages the
// freelist may hold, tracked by each message's size at the time it was
// last dispatched. A Put that would cross the ceiling drops the message
// instead of growing the freelist further.
func (p *MessagePool) SetByteCeiling(n int64) {
	p.mu.Lock()
	p.byteCeiling = n
	p.mu.Unlock()
}

// Get returns a freelist entry, allocating a fresh one if the freelist is
// empty.
func (p *MessagePool) Get() *PipelineMessage {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return &PipelineMessage{}
	}
	msg := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	p.freeBytes -= msg.bytes
	p.mu.Unlock()
	return msg
}

// Put returns msg to the freelist once its reply has been written, unless
// the byte ceiling would be exceeded, in which case msg is dropped and
// left for the garbage collector.
func (p *MessagePool) Put(msg *PipelineMessage) {
	weight := msg.bytes
	msg.Argv = nil

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byteCeiling > 0 && p.freeBytes+weight > p.byteCeiling {
		return
	}
	p.free = append(p.free, msg)
	p.freeBytes += weight
}

// NoteInlineDispatch is called once per command the input fiber dispatches
// inline. Every N such dispatches (N = connCount, floored at 1) it drops
// one entry from the freelist, so a thread whose traffic has gone mostly
// inline slowly gives back the memory it allocated during a pipelined
// burst rather than holding it forever.
func (p *MessagePool) NoteInlineDispatch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.connCount
	if n < 1 {
		n = 1
	}
	p.inlineStreak++
	if p.inlineStreak < n {
		return
	}
	p.inlineStreak = 0
	if len(p.free) > 0 {
		p.freeBytes -= p.free[len(p.free)-1].bytes
		p.free[len(p.free)-1] = nil
		p.free = p.free[:len(p.free)-1]
	}
}

// Len reports the current freelist size, for tests and diagnostics.
func (p *MessagePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
