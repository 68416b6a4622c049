package journal

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// ErrLSNEvicted is returned by StartFrom when the requested LSN has
// already fallen out of the ring buffer: the caller must fall back to a
// fresh pkg/snapshot dump before resuming incremental replication
// (spec.md §4.9).
var ErrLSNEvicted = errors.New("journal: requested lsn has been evicted")

// defaultMaxPending bounds how many entries a Streamer buffers between
// writer-fiber drains before it declares the consumer too slow and marks
// itself overflowed, matching BufferedStreamerBase's backpressure role:
// the journal callback that feeds a Streamer runs on the shard's own
// goroutine and must never block waiting on a replica's socket.
const defaultMaxPending = 4096

// Streamer decouples journal.Append's synchronous callback from a slow
// replica connection: the callback only appends to an in-memory buffer,
// and a dedicated goroutine drains that buffer to the destination writer.
type Streamer struct {
	journal *Journal
	dest    io.Writer
	enc     *json.Encoder

	subID int64

	mu         sync.Mutex
	pending    []Entry
	overflowed bool

	notify  chan struct{}
	done    chan struct{}
	stopCh  chan struct{}
	started bool

	maxPending int
}

// NewStreamer builds a streamer over journal, writing newline-delimited
// JSON entries to dest once started.
func NewStreamer(j *Journal, dest io.Writer) *Streamer {
	return &Streamer{
		journal:    j,
		dest:       dest,
		enc:        json.NewEncoder(dest),
		subID:      -1,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		stopCh:     make(chan struct{}),
		maxPending: defaultMaxPending,
	}
}

// Start subscribes to the journal and launches the writer goroutine for
// live streaming from this point forward.
func (s *Streamer) Start() {
	id := s.journal.RegisterOnChange(s.enqueue)
	s.subID = int64(id)
	s.started = true
	go s.writerLoop()
}

// StartFrom replays every buffered entry from lsn up to the journal's
// current head, then switches to live streaming. The caller is
// responsible for ensuring no hop can append to the journal between
// computing lsn and calling StartFrom (i.e. call it from the same
// shard-owning goroutine that appends), so the replay-then-subscribe
// handoff below never drops or duplicates an entry.
func (s *Streamer) StartFrom(lsn uint64) error {
	for lsn < s.journal.LSN() {
		e, ok := s.journal.Entry(lsn)
		if !ok {
			return ErrLSNEvicted
		}
		if err := s.enc.Encode(&e); err != nil {
			return err
		}
		lsn++
	}
	s.Start()
	return nil
}

func (s *Streamer) enqueue(e Entry) {
	s.mu.Lock()
	if len(s.pending) >= s.maxPending {
		s.overflowed = true
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, e)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Streamer) writerLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.notify:
			s.drain()
		case <-s.stopCh:
			s.drain()
			return
		}
	}
}

func (s *Streamer) drain() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, e := range batch {
		if err := s.enc.Encode(&e); err != nil {
			return
		}
	}
}

// Overflowed reports whether the streamer ever had to drop an entry
// because the writer goroutine fell behind — the replica on the other
// end needs a full resync.
func (s *Streamer) Overflowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflowed
}

// Stop unregisters the journal subscription and drains any remaining
// buffered entries before returning. Safe to call even if Start/StartFrom
// was never invoked.
func (s *Streamer) Stop() {
	if !s.started {
		return
	}
	if s.subID >= 0 {
		s.journal.UnregisterOnChange(uint64(s.subID))
	}
	close(s.stopCh)
	<-s.done
}
