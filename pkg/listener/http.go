package listener

import (
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/cuemby/shardkv/pkg/metrics"
)

// serveHTTP hands one already-accepted connection to a minimal HTTP
// engine: a liveness probe on "/" and Prometheus metrics on "/metrics".
// The original leaves the HTTP engine itself unspecified beyond the
// detection rule (spec.md §4.6/§6); this is the smallest useful stand-in,
// reusing net/http rather than hand-rolling response framing.
func (l *Listener) serveHTTP(c net.Conn) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Handler: mux}
	_ = srv.Serve(&singleConnListener{conn: c})
}

// singleConnListener is a net.Listener that yields exactly one
// already-accepted connection, then fails every subsequent Accept so
// http.Server.Serve returns right away — the per-connection request
// handling goroutine http.Server spawned for that one connection keeps
// running independently until the client disconnects.
type singleConnListener struct {
	mu     sync.Mutex
	conn   net.Conn
	served bool
	closed bool
}

func (s *singleConnListener) Accept() (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.served || s.closed {
		return nil, errors.New("singleConnListener: exhausted")
	}
	s.served = true
	return s.conn, nil
}

func (s *singleConnListener) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return nil
}

func (s *singleConnListener) Addr() net.Addr {
	return s.conn.LocalAddr()
}
