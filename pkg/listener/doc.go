// Package listener accepts client connections and hands each one to the
// right wire-protocol pipeline on the right shard (spec.md §2's listener
// component, grounded on
// original_source/src/facade/dragonfly_listener.h/.cc's Listener class).
// Following the original, one Listener speaks exactly one protocol
// (RESP or memcache) bound to one port — a connection's protocol is
// decided by which port it arrived on, never by sniffing its first
// bytes, since a memcache text command and a RESP inline command are
// not reliably distinguishable from each other. The one exception is the
// optional HTTP liveness probe on the admin port, which this package
// still detects via pkg/conn.ProbeHTTP before falling through to the
// configured protocol.
package listener
