// Package conn implements the connection pipeline (spec.md §4.6): an
// input goroutine that parses commands and decides inline-vs-queued
// dispatch, a dispatch goroutine that drains the pending queue and writes
// replies, byte-counted backpressure, and the HTTP-probe handoff. Go has
// no fiber primitive, so two goroutines sharing a mutex-guarded queue and
// two condition variables realize the
// "two cooperating fibers on the same proactor" shape Design Notes §9
// calls for.
package conn
