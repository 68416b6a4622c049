/*
Package hashtable implements shardkv's primary key->value table: an
open-addressed table of fixed-size buckets with neighbor displacement and
chaining, per spec.md §4.1.

The original engine this was distilled from steals the top 12 bits of a
64-bit pointer for tag flags (link/displaced/direction/ttl). Go gives no
portable way to do that to a real pointer, so this package takes the
alternative Design Notes §9 names explicitly: a wrapper struct carrying the
flag byte alongside the pointer. The entire representation is unexported —
callers only see Table, Cursor, and the Entry they get back from a lookup.
*/
package hashtable
