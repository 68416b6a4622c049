// Package snapshot implements the copy-on-write point-in-time dump
// (spec.md §4.8, grounded on original_source/src/server/snapshot.cc's
// SliceSnapshot): install a pre-mutation bucket hook
// (dbslice.BeginSnapshot) before touching anything, walk every bucket
// whose version predates the snapshot, serialize it, and mark it done —
// so a concurrent write that lands on a not-yet-visited bucket gets
// serialized once, out of turn, by that hook instead of racing the walk. The bucket-version bookkeeping
// itself lives in pkg/hashtable; this package only drives the walk and
// the wire encoding.
package snapshot
