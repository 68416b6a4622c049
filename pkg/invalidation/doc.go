// Package invalidation is the client-tracking push broker: a connection
// that subscribes receives an invalidation message for every key change
// published on a wired shard, whichever keys it has read. It is
// pkg/events.Broker (buffered-channel fan-out, Subscribe/Unsubscribe/
// Publish) adapted wholesale: Event carries {Key, DBIndex} instead of a
// cluster event type, and Deliver renders a received Event as a RESP3 push
// frame written through pkg/conn's SendPush. Delivery is best-effort:
// Publish drops an event when the broker's queue is full, broadcast skips
// a subscriber whose buffer is full, and Deliver writes nothing to a
// connection still on RESP2.
package invalidation
