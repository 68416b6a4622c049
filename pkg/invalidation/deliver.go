package invalidation

import (
	"github.com/cuemby/shardkv/pkg/conn"
	"github.com/cuemby/shardkv/pkg/resp"
)

// pushMessage is the RESP3 push frame type name clients match on, per
// spec.md §8: a two-element push of ("invalidate", [key]).
const pushMessage = "invalidate"

// Deliver renders ev as the RESP3 push frame
// `>2\r\n$10\r\ninvalidate\r\n*1\r\n$<n>\r\n<key>\r\n` and writes it to c,
// safe to call from the broker's dispatch goroutine concurrently with c's
// own reply writes. A connection that never upgraded past RESP2 has no
// push frame to receive the message on, so Deliver is a no-op for it.
func Deliver(c *conn.Conn, ev *Event) error {
	if !c.RESP3() {
		return nil
	}
	frame := resp.Push(
		resp.Bulk(pushMessage),
		resp.Array(resp.Bulk(string(ev.Key))),
	)
	return c.SendPush(frame)
}

// Forward reads events from sub until the connection's tracking session
// ends (Unsubscribe closes sub) and delivers each one to c. Run it in its
// own goroutine per tracking connection; it returns once sub is closed or
// a write to c fails.
func Forward(c *conn.Conn, sub Subscriber) {
	for ev := range sub {
		if err := Deliver(c, ev); err != nil {
			return
		}
	}
}
