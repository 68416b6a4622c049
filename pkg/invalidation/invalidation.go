package invalidation

import (
	"sync"
	"time"
)

// Event describes one key whose value has just changed or been deleted,
// grounded on dbslice.ChangeEvent but trimmed to the fields an
// invalidation message needs.
type Event struct {
	Key       []byte
	DBIndex   int
	Timestamp time.Time
}

// Subscriber is a channel that receives invalidation events, matching the
// teacher's events.Subscriber shape exactly.
type Subscriber chan *Event

// Broker fans out key-change events to every connection that has opted
// into client-side tracking (spec.md §8). It is the teacher's
// events.Broker with Event's cluster-event fields replaced by a key and a
// database index.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker builds a Broker. Call Start to launch its dispatch goroutine.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 1024),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker's distribution loop.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new subscription and returns its channel. A
// connection enabling CLIENT TRACKING ON calls this and forwards every
// received Event to the client as a RESP3 push frame.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 256)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription, called when a connection disables
// tracking or closes.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.subscribers[sub] {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues ev for broadcast to every current subscriber. Called from
// dbslice's RegisterOnChange callback on the owning shard's goroutine, so
// it must not block that goroutine past the eventCh buffer.
func (b *Broker) Publish(ev *Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- ev:
	default:
		// eventCh full: drop rather than block the publishing shard.
	}
}

func (b *Broker) run() {
	for {
		select {
		case ev := <-b.eventCh:
			b.broadcast(ev)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(ev *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- ev:
		default:
			// Subscriber buffer full: its connection is slow or stuck, skip
			// it rather than stall every other tracking client.
		}
	}
}

// SubscriberCount reports the number of connections currently tracking.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
