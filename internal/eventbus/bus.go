package eventbus

import (
	"sync"
	"sync/atomic"
)

// DefaultQueueDepth is the per-subscriber bounded queue size.
const DefaultQueueDepth = 256

// Subscription is one subscriber's view of the bus: a channel of events
// and a channel of Lagged(n) signals fired when the subscriber fell
// behind and events were dropped for it.
type Subscription struct {
	id     int64
	events chan DomainEvent
	lagged chan int
	missed atomic.Int64
}

// Events returns the channel of delivered events.
func (s *Subscription) Events() <-chan DomainEvent { return s.events }

// Lagged returns a channel that receives the cumulative number of events
// missed since the subscriber started lagging, each time delivery falls
// further behind. A subscriber that receives on this channel should
// reconcile its view from the durable store.
func (s *Subscription) Lagged() <-chan int { return s.lagged }

// Bus is a typed, in-process broadcast of DomainEvent. Publishers never
// block on slow subscribers: a subscriber whose queue is full misses the
// event and is signaled via Lagged instead. Grounded on the teacher's
// ws.Hub broadcast loop (buffered channel, drop-on-full), generalized
// from "disconnect the client" to "signal Lagged and keep delivering."
type Bus struct {
	mu         sync.RWMutex
	subs       map[int64]*Subscription
	nextID     int64
	queueDepth int
}

// NewBus creates a Bus with the given per-subscriber queue depth. A
// non-positive depth uses DefaultQueueDepth.
func NewBus(queueDepth int) *Bus {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Bus{subs: make(map[int64]*Subscription), queueDepth: queueDepth}
}

// Subscribe registers a new subscriber and returns its Subscription.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		events: make(chan DomainEvent, b.queueDepth),
		lagged: make(chan int, 1),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channels.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.events)
		close(sub.lagged)
	}
}

// Publish delivers evt to every subscriber without blocking. A
// subscriber whose queue is full is skipped and its missed counter is
// bumped; a best-effort, non-blocking Lagged(n) signal follows.
func (b *Bus) Publish(evt DomainEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.events <- evt:
		default:
			n := sub.missed.Add(1)
			select {
			case sub.lagged <- int(n):
			default:
			}
		}
	}
}

// SubscriberCount reports the number of active subscribers, mainly for
// metrics and tests.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
