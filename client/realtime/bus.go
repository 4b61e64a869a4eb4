package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vendora/realtime-backend/contract"
)

// Handler consumes a dispatched frame.
type Handler func(frame contract.Frame)

// Bus is the in-process publish/subscribe fan-out for domain events. UI
// consumers subscribe here instead of holding a reference to the connection
// manager, so they can mount and unmount independently of the connection's
// lifecycle.
//
// Publish delivers synchronously, in subscription order. Events are
// ephemeral: delivered once to the subscribers present at publish time,
// then discarded.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	topics map[contract.EventName][]busSubscription
	logger *slog.Logger
}

type busSubscription struct {
	id int
	fn Handler

	// removed is shared between the topic slice and any in-flight Publish
	// snapshot, so an unsubscribe is honored mid-fan-out too.
	removed *atomic.Bool
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		topics: make(map[contract.EventName][]busSubscription),
		logger: logger.With("component", "realtime_bus"),
	}
}

// Subscribe registers a handler for the given event name and returns an
// unsubscribe function. Calling the returned function more than once is a
// no-op.
func (b *Bus) Subscribe(event contract.EventName, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := busSubscription{id: id, fn: fn, removed: new(atomic.Bool)}
	b.topics[event] = append(b.topics[event], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.unsubscribe(event, id)
		})
	}
}

func (b *Bus) unsubscribe(event contract.EventName, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[event]
	for i, sub := range subs {
		if sub.id == id {
			sub.removed.Store(true)
			b.topics[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[event]) == 0 {
		delete(b.topics, event)
	}
}

// Publish delivers the frame to every current subscriber of its event name.
// The subscriber list is copied before delivery so handlers may subscribe
// or unsubscribe without deadlocking; the removed flag is re-checked per
// subscriber so nothing is delivered once its unsubscribe has returned,
// even when the unsubscribe happened inside an earlier handler of the same
// publish.
func (b *Bus) Publish(frame contract.Frame) {
	b.mu.RLock()
	subs := make([]busSubscription, len(b.topics[frame.Event]))
	copy(subs, b.topics[frame.Event])
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("no subscribers for event", "event", frame.Event)
		return
	}

	for _, sub := range subs {
		if sub.removed.Load() {
			continue
		}
		sub.fn(frame)
	}
}

// SubscriberCount returns the number of active subscriptions for an event.
func (b *Bus) SubscriberCount(event contract.EventName) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[event])
}
