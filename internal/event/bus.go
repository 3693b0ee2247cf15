// Package event provides the in-process pub/sub EventBus (§2.4): typed
// events, per-subscription priority, and both fire-and-forget (Publish) and
// join-on-completion (PublishSync) delivery.
package event

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Event is a single typed notification published on the bus.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

// subscriberEntry wraps a subscriber with an id and a priority. Entries are
// kept in descending priority order, ties in subscription order; PublishSync
// runs them one after another in that order, while Publish only starts their
// goroutines in that order.
type subscriberEntry struct {
	id       uint64
	priority int
	fn       Subscriber
}

// Bus is the event bus that manages pub/sub using watermill's in-memory
// gochannel for transport plumbing while keeping direct typed-callback
// dispatch so subscribers never have to type-assert off the wire.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[Type][]subscriberEntry
	global      []subscriberEntry

	nextID       uint64
	closed       bool
	closedCancel context.CancelFunc
	closedCtx    context.Context
}

var globalBus = newBus()

func newBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers:  make(map[Type][]subscriberEntry),
		closedCtx:    ctx,
		closedCancel: cancel,
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a subscriber for a specific event type at the default
// priority (0). Returns an unsubscribe function.
func Subscribe(t Type, fn Subscriber) func() { return globalBus.Subscribe(t, fn) }

func (b *Bus) Subscribe(t Type, fn Subscriber) func() {
	return b.SubscribeWithPriority(t, 0, fn)
}

// SubscribeWithPriority registers a subscriber that runs before
// lower-priority subscribers of the same event type.
func SubscribeWithPriority(t Type, priority int, fn Subscriber) func() {
	return globalBus.SubscribeWithPriority(t, priority, fn)
}

func (b *Bus) SubscribeWithPriority(t Type, priority int, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	entry := subscriberEntry{id: id, priority: priority, fn: fn}
	b.subscribers[t] = insertByPriority(b.subscribers[t], entry)

	return func() { b.unsubscribe(t, id) }
}

// SubscribeAll registers a subscriber for every event type.
func SubscribeAll(fn Subscriber) func() { return globalBus.SubscribeAll(fn) }

func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	entry := subscriberEntry{id: id, fn: fn}
	b.global = append(b.global, entry)

	return func() { b.unsubscribeGlobal(id) }
}

func insertByPriority(entries []subscriberEntry, e subscriberEntry) []subscriberEntry {
	i := len(entries)
	for i > 0 && entries[i-1].priority < e.priority {
		i--
	}
	entries = append(entries, subscriberEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

func (b *Bus) unsubscribe(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[t]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[t] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

// Publish delivers an event to all subscribers asynchronously (one goroutine
// per subscriber). The goroutines are started in priority order, but the
// order in which subscribers actually run is not defined. A subscriber
// failure (panic) is isolated per spec §5 and never reaches the publisher.
func Publish(e Event) { globalBus.Publish(e) }

func (b *Bus) Publish(e Event) {
	subs := b.collect(e.Type)
	for _, sub := range subs {
		fn := sub
		go safeInvoke(fn, e)
	}
}

// PublishSync delivers an event to all subscribers synchronously, in
// priority order, before returning (join-on-completion per §2.4).
func PublishSync(e Event) { globalBus.PublishSync(e) }

func (b *Bus) PublishSync(e Event) {
	subs := b.collect(e.Type)
	for _, sub := range subs {
		safeInvoke(sub, e)
	}
}

func (b *Bus) collect(t Type) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	subs := make([]Subscriber, 0, len(b.subscribers[t])+len(b.global))
	for _, entry := range b.subscribers[t] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// safeInvoke isolates a subscriber panic so it cannot fail the publisher.
func safeInvoke(fn Subscriber, e Event) {
	defer func() { _ = recover() }()
	fn(e)
}

// NewBus creates a new, independent event bus instance (used by tests and
// by callers that want isolation from the process-wide default).
func NewBus() *Bus { return newBus() }

// Reset clears all subscribers from the global bus. Intended for tests.
func Reset() {
	globalBus.mu.Lock()
	globalBus.closed = true
	globalBus.closedCancel()
	globalBus.mu.Unlock()

	_ = globalBus.pubsub.Close()
	time.Sleep(10 * time.Millisecond)

	globalBus = newBus()
}

// Close closes the bus and drops all subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.closedCancel()
	b.subscribers = make(map[Type][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

// PubSub exposes the underlying watermill GoChannel for advanced use (e.g.
// wiring a distributed backend later without changing call sites).
func (b *Bus) PubSub() *gochannel.GoChannel { return b.pubsub }

// PubSub returns the global bus's underlying watermill GoChannel.
func PubSub() *gochannel.GoChannel { return globalBus.PubSub() }
