package bus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Bus fans daemon events out to in-process subscribers. Delivery never
// blocks the publisher: a subscriber whose buffer is full misses the event
// and the miss is counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	nextID  uint64
	dropped atomic.Uint64
}

type subscriber struct {
	prefix string
	ch     chan Event
}

func (s *subscriber) wants(kind string) bool {
	return strings.HasPrefix(kind, s.prefix)
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]*subscriber)}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
// A zero Timestamp is set to now. Publishing on a nil bus is a no-op.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.wants(evt.Kind) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Emit publishes a payload under kind.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{Kind: kind, Payload: payload})
}

// Subscribe registers a buffered subscriber for kinds starting with prefix.
// An empty prefix matches everything. The returned func unregisters it and
// may be called more than once.
func (b *Bus) Subscribe(prefix string, buffer int) (<-chan Event, func()) {
	sub := &subscriber{prefix: prefix, ch: make(chan Event, buffer)}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Subscribers reports how many subscribers are registered.
func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped reports how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}
