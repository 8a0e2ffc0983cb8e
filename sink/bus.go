// Package sink carries finished acquisition output to the presentation layer.
//
// The bus never blocks a producer: TryPush attempts a bounded enqueue on every
// subscriber and drops per-subscriber when a buffer is full. Dropped counts
// are tracked so a live view can report loss instead of hiding it.
package sink

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrBusClosed          = errors.New("sink: bus is closed")
	ErrSubscriberExists   = errors.New("sink: subscriber already exists")
	ErrSubscriberNotFound = errors.New("sink: subscriber not found")
)

// Stats tracks per-subscriber delivery counters.
type Stats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber[T any] struct {
	id    string
	ch    chan T
	stats *Stats
}

// Bus fans values out to registered subscribers with a drop-on-full policy.
// Safe for concurrent producers and subscribers.
type Bus[T any] struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber[T]
	published uint64
	closed    bool
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[string]*subscriber[T])}
}

// Subscribe registers a consumer with a bounded buffer and returns its
// receive channel. The channel is closed on Unsubscribe or Close.
func (b *Bus[T]) Subscribe(id string, depth int) (<-chan T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.subs[id]; exists {
		return nil, ErrSubscriberExists
	}
	if depth < 1 {
		depth = 1
	}

	sub := &subscriber[T]{
		id:    id,
		ch:    make(chan T, depth),
		stats: &Stats{},
	}
	b.subs[id] = sub
	return sub.ch, nil
}

// TryPush offers v to every subscriber without blocking. It returns true if
// at least one subscriber accepted the value. Pushing to a closed bus or a
// bus with no subscribers returns false.
func (b *Bus[T]) TryPush(v T) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}

	atomic.AddUint64(&b.published, 1)

	accepted := false
	for _, sub := range b.subs {
		select {
		case sub.ch <- v:
			atomic.AddUint64(&sub.stats.Sent, 1)
			accepted = true
		default:
			atomic.AddUint64(&sub.stats.Dropped, 1)
		}
	}
	return accepted
}

// Unsubscribe removes a consumer and closes its channel.
func (b *Bus[T]) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, exists := b.subs[id]
	if !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subs, id)
	close(sub.ch)
	return nil
}

// Stats returns a snapshot of a subscriber's counters.
func (b *Bus[T]) Stats(id string) (Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, exists := b.subs[id]
	if !exists {
		return Stats{}, ErrSubscriberNotFound
	}
	return Stats{
		Sent:    atomic.LoadUint64(&sub.stats.Sent),
		Dropped: atomic.LoadUint64(&sub.stats.Dropped),
	}, nil
}

// Published returns the total number of values offered to the bus.
func (b *Bus[T]) Published() uint64 {
	return atomic.LoadUint64(&b.published)
}

// Close shuts the bus down and closes all subscriber channels. Idempotent.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
