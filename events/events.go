package events

import (
	"log/slog"
	"sync"
)

// Topic is a single event kind with a fixed payload shape. Subscribers receive
// events on buffered channels; publishing never blocks. A subscriber whose
// buffer is full misses the event (logged), it cannot stall the publisher or
// any other subscriber.
type Topic[T any] struct {
	name string
	mu   sync.RWMutex
	subs []chan T
}

// NewTopic creates a named topic.
func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{name: name}
}

// Subscribe registers a new subscriber channel with the given buffer size.
// A buffer of at least 1 is always allocated.
func (t *Topic[T]) Subscribe(buffer int) <-chan T {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch
}

// Publish delivers the event to every subscriber that has buffer room.
func (t *Topic[T]) Publish(ev T) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("event dropped, subscriber buffer full", "topic", t.name)
		}
	}
}
