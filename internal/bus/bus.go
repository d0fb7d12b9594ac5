// Package bus is a single in-process publisher with fan-out to
// subscribers (§4.10). Delivery is best-effort: slow subscribers may miss
// intermediate updates, but publishers never block on them.
package bus

import (
	"sync"

	"github.com/google/uuid"
)

type subscriber struct {
	ch        chan Event
	closeOnce sync.Once
	closed    bool
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		s.closed = true
		close(s.ch)
	})
}

func (s *subscriber) send(evt Event) bool {
	if s.closed {
		return false
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

// Bus fans out Events to any number of subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*subscriber
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber and returns its receive channel.
// Callers must call Unsubscribe with the same channel when done.
func (b *Bus) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan Event, 32)}
	b.subscribers = append(b.subscribers, sub)
	return sub.ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.ch == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			sub.close()
			return
		}
	}
}

// Publish broadcasts evt to all current subscribers, stamping an id if the
// caller didn't supply one. Non-blocking: subscribers whose buffer is full
// simply miss this update.
func (b *Bus) Publish(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}

	b.mu.RLock()
	subs := make([]*subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.send(evt)
	}
}

// Close shuts down all current subscriber channels, used at process
// shutdown so any HTTP/SSE handlers blocked on a receive unblock cleanly.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		sub.close()
	}
	b.subscribers = nil
}
