// Package events is a small typed publish/subscribe bus used to decouple
// producers (sync, ingestion, summaries) from consumers (SSE, push notifiers).
package events

import (
	"log/slog"
	"sync"
)

const defaultBuffer = 64

// Topic names a stream of events of one type.
type Topic[T any] struct {
	name string
}

func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{name: name}
}

func (t Topic[T]) Name() string {
	return t.name
}

type subscriber struct {
	deliver func(any) bool
	close   func()
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*subscriber
	nextID uint64
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[string]map[uint64]*subscriber),
		logger: logger.With("component", "events"),
	}
}

// Chan subscribes to topic and returns a buffered channel of events plus a
// function that unsubscribes and closes the channel.
func Chan[T any](b *Bus, topic Topic[T], buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan T, buffer)

	sub := &subscriber{
		deliver: func(v any) bool {
			select {
			case ch <- v.(T):
				return true
			default:
				return false
			}
		},
		close: func() { close(ch) },
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[topic.name] == nil {
		b.subs[topic.name] = make(map[uint64]*subscriber)
	}
	b.subs[topic.name][id] = sub
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic.name], id)
			b.mu.Unlock()
			sub.close()
		})
	}
	return ch, unsubscribe
}

// Subscribe runs fn on its own goroutine for every event on topic until the
// returned function is called.
func Subscribe[T any](b *Bus, topic Topic[T], fn func(T)) func() {
	ch, unsubscribe := Chan(b, topic, defaultBuffer)
	go func() {
		for ev := range ch {
			fn(ev)
		}
	}()
	return unsubscribe
}

// Publish delivers event to every current subscriber of topic.
func Publish[T any](b *Bus, topic Topic[T], event T) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, sub := range b.subs[topic.name] {
		if !sub.deliver(event) {
			b.logger.Warn("subscriber buffer full, event dropped", "topic", topic.name, "subscriber", id)
		}
	}
}

// Subscribers reports how many subscribers topic has.
func (b *Bus) Subscribers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}
