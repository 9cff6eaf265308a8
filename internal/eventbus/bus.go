// Package eventbus is an in-memory, non-blocking fan-out of lifecycle signals
// (notification queued/sent/failed, aggregates fired, config reloads).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the bridge.
const (
	AggregateFired     = "engine.aggregate.fired"
	AggregateDiscarded = "engine.aggregate.discarded"
	NotifierQueued     = "notifier.queued"
	NotifierSent       = "notifier.sent"
	NotifierFailed     = "notifier.failed"
	NotifierDropped    = "notifier.dropped"
	ConfigReloaded     = "config.reloaded"
)

// Event is a small signal. Data should be JSON-serializable.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus never blocks publishers; slow subscribers lose events.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory bus. It owns no goroutines.
func New() Bus { return &memBus{subs: map[uint64]chan Event{}} }

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Removing under the write lock guarantees no Publish is mid-send.
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Nop discards everything. Useful as a default dependency.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
