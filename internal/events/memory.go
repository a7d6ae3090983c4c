package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// memoryQueueSize - сколько событий подписчик может отставать до потерь.
const memoryQueueSize = 256

var ErrSubscriberBehind = errors.New("subscriber queue full")

// MemoryBus is an in-process Publisher/Subscriber for single-node runs and tests.
// Each subscriber has its own queue and goroutine, so Publish never waits for a
// handler; per-subscriber order is preserved. Events are JSON round-tripped so
// handlers see the same shapes as with Redis.
type MemoryBus struct {
	mu      sync.RWMutex
	subs    map[string][]*memorySub
	pending sync.WaitGroup
}

type memorySub struct {
	mu     sync.Mutex
	closed bool
	queue  chan Event
}

// offer кладёт событие в очередь без ожидания.
func (s *memorySub) offer(b *MemoryBus, e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	b.pending.Add(1)
	select {
	case s.queue <- e:
		return true
	default:
		b.pending.Done()
		return false
	}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySub)}
}

// Publish enqueues event for every subscriber of stream. A subscriber whose
// queue is full misses the event; the rest still get it.
func (b *MemoryBus) Publish(ctx context.Context, stream string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	b.mu.RLock()
	subs := append([]*memorySub(nil), b.subs[stream]...)
	b.mu.RUnlock()

	var dropped int
	for _, s := range subs {
		var decoded Event
		if err := json.Unmarshal(data, &decoded); err != nil {
			return err
		}
		if !s.offer(b, decoded) {
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%s dropped for %d subscriber(s): %w", event.Type, dropped, ErrSubscriberBehind)
	}
	return nil
}

// Subscribe registers handler until ctx is cancelled.
func (b *MemoryBus) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	s := &memorySub{queue: make(chan Event, memoryQueueSize)}

	b.mu.Lock()
	b.subs[stream] = append(b.subs[stream], s)
	b.mu.Unlock()

	go func() {
		defer b.unsubscribe(stream, s)
		for {
			select {
			case e := <-s.queue:
				handler(e)
				b.pending.Done()
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Flush waits until every event published so far has been handled.
// Only meaningful once publishers are quiet, e.g. in tests.
func (b *MemoryBus) Flush() {
	b.pending.Wait()
}

func (b *MemoryBus) unsubscribe(stream string, s *memorySub) {
	b.mu.Lock()
	subs := b.subs[stream]
	for i, cur := range subs {
		if cur == s {
			b.subs[stream] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	// недоставленные события больше не ждём
	for {
		select {
		case <-s.queue:
			b.pending.Done()
		default:
			return
		}
	}
}
