// Package feed provides an in-memory fan-out broadcaster.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultBuffer is the channel buffer given to each subscriber.
const DefaultBuffer = 64

// Broadcaster delivers published values to every current subscriber.
// Publish never blocks: values are dropped for subscribers whose buffer is
// full, and nothing is retained for subscribers that join later.
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]chan T
	buffer      int
	closed      bool
	logger      *slog.Logger
}

// New creates a broadcaster. Pass nil logger for slog.Default().
func New[T any](name string, buffer int, logger *slog.Logger) *Broadcaster[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster[T]{
		subscribers: make(map[string]chan T),
		buffer:      buffer,
		logger:      logger.With("feed", name),
	}
}

// Subscribe registers a subscriber and returns its channel and id. The
// subscription is removed when ctx is cancelled or Unsubscribe is called,
// after which the channel is closed.
func (b *Broadcaster[T]) Subscribe(ctx context.Context) (<-chan T, string) {
	subID := uuid.NewString()
	ch := make(chan T, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends v to all subscribers.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- v:
		default:
			b.logger.Debug("dropped value for slow subscriber", "sub_id", id)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster[T]) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Len reports the number of live subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel. Later subscriptions receive an
// already-closed channel.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.closed = true
}
