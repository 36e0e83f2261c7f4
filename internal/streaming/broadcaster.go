// Package streaming delivers live updates to in-process subscribers.
package streaming

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/auraos/orchestrator/pkg/schema"
)

// Subscriber receives one broadcast value. A returned error or a panic is
// logged and does not affect other subscribers.
type Subscriber[T any] func(ctx context.Context, v T) error

// Broadcaster fans a value out to every registered subscriber, in
// subscription order, on the caller's goroutine.
type Broadcaster[T any] struct {
	name   string
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[uint64]Subscriber[T]
	seq  atomic.Uint64
}

// NewBroadcaster creates a broadcaster. name labels its log lines.
func NewBroadcaster[T any](name string, logger *slog.Logger) *Broadcaster[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster[T]{
		name:   name,
		logger: logger,
		subs:   make(map[uint64]Subscriber[T]),
	}
}

// Subscribe registers fn and returns a function that removes it. The
// returned function is idempotent.
func (b *Broadcaster[T]) Subscribe(fn Subscriber[T]) (unsubscribe func()) {
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Broadcast delivers v to every current subscriber and returns how many
// accepted it without error.
func (b *Broadcaster[T]) Broadcast(ctx context.Context, v T) int {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	subs := make([]Subscriber[T], len(ids))
	for i, id := range ids {
		subs[i] = b.subs[id]
	}
	b.mu.RUnlock()

	delivered := 0
	for i, fn := range subs {
		if err := b.deliver(ctx, fn, v); err != nil {
			b.logger.WarnContext(ctx, "subscriber failed",
				slog.String("stream", b.name),
				slog.Uint64("subscriber", ids[i]),
				slog.String("error", err.Error()))
			continue
		}
		delivered++
	}
	return delivered
}

func (b *Broadcaster[T]) deliver(ctx context.Context, fn Subscriber[T], v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = schema.NewErrorf(schema.ErrCodeSubscriber, "subscriber panicked: %v", r)
		}
	}()
	if err := fn(ctx, v); err != nil {
		return schema.NewErrorf(schema.ErrCodeSubscriber, "%s", err.Error()).WithCause(err)
	}
	return nil
}

// Len returns the number of current subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
