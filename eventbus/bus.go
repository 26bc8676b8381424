package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KOMKZ/go-accessctl-framework/logger"
)

// Listener handles one event payload
type Listener func(ctx context.Context, p Payload) error

// UnsubscribeFunc removes a subscription
type UnsubscribeFunc func()

type listenerEntry struct {
	id        uint64
	predicate Predicate
	listener  Listener
}

// Bus in-memory event bus
type Bus struct {
	mu        sync.RWMutex
	listeners map[Type][]listenerEntry
	nextID    uint64
	pool      *ants.Pool
	poolSize  int
	logger    *logger.CtxZapLogger
	closed    int32
}

// Option configures the bus
type Option func(*Bus)

// WithPoolSize sets the async worker pool size
func WithPoolSize(size int) Option {
	return func(b *Bus) {
		b.poolSize = size
	}
}

// NewBus creates an event bus
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		listeners: make(map[Type][]listenerEntry),
		poolSize:  64,
		logger:    logger.GetLogger("eventbus"),
	}

	for _, opt := range opts {
		opt(b)
	}

	var err error
	b.pool, err = ants.NewPool(b.poolSize)
	if err != nil {
		b.logger.Error("failed to create worker pool, falling back to default size", zap.Error(err))
		b.pool, _ = ants.NewPool(64)
	}

	return b
}

// Subscribe registers a listener for an event type, filtered by predicate.
// Returns the unsubscribe function.
func (b *Bus) Subscribe(t Type, predicate Predicate, listener Listener) UnsubscribeFunc {
	if t == "" || listener == nil {
		return func() {}
	}

	entry := listenerEntry{
		id:        atomic.AddUint64(&b.nextID, 1),
		predicate: predicate,
		listener:  listener,
	}

	b.mu.Lock()
	b.listeners[t] = append(b.listeners[t], entry)
	b.mu.Unlock()

	return func() {
		b.unsubscribe(t, entry.id)
	}
}

func (b *Bus) unsubscribe(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.listeners[t]
	for i, e := range entries {
		if e.id == id {
			b.listeners[t] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Fire invokes all matching listeners concurrently and waits for them
// to finish. The first listener error is returned after every listener
// has completed; listeners are not isolated from each other's failures.
func (b *Bus) Fire(ctx context.Context, t Type, p Payload) error {
	b.mu.RLock()
	entries := make([]listenerEntry, len(b.listeners[t]))
	copy(entries, b.listeners[t])
	b.mu.RUnlock()

	g := new(errgroup.Group)
	for _, entry := range entries {
		if entry.predicate != nil && !entry.predicate(p) {
			continue
		}
		listener := entry.listener
		g.Go(func() error {
			return listener(ctx, p)
		})
	}

	return g.Wait()
}

// FireAsync dispatches the event on the worker pool without waiting.
// Listener errors are logged, not returned.
func (b *Bus) FireAsync(ctx context.Context, t Type, p Payload) {
	if atomic.LoadInt32(&b.closed) == 1 {
		return
	}

	err := b.pool.Submit(func() {
		if err := b.Fire(context.Background(), t, p); err != nil {
			b.logger.Error("async event dispatch failed",
				zap.String("event", string(t)),
				zap.Error(err))
		}
	})
	if err != nil {
		b.logger.ErrorCtx(ctx, "failed to submit async event",
			zap.String("event", string(t)),
			zap.Error(err))
	}
}

// ListenerCount returns the number of listeners for an event type (for testing)
func (b *Bus) ListenerCount(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[t])
}

// Close shuts down the bus worker pool
func (b *Bus) Close() {
	atomic.StoreInt32(&b.closed, 1)
	if b.pool != nil {
		b.pool.Release()
	}
}
