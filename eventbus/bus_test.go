package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService string

func (s fakeService) QualifiedName() string { return string(s) }

func TestBus_SubscribeAndFire(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var got Payload
	var mu sync.Mutex
	bus.Subscribe(TypeSetPermission, nil, func(_ context.Context, p Payload) error {
		mu.Lock()
		defer mu.Unlock()
		got = p
		return nil
	})

	err := bus.Fire(context.Background(), TypeSetPermission, Payload{
		Service: fakeService("bot.demo"),
		Subject: "qq:123",
		Allow:   true,
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "bot.demo", got.Service.QualifiedName())
	assert.Equal(t, "qq:123", got.Subject)
	assert.True(t, got.Allow)
}

func TestBus_PredicateFilters(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var calls int64
	onlyDemo := func(p Payload) bool {
		return p.Service != nil && p.Service.QualifiedName() == "bot.demo"
	}
	bus.Subscribe(TypeChangePermission, onlyDemo, func(context.Context, Payload) error {
		atomic.AddInt64(&calls, 1)
		return nil
	})

	require.NoError(t, bus.Fire(context.Background(), TypeChangePermission, Payload{Service: fakeService("bot.other")}))
	require.NoError(t, bus.Fire(context.Background(), TypeChangePermission, Payload{Service: fakeService("bot.demo")}))

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestBus_FireDoesNotMatchOtherTypes(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var calls int64
	bus.Subscribe(TypeSetPermission, nil, func(context.Context, Payload) error {
		atomic.AddInt64(&calls, 1)
		return nil
	})

	require.NoError(t, bus.Fire(context.Background(), TypeRemovePermission, Payload{}))
	assert.Zero(t, atomic.LoadInt64(&calls))
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	unsubscribe := bus.Subscribe(TypeSetPermission, nil, func(context.Context, Payload) error {
		return nil
	})
	assert.Equal(t, 1, bus.ListenerCount(TypeSetPermission))

	unsubscribe()
	assert.Equal(t, 0, bus.ListenerCount(TypeSetPermission))
}

func TestBus_FireReturnsListenerError(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	wantErr := errors.New("listener broke")
	var ran int64
	bus.Subscribe(TypeSetPermission, nil, func(context.Context, Payload) error {
		return wantErr
	})
	bus.Subscribe(TypeSetPermission, nil, func(context.Context, Payload) error {
		atomic.AddInt64(&ran, 1)
		return nil
	})

	err := bus.Fire(context.Background(), TypeSetPermission, Payload{})
	assert.ErrorIs(t, err, wantErr)
	// the healthy listener still ran to completion
	assert.Equal(t, int64(1), atomic.LoadInt64(&ran))
}

func TestBus_FireAsync(t *testing.T) {
	bus := NewBus(WithPoolSize(4))
	defer bus.Close()

	done := make(chan struct{})
	bus.Subscribe(TypeAddRateLimitRule, nil, func(context.Context, Payload) error {
		close(done)
		return nil
	})

	bus.FireAsync(context.Background(), TypeAddRateLimitRule, Payload{})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async listener never ran")
	}
}
