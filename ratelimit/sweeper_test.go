package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_RemovesExpiredTokens(t *testing.T) {
	ctx := context.Background()
	store := NewInmemoryTokenStorage()

	// expired immediately
	rule := testRule("r1", 1, -time.Second)
	_, err := store.AcquireToken(ctx, rule, "u1")
	require.NoError(t, err)

	sweeper, err := NewSweeper(store, 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, sweeper.Start(ctx))
	defer sweeper.Stop()

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.buckets) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	sweeper, err := NewSweeper(NewInmemoryTokenStorage(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultSweepInterval, sweeper.interval)
}
