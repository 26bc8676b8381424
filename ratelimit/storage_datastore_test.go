package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-accessctl-framework/testutil"
)

func newDatastoreStorage(t *testing.T) *DatastoreTokenStorage {
	t.Helper()
	return NewDatastoreTokenStorage(testutil.NewTestDB(t))
}

func TestDatastoreTokenStorage_AcquireUpToLimit(t *testing.T) {
	ctx := context.Background()
	store := newDatastoreStorage(t)
	rule := testRule("r1", 2, time.Minute)

	tok1, err := store.AcquireToken(ctx, rule, "u1")
	require.NoError(t, err)
	require.NotNil(t, tok1)
	tok2, err := store.AcquireToken(ctx, rule, "u1")
	require.NoError(t, err)
	require.NotNil(t, tok2)

	blocked, err := store.AcquireToken(ctx, rule, "u1")
	require.NoError(t, err)
	assert.Nil(t, blocked)

	other, err := store.AcquireToken(ctx, rule, "u2")
	require.NoError(t, err)
	assert.NotNil(t, other)
}

func TestDatastoreTokenStorage_ExpiryFreesCapacity(t *testing.T) {
	ctx := context.Background()
	store := newDatastoreStorage(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	rule := testRule("r1", 1, time.Minute)
	_, err := store.AcquireToken(ctx, rule, "u1")
	require.NoError(t, err)

	blocked, err := store.AcquireToken(ctx, rule, "u1")
	require.NoError(t, err)
	assert.Nil(t, blocked)

	now = now.Add(2 * time.Minute)
	again, err := store.AcquireToken(ctx, rule, "u1")
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestDatastoreTokenStorage_RetireAndFirstExpire(t *testing.T) {
	ctx := context.Background()
	store := newDatastoreStorage(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	rule := testRule("r1", 2, time.Minute)
	first, err := store.AcquireToken(ctx, rule, "u1")
	require.NoError(t, err)
	now = now.Add(5 * time.Second)
	second, err := store.AcquireToken(ctx, rule, "u1")
	require.NoError(t, err)

	got, err := store.GetFirstExpireToken(ctx, rule, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)

	require.NoError(t, store.RetireToken(ctx, rule, first.ID))
	got, err = store.GetFirstExpireToken(ctx, rule, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)
}

func TestDatastoreTokenStorage_DeleteOutdatedTokens(t *testing.T) {
	ctx := context.Background()
	store := newDatastoreStorage(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	rule := testRule("r1", 1, time.Minute)
	_, err := store.AcquireToken(ctx, rule, "u1")
	require.NoError(t, err)

	require.NoError(t, store.DeleteOutdatedTokens(ctx, now.Add(2*time.Minute)))

	got, err := store.GetFirstExpireToken(ctx, rule, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDatastoreTokenStorage_ClearTokens(t *testing.T) {
	ctx := context.Background()
	store := newDatastoreStorage(t)
	ruleA := testRule("ra", 1, time.Minute)
	ruleB := testRule("rb", 1, time.Minute)

	_, err := store.AcquireToken(ctx, ruleA, "u1")
	require.NoError(t, err)
	_, err = store.AcquireToken(ctx, ruleB, "u1")
	require.NoError(t, err)

	require.NoError(t, store.ClearTokens(ctx, "ra"))

	tok, err := store.AcquireToken(ctx, ruleA, "u1")
	require.NoError(t, err)
	assert.NotNil(t, tok)
	tok, err = store.AcquireToken(ctx, ruleB, "u1")
	require.NoError(t, err)
	assert.Nil(t, tok)
}
