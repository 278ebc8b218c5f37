package idempotency

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/interbank-transfers/internal/db"
	"github.com/ayo6706/interbank-transfers/internal/testutil/dblock"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = godotenv.Load("../../.env")
}

func TestRedisKeyIsScoped(t *testing.T) {
	assert.Equal(t, "interbank:idempotency:alice-id:k1", redisKey("alice-id", "k1"))
	assert.NotEqual(t, redisKey("alice-id", "k1"), redisKey("bob-id", "k1"))
}

func TestReserveFinalizeLookup(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
	release := dblock.Acquire()
	defer release()

	ctx := context.Background()
	pool, err := db.Connect(ctx, os.Getenv("DATABASE_URL"), 0)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, db.Migrate(ctx, pool))

	store := NewStore(nil, pool, time.Hour)
	key := uuid.NewString()

	ok, err := store.Reserve(ctx, "alice-id", key, "hash-1", "POST", "/v1/transfers")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Reserve(ctx, "alice-id", key, "hash-1", "POST", "/v1/transfers")
	require.NoError(t, err)
	assert.False(t, ok)

	// Another caller may use the same key independently.
	ok, err = store.Reserve(ctx, "bob-id", key, "hash-1", "POST", "/v1/transfers")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.Lookup(ctx, "alice-id", key, "hash-1")
	require.ErrorIs(t, err, ErrInProgress)

	_, err = store.Finalize(ctx, "alice-id", key, "hash-1", 201, []byte(`{"id":"t1"}`), "application/json")
	require.NoError(t, err)

	rec, err := store.Lookup(ctx, "alice-id", key, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)
	assert.Equal(t, "postgres", rec.ServedBy)

	_, err = store.Lookup(ctx, "alice-id", key, "hash-2")
	require.ErrorIs(t, err, ErrHashMismatch)

	require.NoError(t, store.Release(ctx, "bob-id", key))
	_, err = store.Lookup(ctx, "bob-id", key, "hash-1")
	require.ErrorIs(t, err, ErrNotFound)
}
