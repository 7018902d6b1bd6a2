package ledger

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulBabatuyi/pawchat/internal/db"
)

func TestLedgerMongo(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	runLedgerSuite(t, func(t *testing.T) Backend {
		ctx := context.Background()
		c, err := db.New(ctx, uri, "pawchat_ledger_test")
		require.NoError(t, err)
		_ = c.ReadMarkersCollection().Drop(ctx)
		require.NoError(t, c.CreateIndexes(ctx))
		t.Cleanup(func() { _ = c.Close(context.Background()) })
		return NewMongoBackend(c.ReadMarkersCollection())
	})
}

func newTestRedis(t *testing.T) *RedisBackend {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = rdb.Close() })

	// unique prefix per test keeps runs independent without FLUSHDB
	prefix := fmt.Sprintf("pawchat-test-%d", time.Now().UnixNano())
	return NewRedisBackend(rdb, prefix)
}

func TestLedgerRedis(t *testing.T) {
	runLedgerSuite(t, func(t *testing.T) Backend { return newTestRedis(t) })
}

func TestRedisBackend_ReadMarkerOnlyMovesForward(t *testing.T) {
	b := newTestRedis(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	changed, err := b.Reset(ctx, "bob", "c1", now)
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = b.Reset(ctx, "bob", "c1", now.Add(-time.Hour))
	require.NoError(t, err)

	at, ok, err := b.LastReadAt(ctx, "bob", "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now, at)
}
