package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestFetchJSONCachesLoaderResult(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	key, err := c.BuildKey(ctx, "ledger", "tb", "1")
	require.NoError(t, err)
	require.Equal(t, "ledger:tb:1:v1", key)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]string{"total": "500000"}, nil
	}
	var out map[string]string
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.Equal(t, 1, calls)
	require.Equal(t, "500000", out["total"])
}

func TestBumpChangesKeys(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	before, err := c.BuildKey(ctx, "fund", "3")
	require.NoError(t, err)
	require.NoError(t, c.Bump(ctx))
	after, err := c.BuildKey(ctx, "fund", "3")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestNilCacheCallsLoader(t *testing.T) {
	var c *Cache
	var out int
	require.NoError(t, c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) { return 4, nil }))
	require.Equal(t, 4, out)
	require.NoError(t, c.Bump(context.Background()))
}
