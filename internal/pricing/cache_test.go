package pricing

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

func TestCachedSelectionInvalidatedByAppend(t *testing.T) {
	cache, _ := newTestCache(t)
	repo := newMemoryPriceRepo()
	svc := NewService(repo, &memoryCustomers{}, cache)
	ctx := context.Background()

	src, err := svc.CreateSource(ctx, SourceInput{Type: SourceTypeInvoice, Name: "Invoice batch", DocDate: date("2024-01-01")})
	require.NoError(t, err)
	_, err = svc.AppendPrice(ctx, "m1", 100, "RUB", date("2024-01-01"), src)
	require.NoError(t, err)

	obs, err := svc.SelectPrice(ctx, "m1", datePtr("2024-02-01"), nil)
	require.NoError(t, err)
	require.Equal(t, 100.0, obs.Price)

	// A fresher observation must be visible immediately despite the cache.
	_, err = svc.AppendPrice(ctx, "m1", 120, "RUB", date("2024-01-15"), src)
	require.NoError(t, err)

	obs, err = svc.SelectPrice(ctx, "m1", datePtr("2024-02-01"), nil)
	require.NoError(t, err)
	require.Equal(t, 120.0, obs.Price)
}

func TestCacheServesRepeatedSelections(t *testing.T) {
	cache, _ := newTestCache(t)
	repo := newMemoryPriceRepo()
	svc := NewService(repo, &memoryCustomers{}, cache)
	ctx := context.Background()

	src, err := svc.CreateSource(ctx, SourceInput{Type: SourceTypeInvoice, Name: "Invoice batch", DocDate: date("2024-01-01")})
	require.NoError(t, err)
	_, err = svc.AppendPrice(ctx, "m1", 100, "RUB", date("2024-01-01"), src)
	require.NoError(t, err)

	first, err := svc.SelectPrice(ctx, "m1", datePtr("2024-02-01"), nil)
	require.NoError(t, err)

	// Mutate the repo behind the cache's back; the cached result sticks
	// until the version is bumped.
	for id, p := range repo.prices {
		p.Price = 999
		repo.prices[id] = p
	}
	second, err := svc.SelectPrice(ctx, "m1", datePtr("2024-02-01"), nil)
	require.NoError(t, err)
	require.Equal(t, first.Price, second.Price)
}

func TestCacheNegativeResult(t *testing.T) {
	cache, _ := newTestCache(t)
	repo := newMemoryPriceRepo()
	svc := NewService(repo, &memoryCustomers{}, cache)
	ctx := context.Background()

	_, err := svc.SelectPrice(ctx, "missing", datePtr("2024-02-01"), nil)
	require.ErrorIs(t, err, ErrNoPrice)

	_, err = svc.SelectPrice(ctx, "missing", datePtr("2024-02-01"), nil)
	require.ErrorIs(t, err, ErrNoPrice)
}
