package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_PrefixInvalidation(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.Set(ctx, PrefixPaymentsList+"all", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, PrefixPaymentsSummary+"all", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, PrefixContracts+"all", []byte("3"), 0))

	require.NoError(t, InvalidateAll(ctx, c, PrefixPaymentsList, PrefixPaymentsSummary))

	_, ok, _ := c.Get(ctx, PrefixPaymentsList+"all")
	assert.False(t, ok)
	v, ok, _ := c.Get(ctx, PrefixContracts+"all")
	assert.True(t, ok)
	assert.Equal(t, []byte("3"), v)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok, "expired entries are dropped")
}

func TestRemember(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	calls := 0
	load := func(context.Context) ([]int, error) {
		calls++
		return []int{1, 2, 3}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := Remember(ctx, c, "units:all", time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, got)
	}
	assert.Equal(t, 1, calls)

	require.NoError(t, c.InvalidatePrefix(ctx, PrefixUnits))
	_, err := Remember(ctx, c, "units:all", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	boom := errors.New("boom")
	_, err = Remember(ctx, c, "other", time.Minute, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	_, ok, _ := c.Get(ctx, "other")
	assert.False(t, ok, "errors are not cached")
}
