package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache("shop").(*memoryCache)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	now = now.Add(2 * time.Minute)
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryCacheDeletePrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache("shop")

	featured := c.GenerateKey("catalog", "featured:8")
	categories := c.GenerateKey("catalog", "categories")
	other := c.GenerateKey("session", "x")
	assert.Equal(t, "shop:catalog:featured:8", featured)

	for _, k := range []string{featured, categories, other} {
		require.NoError(t, c.Set(ctx, k, "1", 0))
	}
	require.NoError(t, c.DeletePrefix(ctx, c.GenerateKey("catalog", "")))

	for _, k := range []string{featured, categories} {
		got, _ := c.Get(ctx, k)
		assert.Empty(t, got, k)
	}
	got, _ := c.Get(ctx, other)
	assert.Equal(t, "1", got)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache("shop")

	var dst []string
	assert.False(t, GetJSON(ctx, c, "list", &dst))

	SetJSON(ctx, c, "list", []string{"a", "b"}, time.Minute)
	require.True(t, GetJSON(ctx, c, "list", &dst))
	assert.Equal(t, []string{"a", "b"}, dst)

	require.NoError(t, c.Set(ctx, "broken", "{not json", 0))
	assert.False(t, GetJSON(ctx, c, "broken", &dst))
}
