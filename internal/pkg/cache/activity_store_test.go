package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryActivityStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryActivityStore()

	t.Run("missing entry", func(t *testing.T) {
		_, ok := store.LastActive(ctx, "nobody")
		assert.False(t, ok)
	})

	t.Run("round trip", func(t *testing.T) {
		now := time.Now().Truncate(time.Second)
		store.MarkActive(ctx, "user-1", now)

		got, ok := store.LastActive(ctx, "user-1")
		assert.True(t, ok)
		assert.Equal(t, now, got)
	})

	t.Run("last writer wins", func(t *testing.T) {
		first := time.Now().Add(-10 * time.Minute)
		second := time.Now()
		store.MarkActive(ctx, "user-2", first)
		store.MarkActive(ctx, "user-2", second)

		got, ok := store.LastActive(ctx, "user-2")
		assert.True(t, ok)
		assert.Equal(t, second, got)
	})

	t.Run("entries are per user", func(t *testing.T) {
		store.MarkActive(ctx, "user-3", time.Now())
		_, ok := store.LastActive(ctx, "user-4")
		assert.False(t, ok)
	})
}
