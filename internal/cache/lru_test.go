package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdo/gitdo/internal/cache"
)

func TestLRU(t *testing.T) {
	t.Parallel()

	t.Run("should cache and evict", func(t *testing.T) {
		t.Parallel()

		c, err := cache.NewLRU[uint64](2, 0)
		require.NoError(t, err)

		c.Add(1, []byte("one"))
		c.Add(2, []byte("two"))
		c.Add(3, []byte("three"))

		// 1 is the oldest entry and got evicted
		_, ok := c.Get(1)
		assert.False(t, ok)

		v, ok := c.Get(3)
		require.True(t, ok)
		assert.Equal(t, []byte("three"), v)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("oversize values should be skipped", func(t *testing.T) {
		t.Parallel()

		c, err := cache.NewLRU[string](10, 4)
		require.NoError(t, err)

		c.Add("big", []byte("way too big"))
		_, ok := c.Get("big")
		assert.False(t, ok)

		c.Add("ok", []byte("fits"))
		_, ok = c.Get("ok")
		assert.True(t, ok)
	})

	t.Run("Clear should purge everything", func(t *testing.T) {
		t.Parallel()

		c, err := cache.NewLRU[int](10, 0)
		require.NoError(t, err)

		c.Add(1, []byte("a"))
		c.Add(2, []byte("b"))
		c.Clear()
		assert.Equal(t, 0, c.Len())
	})
}
