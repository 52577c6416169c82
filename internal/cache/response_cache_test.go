package cache

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseCacheSetGet(t *testing.T) {
	c := NewResponseCache(10, time.Minute)

	data := json.RawMessage(`{"id":"cp-1"}`)
	c.Set("GET /chargepoints/cp-1", data)

	got, ok := c.Get("GET /chargepoints/cp-1")
	require.True(t, ok)
	assert.JSONEq(t, string(data), string(got))

	_, ok = c.Get("GET /chargepoints/cp-2")
	assert.False(t, ok)
}

func TestResponseCacheTTLExpiry(t *testing.T) {
	c := NewResponseCache(10, 10*time.Millisecond)

	c.Set("key", json.RawMessage(`{}`))
	_, ok := c.Get("key")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = c.Get("key")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestResponseCacheEviction(t *testing.T) {
	c := NewResponseCache(3, time.Minute)

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("key-%d", i), json.RawMessage(`{}`))
	}

	// 访问 key-0 使其成为最近使用
	_, ok := c.Get("key-0")
	require.True(t, ok)

	// 淘汰最久未使用的 key-1
	c.Set("key-3", json.RawMessage(`{}`))

	_, ok = c.Get("key-1")
	assert.False(t, ok)
	_, ok = c.Get("key-0")
	assert.True(t, ok)
	assert.Equal(t, 3, c.Len())
}

func TestResponseCacheUpdateExisting(t *testing.T) {
	c := NewResponseCache(10, time.Minute)

	c.Set("key", json.RawMessage(`{"v":1}`))
	c.Set("key", json.RawMessage(`{"v":2}`))

	got, ok := c.Get("key")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(got))
	assert.Equal(t, 1, c.Len())
}

func TestResponseCachePurge(t *testing.T) {
	c := NewResponseCache(10, time.Minute)
	c.Set("a", json.RawMessage(`{}`))
	c.Set("b", json.RawMessage(`{}`))

	c.Purge()

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}
