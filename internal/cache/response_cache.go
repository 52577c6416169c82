package cache

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"
)

// Entry 一条缓存的响应
type Entry struct {
	Data     json.RawMessage
	StoredAt time.Time
}

// ResponseCache 带 TTL 的 LRU 响应缓存。
// 离线或网络失败时，GET 请求可以回落到这里的最近一次成功响应。
type ResponseCache struct {
	maxSize int
	ttl     time.Duration

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // 最近使用的在队首
}

type cacheItem struct {
	key   string
	entry Entry
}

// NewResponseCache 创建响应缓存。maxSize <= 0 时使用默认容量。
func NewResponseCache(maxSize int, ttl time.Duration) *ResponseCache {
	if maxSize <= 0 {
		maxSize = 128
	}
	return &ResponseCache{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get 按键读取未过期的缓存响应
func (c *ResponseCache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}

	item := elem.Value.(*cacheItem)
	if c.ttl > 0 && time.Since(item.entry.StoredAt) > c.ttl {
		// 过期条目顺手清除
		c.order.Remove(elem)
		delete(c.items, key)
		return nil, false
	}

	c.order.MoveToFront(elem)
	return item.entry.Data, true
}

// Set 写入缓存，容量满时淘汰最久未使用的条目
func (c *ResponseCache) Set(key string, data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		item := elem.Value.(*cacheItem)
		item.entry = Entry{Data: data, StoredAt: time.Now()}
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheItem{
		key:   key,
		entry: Entry{Data: data, StoredAt: time.Now()},
	})
	c.items[key] = elem

	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheItem).key)
	}
}

// Len 当前缓存条目数
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge 清空缓存
func (c *ResponseCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}
