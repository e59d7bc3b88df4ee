package snapshot

import (
	"sort"
	"strings"
	"sync"

	"tickerstream.com/internal/quotes/datasource/model"
)

// Cache symbol -> 最新 ticker，后写覆盖先写；运行期间不删除
type Cache struct {
	mu sync.RWMutex
	m  map[string]model.Ticker
}

func New() *Cache {
	return &Cache{m: make(map[string]model.Ticker, 256)}
}

func (c *Cache) Put(t model.Ticker) {
	c.mu.Lock()
	c.m[t.Symbol] = t
	c.mu.Unlock()
}

func (c *Cache) PutAll(ts []model.Ticker) {
	if len(ts) == 0 {
		return
	}
	c.mu.Lock()
	for _, t := range ts {
		c.m[t.Symbol] = t
	}
	c.mu.Unlock()
}

// Get 先精确匹配，再按交易所的大写形式查一次
func (c *Cache) Get(symbol string) (model.Ticker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.m[symbol]; ok {
		return t, true
	}
	t, ok := c.m[strings.ToUpper(symbol)]
	return t, ok
}

// List 返回按 symbol 字典序排好的拷贝
func (c *Cache) List() []model.Ticker {
	c.mu.RLock()
	out := make([]model.Ticker, 0, len(c.m))
	for _, t := range c.m {
		out = append(out, t)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
