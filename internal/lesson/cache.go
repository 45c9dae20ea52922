package lesson

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = 5 * time.Minute
)

// OptionCache holds class options read on every lesson view.
type OptionCache struct {
	lru *expirable.LRU[int, *ClassOption]
}

func NewOptionCache(size int, ttl time.Duration) *OptionCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &OptionCache{lru: expirable.NewLRU[int, *ClassOption](size, nil, ttl)}
}

func (c *OptionCache) Get(id int) (*ClassOption, bool) {
	return c.lru.Get(id)
}

func (c *OptionCache) Add(o *ClassOption) {
	c.lru.Add(o.ID, o)
}

func (c *OptionCache) Invalidate(id int) {
	c.lru.Remove(id)
}

func (c *OptionCache) Purge() {
	c.lru.Purge()
}
