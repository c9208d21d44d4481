package store

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mgomes/vibectx/vibectx"
)

const DefaultOriginCacheSize = 256

// OriginCache is a bounded LRU of compiled origin units. It satisfies
// vibectx.OriginCache.
type OriginCache struct {
	units *lru.Cache[string, *vibectx.OriginUnit]
}

func NewOriginCache(size int) (*OriginCache, error) {
	if size <= 0 {
		size = DefaultOriginCacheSize
	}
	units, err := lru.New[string, *vibectx.OriginUnit](size)
	if err != nil {
		return nil, err
	}
	return &OriginCache{units: units}, nil
}

func (c *OriginCache) Get(name string) (*vibectx.OriginUnit, bool) {
	return c.units.Get(name)
}

func (c *OriginCache) Add(name string, unit *vibectx.OriginUnit) {
	c.units.Add(name, unit)
}

func (c *OriginCache) Remove(name string) {
	c.units.Remove(name)
}

func (c *OriginCache) Len() int { return c.units.Len() }

// Purge drops every cached unit.
func (c *OriginCache) Purge() { c.units.Purge() }
