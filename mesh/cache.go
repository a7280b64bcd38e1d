package mesh

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache holds data derived from a mesh's topology: geometry, edges and the
// addressing and distribution maps built by other packages. Entries belong
// to one topology generation and are dropped wholesale when the mesh moves
// on to the next.
type Cache struct {
	mu         sync.Mutex
	generation uint64
	items      map[string]any
	group      singleflight.Group
}

func newCache() *Cache {
	return &Cache{items: make(map[string]any)}
}

func (c *Cache) lookup(gen uint64, key string) (v any, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		c.items = make(map[string]any)
		c.generation = gen
	}
	v, ok = c.items[key]
	return
}

func (c *Cache) store(gen uint64, key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.items[key] = v
	}
}

// Len is the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (m *Mesh) Cache() *Cache {
	m.cacheOnce.Do(func() {
		if m.cache == nil {
			m.cache = newCache()
		}
	})
	return m.cache
}

// Demand returns the entry stored under key for the mesh's current
// generation, building it on first use. Concurrent requests for the same
// entry share one build. A failed build is not cached.
//
// Builds that communicate are collective, so every rank has to demand the
// same keys in the same order.
func Demand[T any](m *Mesh, key string, build func() (T, error)) (T, error) {
	var (
		c   = m.Cache()
		gen = m.Generation()
	)
	if v, ok := c.lookup(gen, key); ok {
		return v.(T), nil
	}
	v, err, _ := c.group.Do(fmt.Sprintf("%s@%d", key, gen), func() (any, error) {
		if v, ok := c.lookup(gen, key); ok {
			return v, nil
		}
		t, err := build()
		if err != nil {
			return nil, err
		}
		c.store(gen, key, t)
		return t, nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("building %s for generation %d: %w", key, gen, err)
	}
	return v.(T), nil
}
