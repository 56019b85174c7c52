package llm

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
)

const DefaultCacheSize = 10

// ModelCache keeps constructed model clients keyed by their parameters.
// When full, the least recently used entry is evicted.
type ModelCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func NewModelCache(size int) *ModelCache {
	if size <= 0 {
		size = DefaultCacheSize
	}

	return &ModelCache{cache: lru.New(size)}
}

// CacheKey joins kind with the params sorted by name, e.g.
// "llm_max_tokens=8096_model=x".
func CacheKey(kind string, params map[string]any) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	slices.Sort(names)

	parts := []string{kind}
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}

	return strings.Join(parts, "_")
}

// Load returns the cached value for key or builds it with load. The lock is
// held while load runs so that one key is never built twice.
func Load[T any](c *ModelCache, key string, load func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.cache.Get(key); ok {
		if model, ok := v.(T); ok {
			return model, nil
		}
	}

	model, err := load()
	if err != nil {
		var zero T
		return zero, err
	}

	c.cache.Add(key, model)
	return model, nil
}

func (c *ModelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

func (c *ModelCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Clear()
}
