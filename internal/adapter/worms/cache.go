package worms

import (
	"context"
	"strconv"
	"sync"

	"github.com/oceanbio/occurrence-screening/internal/domain"
	"github.com/oceanbio/occurrence-screening/internal/observability"
)

// CachedResolver wraps a Resolver with an in-memory LRU cache. Taxonomy
// changes slowly, so hits across requests are safe; the cache is purely a
// performance optimization, never a correctness requirement.
type CachedResolver struct {
	inner   domain.Resolver
	ids     *lruCache
	names   *lruCache
	metrics *observability.Metrics
}

// NewCachedResolver creates a cache decorator around a resolver.
func NewCachedResolver(inner domain.Resolver, maxEntries int, metrics *observability.Metrics) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		ids:     newLRUCache(maxEntries),
		names:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedResolver) NormalizeIDs(ctx context.Context, ids []int) (map[int]domain.TaxonRecord, error) {
	result := make(map[int]domain.TaxonRecord, len(ids))
	var misses []int
	for _, id := range ids {
		if v, ok := c.ids.get(strconv.Itoa(id)); ok {
			c.metrics.RegistryCache.WithLabelValues("ids", "hit").Inc()
			result[id] = v.(domain.TaxonRecord)
			continue
		}
		c.metrics.RegistryCache.WithLabelValues("ids", "miss").Inc()
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := c.inner.NormalizeIDs(ctx, misses)
	if err != nil {
		return result, err
	}
	for id, tr := range fetched {
		// Absent entries are not cached: a batch failure must stay retryable.
		c.ids.put(strconv.Itoa(id), tr)
		result[id] = tr
	}
	return result, nil
}

func (c *CachedResolver) MatchNames(ctx context.Context, names []string) (map[string]domain.TaxonMatch, error) {
	result := make(map[string]domain.TaxonMatch, len(names))
	var misses []string
	for _, name := range names {
		if v, ok := c.names.get(name); ok {
			c.metrics.RegistryCache.WithLabelValues("names", "hit").Inc()
			result[name] = v.(domain.TaxonMatch)
			continue
		}
		c.metrics.RegistryCache.WithLabelValues("names", "miss").Inc()
		misses = append(misses, name)
	}
	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := c.inner.MatchNames(ctx, misses)
	if err != nil {
		return result, err
	}
	for name, m := range fetched {
		// Unmatched names are not cached so a transient batch failure and a
		// genuine "no exact match" are indistinguishable and both retryable.
		c.names.put(name, m)
		result[name] = m
	}
	return result, nil
}

// lruCache is a simple thread-safe LRU cache.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value any
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
