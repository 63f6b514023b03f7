// Package cache keeps recent query results. Posting stores never change
// once published, so entries only leave through TTL expiry or eviction.
package cache

import (
	"container/list"
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tagindex/internal/domain"
	"tagindex/internal/port"
)

type QueryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

type cacheEntry struct {
	key       string
	posts     []uint32
	counts    map[uint32]int
	timestamp time.Time
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*list.Element, maxSize),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Key normalises a tag list so that order and repetition do not matter.
func Key(tagIDs []uint32) string {
	ids := slices.Clone(tagIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}

// Get returns the cached result for tagIDs, with tag cardinalities listed
// in tagIDs' first-appearance order.
func (c *QueryCache) Get(tagIDs []uint32) (*domain.QueryResult, bool) {
	key := Key(tagIDs)

	c.mu.Lock()
	el, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.timestamp) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	c.order.MoveToFront(el)
	c.mu.Unlock()
	c.hits.Add(1)

	res := &domain.QueryResult{Posts: entry.posts}
	seen := make(map[uint32]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		res.Tags = append(res.Tags, domain.TagCount{ID: id, Count: entry.counts[id]})
	}
	return res, true
}

func (c *QueryCache) Put(tagIDs []uint32, result *domain.QueryResult) {
	entry := &cacheEntry{
		key:       Key(tagIDs),
		posts:     result.Posts,
		counts:    make(map[uint32]int, len(result.Tags)),
		timestamp: c.now(),
	}
	for _, tc := range result.Tags {
		entry.counts[tc.ID] = tc.Count
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[entry.key]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.maxSize {
		c.evictOldest()
	}
	c.entries[entry.key] = c.order.PushFront(entry)
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *QueryCache) Hits() uint64   { return c.hits.Load() }
func (c *QueryCache) Misses() uint64 { return c.misses.Load() }

func (c *QueryCache) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).key)
}

// CachedQuerier answers repeated queries from a QueryCache. Failed queries
// are not cached.
type CachedQuerier struct {
	querier port.Querier
	cache   *QueryCache
}

func NewCachedQuerier(querier port.Querier, cache *QueryCache) *CachedQuerier {
	return &CachedQuerier{
		querier: querier,
		cache:   cache,
	}
}

func (q *CachedQuerier) Query(ctx context.Context, tagIDs []uint32) (*domain.QueryResult, error) {
	start := time.Now()
	if res, hit := q.cache.Get(tagIDs); hit {
		res.Took = time.Since(start)
		return res, nil
	}

	res, err := q.querier.Query(ctx, tagIDs)
	if err != nil {
		return nil, err
	}
	q.cache.Put(tagIDs, res)
	return res, nil
}

func (q *CachedQuerier) Cache() *QueryCache {
	return q.cache
}
