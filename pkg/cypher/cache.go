package cypher

import (
	"container/list"
	"encoding/json"
	"sync"

	"github.com/biplanedb/biplane/pkg/plan"
)

// Cache memoizes compiled queries keyed by a plan fingerprint, so a
// query built repeatedly (the common case for parameterized lookups in
// hot paths) compiles once.
//
// The fingerprint is the plan's canonical JSON encoding: map keys
// marshal sorted, so structurally identical plans share an entry no
// matter how they were built. Cached queries are shared pointers; treat
// them as immutable.
//
// Example:
//
//	compiler := cypher.NewCached(256)
//
//	q1, _ := compiler.Compile(p) // compiles
//	q2, _ := compiler.Compile(p) // cache hit, q2 == q1
//
//	hits, misses, size := compiler.Cache().Stats()
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	lru     *list.List
	lruMap  map[string]*list.Element
	maxSize int
	hits    int64
	misses  int64
}

type cacheEntry struct {
	key   string
	query *CompiledQuery
}

// NewCache creates a compile cache holding up to maxSize entries,
// evicting the least recently used entry past capacity.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		lru:     list.New(),
		lruMap:  make(map[string]*list.Element),
		maxSize: maxSize,
	}
}

// Get retrieves the compiled form of a plan.
func (c *Cache) Get(p *plan.Plan) (*CompiledQuery, bool) {
	key, ok := fingerprint(p)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		c.misses++
		return nil, false
	}
	if elem, ok := c.lruMap[key]; ok {
		c.lru.MoveToFront(elem)
	}
	c.hits++
	return entry.query, true
}

// Put stores a compiled plan.
func (c *Cache) Put(p *plan.Plan, q *CompiledQuery) {
	key, ok := fingerprint(p)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		return
	}
	for c.lru.Len() >= c.maxSize {
		elem := c.lru.Back()
		if elem == nil {
			break
		}
		old := elem.Value.(*cacheEntry)
		delete(c.entries, old.key)
		delete(c.lruMap, old.key)
		c.lru.Remove(elem)
	}

	entry := &cacheEntry{key: key, query: q}
	c.entries[key] = entry
	c.lruMap[key] = c.lru.PushFront(entry)
}

// Stats returns hit/miss counters and the current entry count.
func (c *Cache) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.entries)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.lru.Init()
	c.lruMap = make(map[string]*list.Element)
}

// fingerprint derives the cache key from a plan. Plans holding values
// JSON cannot encode (a caller stuffed something exotic into a
// condition) report not-ok and bypass the cache.
func fingerprint(p *plan.Plan) (string, bool) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", false
	}
	return string(b), true
}
