package embedding

import "sync"

// DefaultCacheSize bounds the embeddings an Extractor keeps.
const DefaultCacheSize = 64

// Cache maps absolute reference paths to resolved embeddings. It is safe for
// concurrent use. Once full, the oldest entry is evicted first.
type Cache struct {
	mu      sync.RWMutex
	limit   int
	entries map[string]*Embedding
	order   []string
}

// NewCache returns a cache holding at most limit entries. A limit of 0 or
// less selects DefaultCacheSize.
func NewCache(limit int) *Cache {
	if limit <= 0 {
		limit = DefaultCacheSize
	}
	return &Cache{limit: limit, entries: make(map[string]*Embedding)}
}

func (c *Cache) Get(path string) (*Embedding, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[path]
	return e, ok
}

// Put stores e unless path is already present and returns the stored entry.
func (c *Cache) Put(path string, e *Embedding) *Embedding {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[path]; ok {
		return existing
	}

	for len(c.order) >= c.limit {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	c.entries[path] = e
	c.order = append(c.order, path)
	return e
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
