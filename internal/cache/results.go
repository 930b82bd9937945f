package cache

import (
	"sync"

	"github.com/dennisdiepolder/monti/callreport/internal/types"
)

// DefaultResultCapacity is used when a non-positive capacity is given
const DefaultResultCapacity = 20

// ResultCache keeps the most recent upload results in memory, evicting the
// oldest once capacity is reached
type ResultCache struct {
	capacity int
	order    []string // upload IDs, oldest first
	results  map[string]*types.UploadResult
	mu       sync.RWMutex
}

// NewResultCache creates a new result cache
func NewResultCache(capacity int) *ResultCache {
	if capacity <= 0 {
		capacity = DefaultResultCapacity
	}
	return &ResultCache{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		results:  make(map[string]*types.UploadResult, capacity),
	}
}

// Put stores a result under its upload ID
func (c *ResultCache) Put(result *types.UploadResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.results[result.UploadID]; exists {
		c.results[result.UploadID] = result
		return
	}

	if len(c.order) == c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.results, oldest)
	}
	c.order = append(c.order, result.UploadID)
	c.results[result.UploadID] = result
}

// Get returns the cached result for uploadID
func (c *ResultCache) Get(uploadID string) (*types.UploadResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[uploadID]
	return r, ok
}

// Recent returns cached results, newest first
func (c *ResultCache) Recent() []*types.UploadResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*types.UploadResult, 0, len(c.order))
	for i := len(c.order) - 1; i >= 0; i-- {
		out = append(out, c.results[c.order[i]])
	}
	return out
}

// Clear drops every cached result
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = make([]string, 0, c.capacity)
	c.results = make(map[string]*types.UploadResult, c.capacity)
}

// Size returns the current number of cached results
func (c *ResultCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
