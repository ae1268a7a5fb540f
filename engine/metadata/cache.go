package metadata

import (
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/nlapi/orchestra/engine/core"
)

const defaultCacheMaxCost = 1 << 20 // ~1MB of endpoint-list cost budget

// endpointCache is the read-mostly, write-invalidated cache of
// {projectID -> denormalized endpoint list} described in spec §4.1,
// grounded on the teacher's ristretto usage in
// engine/task2/shared/context.go. A project's worth of endpoints is cheap,
// so cost is simply the slice length plus one.
type endpointCache struct {
	mu    sync.RWMutex
	store map[core.ID][]*Endpoint
	rc    *ristretto.Cache[string, struct{}]
}

// NewEndpointCache constructs the denormalized endpoint cache used by
// NewRepository. Exposed so cmd/ can choose its size.
func NewEndpointCache(maxCost int64) *endpointCache {
	return newEndpointCache(maxCost)
}

func newEndpointCache(maxCost int64) *endpointCache {
	rc, err := ristretto.NewCache(&ristretto.Config[string, struct{}]{
		NumCounters: 10_000,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		// ristretto misconfiguration is a programmer error; fall back to an
		// unbounded map rather than failing startup.
		rc = nil
	}
	return &endpointCache{store: make(map[core.ID][]*Endpoint), rc: rc}
}

func (c *endpointCache) get(projectID core.ID) ([]*Endpoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	eps, ok := c.store[projectID]
	return eps, ok
}

func (c *endpointCache) set(projectID core.ID, endpoints []*Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[projectID] = endpoints
	if c.rc != nil {
		c.rc.Set(projectID.String(), struct{}{}, int64(len(endpoints))+1)
	}
}

// invalidate drops the cached entry for a project, forcing the next
// ListEndpoints call to re-read from Postgres.
func (c *endpointCache) invalidate(projectID core.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, projectID)
	if c.rc != nil {
		c.rc.Del(projectID.String())
	}
}
