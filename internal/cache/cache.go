package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sync"

	"github.com/23skdu/longbow-hls/internal/pipeline"
)

// Key identifies a compile request by backend and snapshot content.
func Key(backend string, snapshot []byte) string {
	sum := sha256.Sum256(snapshot)
	return backend + ":" + hex.EncodeToString(sum[:])
}

// ResultCache is an in-memory cache of compile results. Stored and returned
// results are copies, so callers may modify them freely.
type ResultCache struct {
	data map[string]*pipeline.Result
	mu   sync.RWMutex
}

func NewResultCache() *ResultCache {
	return &ResultCache{
		data: make(map[string]*pipeline.Result),
	}
}

func (c *ResultCache) Get(key string) (*pipeline.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if r, ok := c.data[key]; ok {
		cacheHits.Inc()
		return clone(r), true
	}
	cacheMisses.Inc()
	return nil, false
}

func (c *ResultCache) Put(key string, r *pipeline.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = clone(r)
}

func (c *ResultCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func clone(r *pipeline.Result) *pipeline.Result {
	out := *r
	out.Includes = slices.Clone(r.Includes)
	out.Artifacts = make([]pipeline.Artifact, len(r.Artifacts))
	for i, a := range r.Artifacts {
		a.Includes = slices.Clone(a.Includes)
		out.Artifacts[i] = a
	}
	return &out
}
