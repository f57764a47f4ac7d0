package runner

import (
	"sync"

	"main/internal/engine"
)

// EngineCache memoizes engines by run key so repeated backtests over the same
// frame reuse the constructed instance.
type EngineCache struct {
	mu      sync.Mutex
	engines map[string]*engine.Engine
}

// NewEngineCache creates an empty cache.
func NewEngineCache() *EngineCache {
	return &EngineCache{engines: make(map[string]*engine.Engine)}
}

// Get returns the cached engine for key, building it on first use.
func (c *EngineCache) Get(key string, build func() (*engine.Engine, error)) (*engine.Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if eng, ok := c.engines[key]; ok {
		return eng, nil
	}
	eng, err := build()
	if err != nil {
		return nil, err
	}
	c.engines[key] = eng
	return eng, nil
}

// Clear drops every cached engine.
func (c *EngineCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engines = make(map[string]*engine.Engine)
}
