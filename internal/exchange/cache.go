package exchange

import (
	"sync"

	"github.com/yanun0323/errors"
)

var ErrUnknownExchange = errors.New("unknown exchange")

// Factory builds an exchange client by name.
type Factory func(name string) (Exchange, error)

// Cache memoizes exchange clients by name to avoid reconstruction cost.
// Clear forces fresh instances after a config change; it never touches state
// already persisted to disk.
type Cache struct {
	factory Factory

	mu      sync.Mutex
	clients map[string]Exchange
}

// NewCache creates an empty cache backed by a factory.
func NewCache(factory Factory) *Cache {
	return &Cache{
		factory: factory,
		clients: make(map[string]Exchange),
	}
}

// Get returns the memoized client for a name, building it on first use.
// Concurrent callers for the same name block on, rather than duplicate, the
// first construction.
func (c *Cache) Get(name string) (Exchange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[name]; ok {
		return client, nil
	}
	client, err := c.factory(name)
	if err != nil {
		return nil, err
	}
	c.clients[name] = client
	return client, nil
}

// Clear drops every memoized client.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients = make(map[string]Exchange)
}
