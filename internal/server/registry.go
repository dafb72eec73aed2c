package server

import (
	"sync"
)

// ClientRegistry maps connection identity to its Client. All operations are
// safe for concurrent callers; a concurrent Get never observes a
// half-written entry.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
	}
}

// Insert adds or silently overwrites the entry for id. Identities are
// generated fresh per connection, so a collision is not expected but is not
// rejected.
func (cr *ClientRegistry) Insert(id string, c *Client) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	cr.clients[id] = c
}

func (cr *ClientRegistry) Get(id string) (*Client, bool) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	c, ok := cr.clients[id]
	return c, ok
}

// Remove deletes the entry for id. Removing a missing identity is a no-op.
func (cr *ClientRegistry) Remove(id string) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	delete(cr.clients, id)
}

func (cr *ClientRegistry) Len() int {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	return len(cr.clients)
}

// Each calls fn for every registered client over a snapshot of the
// registry, so fn may mutate the registry.
func (cr *ClientRegistry) Each(fn func(c *Client)) {
	cr.mu.RLock()
	snapshot := make([]*Client, 0, len(cr.clients))
	for _, c := range cr.clients {
		snapshot = append(snapshot, c)
	}
	cr.mu.RUnlock()

	for _, c := range snapshot {
		fn(c)
	}
}
