package pushi

import "sync"

// DefaultRegistry is used by New when the Config names no registry.
var DefaultRegistry = NewRegistry()

// Registry maps app keys to the live Connection whose transport new handles
// for that key share.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Lookup returns the Connection registered for appKey.
func (r *Registry) Lookup(appKey string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[appKey]
	return c, ok
}

// Store registers c under appKey, replacing any previous entry.
func (r *Registry) Store(appKey string, c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[appKey] = c
}

// Delete removes the entry for appKey.
func (r *Registry) Delete(appKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, appKey)
}

// move re-registers c under newKey. If oldKey still points at c it is
// handed to successor, or dropped when successor is nil.
func (r *Registry) move(oldKey, newKey string, c, successor *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[oldKey] == c {
		if successor != nil {
			r.conns[oldKey] = successor
		} else {
			delete(r.conns, oldKey)
		}
	}
	r.conns[newKey] = c
}

// Clear removes every entry. Existing connections keep running.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns = make(map[string]*Connection)
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// acquire returns the registered base for appKey, or registers the result
// of create. Both happen under the registry lock.
func (r *Registry) acquire(appKey string, create func() *Connection) (c *Connection, existing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if base, ok := r.conns[appKey]; ok {
		return base, true
	}
	c = create()
	r.conns[appKey] = c
	return c, false
}
