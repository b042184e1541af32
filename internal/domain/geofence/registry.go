package geofence

import (
	"sync"
	"sync/atomic"
)

// Registry holds the polygon in effect for each fence name.
// Readers get an immutable snapshot; a Store swaps it in one step.
type Registry struct {
	mu    sync.Mutex // serialises writers
	fence atomic.Pointer[map[string]Polygon]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := map[string]Polygon{}
	r.fence.Store(&empty)
	return r
}

// Load returns the polygon stored under name, or the zero Polygon (no fence).
func (r *Registry) Load(name string) Polygon {
	return (*r.fence.Load())[name]
}

// Store installs p under name.
func (r *Registry) Store(name string, p Polygon) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.fence.Load()
	next := make(map[string]Polygon, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[name] = p
	r.fence.Store(&next)
}

// Delete removes the polygon stored under name.
func (r *Registry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.fence.Load()
	if _, ok := cur[name]; !ok {
		return
	}
	next := make(map[string]Polygon, len(cur))
	for k, v := range cur {
		if k != name {
			next[k] = v
		}
	}
	r.fence.Store(&next)
}

// Names returns the names of all stored polygons.
func (r *Registry) Names() []string {
	cur := *r.fence.Load()
	out := make([]string, 0, len(cur))
	for k := range cur {
		out = append(out, k)
	}
	return out
}
