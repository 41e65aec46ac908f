package transport

import (
	"sort"
	"sync"
)

// Registry tracks the live subs and sources by sid.
type Registry struct {
	mu      sync.RWMutex
	subs    map[string]Conn
	sources map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{
		subs:    make(map[string]Conn),
		sources: make(map[string]Conn),
	}
}

func (r *Registry) set(kind Kind) map[string]Conn {
	if kind == KindSource {
		return r.sources
	}
	return r.subs
}

func (r *Registry) Add(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set(c.Kind())[c.ID()] = c
}

// Remove unregisters the connection with the given sid. It reports false
// when it was not registered.
func (r *Registry) Remove(kind Kind, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.set(kind)
	if _, ok := conns[id]; !ok {
		return false
	}
	delete(conns, id)
	return true
}

func (r *Registry) Get(kind Kind, id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.set(kind)[id]
	return c, ok
}

func (r *Registry) list(kind Kind) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.set(kind)
	out := make([]Conn, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Registry) Subs() []Conn {
	return r.list(KindSub)
}

func (r *Registry) Sources() []Conn {
	return r.list(KindSource)
}

// Polling returns every registered polling connection of either kind.
func (r *Registry) Polling() []*PollingConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PollingConn, 0)
	for _, conns := range []map[string]Conn{r.subs, r.sources} {
		for _, c := range conns {
			if pc, ok := c.(*PollingConn); ok {
				out = append(out, pc)
			}
		}
	}
	return out
}

func (r *Registry) Len() (subs, sources int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs), len(r.sources)
}
