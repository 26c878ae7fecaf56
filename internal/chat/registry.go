package chat

import "sync"

// Registry owns one Store per goal id.
type Registry struct {
	opts []Option

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry returns a registry whose stores are created with opts.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{opts: opts, stores: make(map[string]*Store)}
}

// Get returns the conversation of goalID, creating it on first use.
func (r *Registry) Get(goalID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[goalID]; ok {
		return s
	}
	s := New(goalID, r.opts...)
	r.stores[goalID] = s
	return s
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// CloseAll closes and forgets every conversation.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]*Store)
	r.mu.Unlock()
	for _, s := range stores {
		s.Close()
	}
}
