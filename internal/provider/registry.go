package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Middleware decorates the Provider serving spec.
type Middleware func(spec ModelSpec, next Provider) Provider

// Registry maps code names to their endpoints.
// Thread-safe for concurrent access during queries.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	opts      []EndpointOption
}

// NewRegistry creates an empty registry. opts apply to every endpoint it
// creates.
func NewRegistry(opts ...EndpointOption) *Registry {
	return &Registry{
		endpoints: make(map[string]*Endpoint),
		opts:      opts,
	}
}

// Register associates spec with an explicit provider, replacing any endpoint
// registered under the same code name. Safe to call concurrently.
func (r *Registry) Register(spec ModelSpec, p Provider, mws ...Middleware) {
	for _, mw := range mws {
		p = mw(spec, p)
	}
	e := NewEndpoint(spec, p, r.opts...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[spec.CodeName] = e
}

// RegisterSpec builds the provider for spec's family and registers it.
func (r *Registry) RegisterSpec(spec ModelSpec, mws ...Middleware) error {
	p, err := New(spec)
	if err != nil {
		return fmt.Errorf("model %s: %w", spec, err)
	}
	r.Register(spec, p, mws...)
	return nil
}

// Get retrieves the endpoint registered under codeName.
// Returns an error if the code name is not registered.
func (r *Registry) Get(codeName string) (*Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.endpoints[codeName]
	if !ok {
		return nil, fmt.Errorf("unknown code name: %s", codeName)
	}
	return e, nil
}

// CodeNames returns all registered code names, sorted.
func (r *Registry) CodeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for n := range r.endpoints {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
