package stage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry maps stage names to their providers. The daemon registers all
// providers at startup; the pipeline executor resolves them by the stage
// names its definitions reference.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its own name. Registering the same name
// twice is a programming error and returns an explicit failure rather than
// silently replacing the earlier provider.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("nil provider")
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("provider has empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Resolve returns the provider registered for a stage name.
func (r *Registry) Resolve(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("no provider registered for stage %q", name)
	}
	return p, nil
}

// HealthChecks runs every registered provider's health check and returns
// the results sorted by stage name.
func (r *Registry) HealthChecks(ctx context.Context) []Health {
	r.mu.RLock()
	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	r.mu.RUnlock()

	results := make([]Health, 0, len(providers))
	for _, p := range providers {
		results = append(results, p.HealthCheck(ctx))
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}
