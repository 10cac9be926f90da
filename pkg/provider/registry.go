// Package provider holds one transport.Provider per configured backend
// and resolves a model string — a literal model ID or an alias like
// "opus" — to the provider that should handle it. Grounded on the
// teacher's pkg/backend/registry.go (name -> backend map, Route) and
// pkg/router/router.go (pattern-based matching, user overrides), merged
// into a single package since this runtime has one Provider interface
// (agentcore/pkg/transport) rather than the teacher's separate
// backend/harness split.
package provider

import (
	"context"
	"fmt"
	"sync"

	"agentcore/pkg/transport"
)

// Registry holds the configured providers and routes model strings to
// them.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]transport.Provider
	models    map[string][]transport.ModelInfo // cached ListModels results, keyed by provider name
	router    *Router
}

// NewRegistry builds an empty registry. Call Register for each
// configured backend, then SetRouter once routing rules are known.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]transport.Provider),
		models:    make(map[string][]transport.ModelInfo),
	}
}

// Register adds a provider under name (e.g. "anthropic", "openai").
func (r *Registry) Register(name string, p transport.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (transport.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// SetRouter attaches the routing rules used by Route.
func (r *Registry) SetRouter(router *Router) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.router = router
}

// Route expands model's alias (if any) and returns the provider
// responsible for the expanded model string, along with that string.
func (r *Registry) Route(model string) (transport.Provider, string, error) {
	r.mu.RLock()
	router := r.router
	r.mu.RUnlock()

	if router == nil {
		return nil, "", fmt.Errorf("provider: no router configured")
	}

	expanded := router.ExpandAlias(model)
	name := router.ProviderFor(expanded)
	if name == "" {
		return nil, "", fmt.Errorf("provider: no provider matches model %q", model)
	}

	p, ok := r.Get(name)
	if !ok {
		return nil, "", fmt.Errorf("provider: %q routed to unregistered provider %q", model, name)
	}
	return p, expanded, nil
}

// List returns the names of all registered providers.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// All returns a snapshot of every registered provider keyed by name.
func (r *Registry) All() map[string]transport.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]transport.Provider, len(r.providers))
	for k, v := range r.providers {
		out[k] = v
	}
	return out
}

// ModelInfo looks up the effective ModelInfo for modelID across every
// registered provider's cached model list, refreshing a provider's cache
// on first use. Returns ok=false when no provider's listing knows the
// model, in which case callers fall back to
// session.DefaultAutoCompactTokenLimit per SPEC_FULL.md §3.
func (r *Registry) ModelInfo(ctx context.Context, modelID string) (transport.ModelInfo, bool, error) {
	r.mu.RLock()
	providers := make(map[string]transport.Provider, len(r.providers))
	for k, v := range r.providers {
		providers[k] = v
	}
	r.mu.RUnlock()

	for name, p := range providers {
		models, err := r.cachedModels(ctx, name, p)
		if err != nil {
			continue
		}
		for _, m := range models {
			if m.ID == modelID {
				return m, true, nil
			}
		}
	}
	return transport.ModelInfo{}, false, nil
}

// cachedModels returns name's cached ListModels result, populating the
// cache on first call.
func (r *Registry) cachedModels(ctx context.Context, name string, p transport.Provider) ([]transport.ModelInfo, error) {
	r.mu.RLock()
	cached, ok := r.models[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	models, err := p.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.models[name] = models
	r.mu.Unlock()
	return models, nil
}

// InvalidateModelCache clears the cached ListModels result for name (or
// every provider if name is empty), forcing the next ModelInfo/alias
// resolution to re-query.
func (r *Registry) InvalidateModelCache(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		r.models = make(map[string][]transport.ModelInfo)
		return
	}
	delete(r.models, name)
}
