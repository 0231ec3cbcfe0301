package ai

import (
	"sort"
	"strings"
	"sync"
)

// Factory builds an adapter for a model id.
type Factory func(modelID string) (Adapter, error)

// Registry maps provider names to adapter factories. There is no package
// level registry; hosts build their own and pass it around.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name. Names are case-insensitive.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = factory
}

// Adapter resolves a "provider:model" reference.
func (r *Registry) Adapter(ref string) (Adapter, error) {
	provider, model, err := ParseModelRef(ref)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	factory, ok := r.factories[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, NewError(KindNoSuchModel, "no provider registered as %q", provider)
	}
	return factory(model)
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseModelRef splits "provider:model". The model part may itself contain
// colons (for example "openai:ft:gpt-4o:org").
func ParseModelRef(ref string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(ref, ":")
	if !ok || provider == "" || model == "" {
		return "", "", NewError(KindNoSuchModel, "model reference %q must look like provider:model", ref)
	}
	return strings.ToLower(provider), model, nil
}
