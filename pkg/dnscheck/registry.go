package dnscheck

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory creates a Validator from string settings.
type Factory func(settings map[string]string) (Validator, error)

// Registry maps validator type names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// RegisterFactory registers a factory for typeName, replacing any existing one.
func (r *Registry) RegisterFactory(typeName string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = factory
}

// Create builds a validator of the given type.
func (r *Registry) Create(typeName string, settings map[string]string) (Validator, error) {
	r.mu.RLock()
	factory, ok := r.factories[typeName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown dns validator type: %q (known types: %s)", typeName, strings.Join(r.Types(), ", "))
	}

	v, err := factory(settings)
	if err != nil {
		return nil, fmt.Errorf("creating %s validator: %w", typeName, err)
	}
	return v, nil
}

// Build creates validators for each type in order and wraps them in a Chain.
func (r *Registry) Build(typeNames []string, settings map[string]string, opts ...ChainOption) (*Chain, error) {
	validators := make([]Validator, 0, len(typeNames))
	for _, name := range typeNames {
		v, err := r.Create(name, settings)
		if err != nil {
			return nil, err
		}
		validators = append(validators, v)
	}
	return NewChain(validators, opts...), nil
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for name := range r.factories {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
