// Package registry maps carrier ids to adapter factories. Built-in adapters
// register from their package init; generic carriers are registered at startup
// from definition files. Adding a carrier never touches the engine.
package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/logger"
)

// Factory creates an adapter from the shared dependencies.
type Factory func(deps base.Deps) (core.Adapter, error)

// Registry manages adapter registration and instantiation
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
	logger    *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger.Get().With(zap.String("component", "carrier_registry")),
	}
}

// Register registers an adapter factory under carrierID
func (r *Registry) Register(carrierID string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[carrierID]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "carrier %s already registered", carrierID)
	}

	r.factories[carrierID] = factory
	r.logger.Debug("carrier adapter registered", zap.String("carrier_id", carrierID))
	return nil
}

// Has reports whether carrierID is registered
func (r *Registry) Has(carrierID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[carrierID]
	return exists
}

// List returns the registered carrier ids, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Build instantiates every registered adapter with deps, keyed by carrier id.
// The result is the static carrier map the engine dispatches through.
func (r *Registry) Build(deps base.Deps) (map[string]core.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapters := make(map[string]core.Adapter, len(r.factories))
	for id, factory := range r.factories {
		adapter, err := factory(deps)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create carrier adapter "+id)
		}
		if got := adapter.Descriptor().CarrierID; got != id {
			return nil, errors.Newf(errors.ErrorTypeConfig, "adapter registered as %s reports carrier id %s", id, got)
		}
		adapters[id] = adapter
	}
	return adapters, nil
}

// Clear removes all registrations (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]Factory)
}

// Register registers a factory in the global registry
func Register(carrierID string, factory Factory) error {
	return globalRegistry.Register(carrierID, factory)
}

// MustRegister registers a factory in the global registry and panics on
// duplicates. Intended for package init functions.
func MustRegister(carrierID string, factory Factory) {
	if err := globalRegistry.Register(carrierID, factory); err != nil {
		panic(err)
	}
}

// List returns carriers registered in the global registry
func List() []string {
	return globalRegistry.List()
}

// Has checks the global registry
func Has(carrierID string) bool {
	return globalRegistry.Has(carrierID)
}

// Build instantiates every adapter in the global registry
func Build(deps base.Deps) (map[string]core.Adapter, error) {
	return globalRegistry.Build(deps)
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
