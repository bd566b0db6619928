package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/naveego/plugin-sage/pkg/connector/core"
	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/logger"
)

// Registry manages backend registration and instantiation
type Registry struct {
	backends map[string]BackendFactory
	mu       sync.RWMutex
	logger   *zap.Logger
}

// BackendFactory connects a backend from the given options
type BackendFactory func(ctx context.Context, opts core.Options) (core.Backend, error)

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new backend registry
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]BackendFactory),
		logger:   logger.Get().With(zap.String("component", "backend_registry")),
	}
}

// Register registers a backend factory
func (r *Registry) Register(kind string, factory BackendFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[kind]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("backend %s already registered", kind))
	}

	r.backends[kind] = factory
	r.logger.Debug("backend registered", zap.String("kind", kind))
	return nil
}

// Create connects a backend instance. Factory failures keep their own
// error type so connection errors stay connection errors.
func (r *Registry) Create(ctx context.Context, kind string, opts core.Options) (core.Backend, error) {
	r.mu.RLock()
	factory, exists := r.backends[kind]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("backend %s not found", kind))
	}

	return factory(ctx, opts)
}

// List returns the registered backend kinds, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.backends))
	for kind := range r.backends {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Has checks if a backend is registered
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.backends[kind]
	return exists
}

// Register registers a backend in the global registry
func Register(kind string, factory BackendFactory) error {
	return globalRegistry.Register(kind, factory)
}

// Create connects a backend from the global registry
func Create(ctx context.Context, kind string, opts core.Options) (core.Backend, error) {
	return globalRegistry.Create(ctx, kind, opts)
}

// List returns the backends in the global registry
func List() []string {
	return globalRegistry.List()
}
