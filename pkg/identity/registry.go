package identity

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// Registry maps provider names to factories. It is built once at startup and
// handed to whoever needs to construct providers.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *observability.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *observability.Logger) *Registry {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger.WithField("component", "identity_registry"),
	}
}

// Register adds or replaces the factory for name
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		r.logger.WithField("provider", name).Warn("Replacing registered auth provider")
	}
	r.factories[name] = factory
	r.logger.WithField("provider", name).Info("Registered auth provider")
}

// Create builds the named provider. Unknown names yield an Unconfigured
// provider whose every operation fails, never an error.
func (r *Registry) Create(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Name]
	r.mu.RUnlock()

	if !ok {
		r.logger.WithFields(map[string]interface{}{
			"provider":  cfg.Name,
			"available": r.Names(),
		}).Warn("Unknown auth provider requested, using unconfigured provider")
		return &Unconfigured{Name: cfg.Name}, nil
	}

	provider, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", cfg.Name, err)
	}
	return provider, nil
}

// Names returns the registered provider names in sorted order
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

// IsRegistered reports whether name has a factory
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}
