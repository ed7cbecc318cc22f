package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/DHI/gwc-datalib/pkg/catalog"
	"github.com/DHI/gwc-datalib/pkg/dataset"
)

// Registry manages backend factories by storage_service kind.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]BackendFactory),
	}
}

// RegisterFactory registers a backend factory for a kind, replacing any
// previous one.
func (r *Registry) RegisterFactory(kind string, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Supports reports whether kind has a factory.
func (r *Registry) Supports(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Create builds the adapter for meta. An unknown or missing storage_service
// yields *dataset.UnsupportedBackendError and no factory runs.
func (r *Registry) Create(ctx context.Context, meta catalog.Metadata) (dataset.Adapter, error) {
	kind := meta.StorageService()

	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, &dataset.UnsupportedBackendError{Kind: kind}
	}

	adapter, err := factory(ctx, meta)
	if err != nil {
		return nil, fmt.Errorf("creating %s adapter for %s: %w", kind, meta.DatasetName(), err)
	}
	slog.Debug("created dataset adapter", "kind", kind, "dataset", meta.DatasetName())
	return adapter, nil
}
