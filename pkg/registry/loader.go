package registry

import (
	"context"
	"fmt"

	"github.com/DHI/gwc-datalib/pkg/catalog"
	"github.com/DHI/gwc-datalib/pkg/dataset"
)

// Catalog resolves a dataset name to its metadata. *catalog.Client
// implements it.
type Catalog interface {
	Get(ctx context.Context, name string) (catalog.Metadata, error)
}

// Loader resolves dataset names into bound adapters.
type Loader struct {
	catalog  Catalog
	registry *Registry
}

// NewLoader creates a new dataset loader.
func NewLoader(cat Catalog, registry *Registry) *Loader {
	return &Loader{catalog: cat, registry: registry}
}

// Load fetches the metadata for name and binds the matching adapter.
func (l *Loader) Load(ctx context.Context, name string) (dataset.Adapter, error) {
	meta, err := l.catalog.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return l.FromMetadata(ctx, meta)
}

// FromMetadata binds an adapter to metadata obtained elsewhere, for example
// a search result.
func (l *Loader) FromMetadata(ctx context.Context, meta catalog.Metadata) (dataset.Adapter, error) {
	adapter, err := l.registry.Create(ctx, meta)
	if err != nil {
		return nil, fmt.Errorf("loading dataset %s: %w", meta.DatasetName(), err)
	}
	return adapter, nil
}

// Registry returns the backend registry.
func (l *Loader) Registry() *Registry { return l.registry }
