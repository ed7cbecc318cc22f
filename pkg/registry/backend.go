// Package registry maps the catalog's storage_service discriminator to the
// adapter that serves datasets of that kind.
package registry

import (
	"context"

	"github.com/DHI/gwc-datalib/pkg/catalog"
	"github.com/DHI/gwc-datalib/pkg/dataset"
)

// BackendFactory binds an adapter to one dataset's metadata. Factories may
// perform network calls (the AzureBlob adapter lists its files eagerly).
type BackendFactory func(ctx context.Context, meta catalog.Metadata) (dataset.Adapter, error)
