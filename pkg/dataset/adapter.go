// Package dataset defines the storage backend adapter contract and the
// helpers shared by every backend: file selection, the per-file access
// cache, and table/array materialization.
package dataset

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/DHI/gwc-datalib/pkg/catalog"
	"github.com/DHI/gwc-datalib/pkg/raster"
)

// Adapter is a dataset bound to one storage backend.
type Adapter interface {
	// Kind returns the storage_service discriminator the adapter serves.
	Kind() string

	// Metadata returns the catalog document the adapter was built from.
	Metadata() catalog.Metadata

	// ListFiles returns the dataset files in listing order. The listing is
	// fetched once per adapter.
	ListFiles(ctx context.Context) ([]File, error)

	// DownloadLinks returns a direct locator for fileName, or for every file
	// when fileName is empty. No bytes are downloaded.
	DownloadLinks(ctx context.Context, fileName string) ([]DownloadLink, error)
}

// TableReader is implemented by adapters that can materialize tabular files.
type TableReader interface {
	// ToTable reads fileName, or every tabular file concatenated row-wise in
	// listing order when fileName is empty. The caller releases the table.
	ToTable(ctx context.Context, fileName string) (arrow.Table, error)
}

// ArrayReader is implemented by adapters that can materialize raster files.
type ArrayReader interface {
	// ToArray reads fileName, or every raster file in listing order when
	// fileName is empty.
	ToArray(ctx context.Context, fileName string) ([]*raster.Raster, error)
}

// Downloader is implemented by adapters that can fetch raw file bytes.
type Downloader interface {
	Download(ctx context.Context, file File) ([]byte, error)
}

// ToTable materializes a as a table, or fails with ErrNotSupported when the
// backend has no tabular capability.
func ToTable(ctx context.Context, a Adapter, fileName string) (arrow.Table, error) {
	tr, ok := a.(TableReader)
	if !ok {
		return nil, fmt.Errorf("%w: %s backend cannot produce tables", ErrNotSupported, a.Kind())
	}
	return tr.ToTable(ctx, fileName)
}

// ToArray materializes a as rasters, or fails with ErrNotSupported when the
// backend has no array capability.
func ToArray(ctx context.Context, a Adapter, fileName string) ([]*raster.Raster, error) {
	ar, ok := a.(ArrayReader)
	if !ok {
		return nil, fmt.Errorf("%w: %s backend cannot produce arrays", ErrNotSupported, a.Kind())
	}
	return ar.ToArray(ctx, fileName)
}
