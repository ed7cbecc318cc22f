package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/DHI/gwc-datalib/pkg/catalog"
	"github.com/DHI/gwc-datalib/pkg/config"
	"github.com/DHI/gwc-datalib/pkg/dataset"
	"github.com/DHI/gwc-datalib/pkg/dataset/azureblob"
	"github.com/DHI/gwc-datalib/pkg/dataset/dataverse"
	s3backend "github.com/DHI/gwc-datalib/pkg/dataset/s3"
	"github.com/DHI/gwc-datalib/pkg/storage"
)

// ErrNoObjectStore is returned for S3 datasets when no object store is
// configured.
var ErrNoObjectStore = errors.New("no object store configured")

// Dependencies are the shared resources the built-in backends need.
type Dependencies struct {
	// API is the authenticated catalog transport.
	API azureblob.API

	// Dataverse configures the Dataverse backend.
	Dataverse dataverse.Config

	// ObjectStore serves S3 datasets. It may be nil.
	ObjectStore storage.Provider
	PresignTTL  time.Duration

	// BlobDownloader replaces the Azure SDK downloader when set.
	BlobDownloader azureblob.Downloader

	Clock clockwork.Clock
}

// RegisterBuiltinFactories registers the AzureBlob, Dataverse and S3
// backends.
func RegisterBuiltinFactories(r *Registry, deps Dependencies) {
	r.RegisterFactory(azureblob.Kind, AzureBlobFactory(deps))
	r.RegisterFactory(dataverse.Kind, DataverseFactory(deps))
	r.RegisterFactory(s3backend.Kind, S3Factory(deps))
}

// AzureBlobFactory creates AzureBlob adapters on the catalog transport.
func AzureBlobFactory(deps Dependencies) BackendFactory {
	return func(ctx context.Context, meta catalog.Metadata) (dataset.Adapter, error) {
		var opts []azureblob.Option
		if deps.BlobDownloader != nil {
			opts = append(opts, azureblob.WithDownloader(deps.BlobDownloader))
		}
		if deps.Clock != nil {
			opts = append(opts, azureblob.WithClock(deps.Clock))
		}
		return azureblob.New(ctx, meta, deps.API, opts...)
	}
}

// DataverseFactory creates Dataverse adapters.
func DataverseFactory(deps Dependencies) BackendFactory {
	return func(_ context.Context, meta catalog.Metadata) (dataset.Adapter, error) {
		return dataverse.New(meta, deps.Dataverse)
	}
}

// S3Factory creates S3 adapters on the shared object store.
func S3Factory(deps Dependencies) BackendFactory {
	return func(_ context.Context, meta catalog.Metadata) (dataset.Adapter, error) {
		if deps.ObjectStore == nil {
			return nil, fmt.Errorf("%w: %w: set S3_REGION or S3_ENDPOINT", config.ErrConfiguration, ErrNoObjectStore)
		}
		return s3backend.New(meta, deps.ObjectStore, s3backend.Config{
			PresignTTL: deps.PresignTTL,
			Clock:      deps.Clock,
		})
	}
}
