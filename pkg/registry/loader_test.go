package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DHI/gwc-datalib/pkg/catalog"
	"github.com/DHI/gwc-datalib/pkg/dataset"
	"github.com/DHI/gwc-datalib/pkg/dataset/azureblob"
	apihttp "github.com/DHI/gwc-datalib/pkg/http"
)

const (
	loaderTestToken   = "loader-token"
	loaderTestDataset = "soil_2024"
)

type staticTokens struct{}

func (staticTokens) Token(context.Context) (string, error) { return loaderTestToken, nil }
func (staticTokens) Invalidate(string)                     {}

// fakeCatalog serves dataset metadata and the AzureBlob listing endpoint.
type fakeCatalog struct {
	meta     map[string]catalog.Metadata
	listN    atomic.Int32
	unauthN  atomic.Int32
	fileReqs atomic.Int32
}

func (f *fakeCatalog) start(t *testing.T) *apihttp.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+loaderTestToken {
			f.unauthN.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/dataset":
			meta, ok := f.meta[r.URL.Query().Get("dataset_name")]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(meta)
		case "/azure-blob/list-files":
			f.listN.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{"files": []string{"jan.csv", "feb.csv"}})
		default:
			f.fileReqs.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return apihttp.New(apihttp.Config{BaseURL: srv.URL}, staticTokens{})
}

func newTestLoader(t *testing.T, f *fakeCatalog) *Loader {
	t.Helper()
	api := f.start(t)
	reg := NewRegistry()
	RegisterBuiltinFactories(reg, Dependencies{API: api})
	return NewLoader(catalog.New(api), reg)
}

func TestLoader_LoadAzureBlob(t *testing.T) {
	f := &fakeCatalog{meta: map[string]catalog.Metadata{
		loaderTestDataset: {
			"dataset_name":    loaderTestDataset,
			"storage_service": azureblob.Kind,
			"title":           "Soil moisture 2024",
		},
	}}
	loader := newTestLoader(t, f)

	adapter, err := loader.Load(context.Background(), loaderTestDataset)
	require.NoError(t, err)

	assert.Equal(t, azureblob.Kind, adapter.Kind())
	assert.Equal(t, "Soil moisture 2024", adapter.Metadata().Title())
	assert.Equal(t, int32(1), f.listN.Load(), "exactly one listing at construction")
	assert.Zero(t, f.unauthN.Load(), "bearer token attached to every request")

	files, err := adapter.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, int32(1), f.listN.Load())
}

func TestLoader_UnsupportedBackend(t *testing.T) {
	f := &fakeCatalog{meta: map[string]catalog.Metadata{
		"ftp_data": {"dataset_name": "ftp_data", "storage_service": "FTP"},
	}}
	loader := newTestLoader(t, f)

	_, err := loader.Load(context.Background(), "ftp_data")
	require.Error(t, err)

	var ube *dataset.UnsupportedBackendError
	require.True(t, errors.As(err, &ube))
	assert.Equal(t, "FTP", ube.Kind)
	assert.Zero(t, f.listN.Load(), "no listing for unsupported backends")
	assert.Zero(t, f.fileReqs.Load())
}

func TestLoader_NotFound(t *testing.T) {
	f := &fakeCatalog{meta: map[string]catalog.Metadata{}}
	loader := newTestLoader(t, f)

	_, err := loader.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestLoader_FromMetadata(t *testing.T) {
	f := &fakeCatalog{}
	loader := newTestLoader(t, f)

	adapter, err := loader.FromMetadata(context.Background(), catalog.Metadata{
		"dataset_name":    loaderTestDataset,
		"storage_service": azureblob.Kind,
	})
	require.NoError(t, err)
	assert.Equal(t, loaderTestDataset, adapter.Metadata().DatasetName())
	assert.Same(t, loader.registry, loader.Registry())
}
