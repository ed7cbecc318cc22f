package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/DHI/gwc-datalib/pkg/catalog"
	"github.com/DHI/gwc-datalib/pkg/config"
	"github.com/DHI/gwc-datalib/pkg/dataset"
	"github.com/DHI/gwc-datalib/pkg/dataset/azureblob"
	"github.com/DHI/gwc-datalib/pkg/dataset/dataverse"
	s3backend "github.com/DHI/gwc-datalib/pkg/dataset/s3"
)

const regTestKind = "Test"

// mockAdapter is a minimal adapter for factory tests.
type mockAdapter struct {
	meta catalog.Metadata
}

func (*mockAdapter) Kind() string                 { return regTestKind }
func (m *mockAdapter) Metadata() catalog.Metadata { return m.meta }

func (*mockAdapter) ListFiles(context.Context) ([]dataset.File, error) {
	return nil, nil
}

func (*mockAdapter) DownloadLinks(context.Context, string) ([]dataset.DownloadLink, error) {
	return nil, nil
}

func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry()
	var calls int
	reg.RegisterFactory(regTestKind, func(_ context.Context, meta catalog.Metadata) (dataset.Adapter, error) {
		calls++
		return &mockAdapter{meta: meta}, nil
	})

	meta := catalog.Metadata{"dataset_name": "d", "storage_service": regTestKind}
	adapter, err := reg.Create(context.Background(), meta)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if adapter.Kind() != regTestKind {
		t.Errorf("Kind() = %q, want %q", adapter.Kind(), regTestKind)
	}
	if adapter.Metadata().DatasetName() != "d" {
		t.Error("adapter not bound to the metadata")
	}
	if calls != 1 {
		t.Errorf("factory calls = %d, want 1", calls)
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	tests := []struct {
		name string
		meta catalog.Metadata
		kind string
	}{
		{name: "unknown", meta: catalog.Metadata{"storage_service": "FTP"}, kind: "FTP"},
		{name: "missing", meta: catalog.Metadata{"dataset_name": "d"}, kind: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			reg.RegisterFactory(regTestKind, func(context.Context, catalog.Metadata) (dataset.Adapter, error) {
				t.Error("factory must not be called")
				return nil, nil
			})

			_, err := reg.Create(context.Background(), tt.meta)
			if !errors.Is(err, dataset.ErrUnsupportedBackend) {
				t.Fatalf("Create() error = %v, want ErrUnsupportedBackend", err)
			}
			var ube *dataset.UnsupportedBackendError
			if !errors.As(err, &ube) {
				t.Fatal("expected *UnsupportedBackendError")
			}
			if ube.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", ube.Kind, tt.kind)
			}
		})
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFactory(regTestKind, func(context.Context, catalog.Metadata) (dataset.Adapter, error) {
		return nil, dataset.ErrInvalidMetadata
	})

	_, err := reg.Create(context.Background(), catalog.Metadata{"storage_service": regTestKind})
	if !errors.Is(err, dataset.ErrInvalidMetadata) {
		t.Errorf("Create() error = %v, want wrapped ErrInvalidMetadata", err)
	}
}

func TestRegistry_Kinds(t *testing.T) {
	reg := NewRegistry()
	if len(reg.Kinds()) != 0 {
		t.Error("new registry should have no kinds")
	}

	RegisterBuiltinFactories(reg, Dependencies{})
	want := []string{azureblob.Kind, dataverse.Kind, s3backend.Kind}
	got := reg.Kinds()
	if len(got) != len(want) {
		t.Fatalf("Kinds() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Kinds()[%d] = %q, want %q", i, got[i], want[i])
		}
		if !reg.Supports(want[i]) {
			t.Errorf("Supports(%q) = false", want[i])
		}
	}
	if reg.Supports("FTP") {
		t.Error("Supports(FTP) = true")
	}
}

func TestS3Factory_NoObjectStore(t *testing.T) {
	reg := NewRegistry()
	RegisterBuiltinFactories(reg, Dependencies{})

	_, err := reg.Create(context.Background(), catalog.Metadata{
		"storage_service": s3backend.Kind,
		"bucket":          "b",
	})
	if !errors.Is(err, ErrNoObjectStore) {
		t.Errorf("error = %v, want ErrNoObjectStore", err)
	}
	if !errors.Is(err, config.ErrConfiguration) {
		t.Errorf("error = %v, want ErrConfiguration", err)
	}
}

func TestDataverseFactory(t *testing.T) {
	reg := NewRegistry()
	RegisterBuiltinFactories(reg, Dependencies{})

	adapter, err := reg.Create(context.Background(), catalog.Metadata{
		"storage_service": dataverse.Kind,
		"doi":             "10.7910/DVN/ABC123",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if adapter.Kind() != dataverse.Kind {
		t.Errorf("Kind() = %q", adapter.Kind())
	}
}
