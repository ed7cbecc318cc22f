// Package s3 implements the dataset adapter for files kept under a prefix of
// an S3-compatible bucket.
package s3

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/jonboulle/clockwork"

	"github.com/DHI/gwc-datalib/pkg/catalog"
	"github.com/DHI/gwc-datalib/pkg/dataset"
	"github.com/DHI/gwc-datalib/pkg/raster"
	"github.com/DHI/gwc-datalib/pkg/storage"
)

// Kind is the storage_service value served by this adapter.
const Kind = "S3"

// DefaultPresignTTL is the lifetime of presigned download links.
const DefaultPresignTTL = 15 * time.Minute

// Metadata keys read by the adapter.
const (
	KeyBucket = "bucket"
	KeyPrefix = "prefix"
	KeyURI    = "uri"
)

// Config configures the adapter.
type Config struct {
	PresignTTL time.Duration
	Clock      clockwork.Clock
}

// Adapter serves one S3 dataset.
type Adapter struct {
	meta  catalog.Metadata
	loc   storage.Location
	store storage.Provider
	ttl   time.Duration

	listing *dataset.Listing
	access  *dataset.AccessCache
}

// New binds an adapter to meta. The listing is fetched on first use.
func New(meta catalog.Metadata, store storage.Provider, cfg Config) (*Adapter, error) {
	loc, err := location(meta)
	if err != nil {
		return nil, err
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = DefaultPresignTTL
	}
	a := &Adapter{
		meta:  meta,
		loc:   loc,
		store: store,
		ttl:   cfg.PresignTTL,
	}
	a.listing = dataset.NewListing(a.list)
	a.access = dataset.NewAccessCache(a.presign, cfg.Clock)
	return a, nil
}

func location(meta catalog.Metadata) (storage.Location, error) {
	if bucket := meta.String(KeyBucket); bucket != "" {
		return storage.Location{Bucket: bucket, Prefix: strings.Trim(meta.String(KeyPrefix), "/")}, nil
	}
	if uri := meta.String(KeyURI); uri != "" {
		loc, err := storage.ParseLocation(uri)
		if err != nil {
			return storage.Location{}, fmt.Errorf("%w: %w", dataset.ErrInvalidMetadata, err)
		}
		loc.Prefix = strings.Trim(loc.Prefix, "/")
		return loc, nil
	}
	return storage.Location{}, fmt.Errorf("%w: bucket is required for %s datasets", dataset.ErrInvalidMetadata, Kind)
}

// Kind implements dataset.Adapter.
func (*Adapter) Kind() string { return Kind }

// Metadata implements dataset.Adapter.
func (a *Adapter) Metadata() catalog.Metadata { return a.meta }

// Location returns the bucket and prefix the dataset lives under.
func (a *Adapter) Location() storage.Location { return a.loc }

// ListFiles implements dataset.Adapter. File names are keys relative to the
// dataset prefix.
func (a *Adapter) ListFiles(ctx context.Context) ([]dataset.File, error) {
	return a.listing.Files(ctx)
}

// DownloadLinks implements dataset.Adapter with presigned GET URLs.
func (a *Adapter) DownloadLinks(ctx context.Context, fileName string) ([]dataset.DownloadLink, error) {
	files, err := a.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	targets, err := dataset.Targets(files, fileName)
	if err != nil {
		return nil, err
	}
	links := make([]dataset.DownloadLink, 0, len(targets))
	for _, f := range targets {
		access, err := a.access.Acquire(ctx, f)
		if err != nil {
			return nil, err
		}
		links = append(links, access.Link())
	}
	return links, nil
}

// Download implements dataset.Downloader.
func (a *Adapter) Download(ctx context.Context, file dataset.File) ([]byte, error) {
	return a.store.GetObject(ctx, a.loc.Bucket, a.key(file.Name))
}

// ToTable implements dataset.TableReader.
func (a *Adapter) ToTable(ctx context.Context, fileName string) (arrow.Table, error) {
	files, err := a.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	return dataset.ReadTable(ctx, files, fileName, a.Download)
}

// ToArray implements dataset.ArrayReader.
func (a *Adapter) ToArray(ctx context.Context, fileName string) ([]*raster.Raster, error) {
	files, err := a.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	return dataset.ReadArrays(ctx, files, fileName, a.Download)
}

func (a *Adapter) key(name string) string {
	if a.loc.Prefix == "" {
		return name
	}
	return a.loc.Prefix + "/" + name
}

func (a *Adapter) list(ctx context.Context) ([]dataset.File, error) {
	loc := a.loc
	if loc.Prefix != "" {
		loc.Prefix += "/"
	}
	objects, err := a.store.ListObjects(ctx, loc, 0)
	if err != nil {
		return nil, err
	}
	files := make([]dataset.File, 0, len(objects))
	for _, obj := range objects {
		name := obj.Name(loc.Prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		files = append(files, dataset.File{Name: name, Size: obj.Size})
	}
	slog.Debug("listed s3 objects", "location", a.loc.String(), "files", len(files))
	return files, nil
}

func (a *Adapter) presign(ctx context.Context, file dataset.File) (dataset.Access, error) {
	url, expires, err := a.store.PresignGet(ctx, a.loc.Bucket, a.key(file.Name), a.ttl)
	if err != nil {
		return dataset.Access{}, err
	}
	return dataset.Access{File: file.Name, URL: url, ExpiresAt: expires}, nil
}

// Verify interface compliance.
var (
	_ dataset.Adapter     = (*Adapter)(nil)
	_ dataset.TableReader = (*Adapter)(nil)
	_ dataset.ArrayReader = (*Adapter)(nil)
	_ dataset.Downloader  = (*Adapter)(nil)
)
