// Package azureblob implements the dataset adapter for files kept in Azure
// Blob Storage behind the catalog's SAS issuing endpoints.
package azureblob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/jonboulle/clockwork"
	"github.com/yosida95/uritemplate/v3"

	"github.com/DHI/gwc-datalib/pkg/catalog"
	"github.com/DHI/gwc-datalib/pkg/dataset"
	"github.com/DHI/gwc-datalib/pkg/raster"
)

// Kind is the storage_service value served by this adapter.
const Kind = "AzureBlob"

var (
	listTemplate = uritemplate.MustNew("/azure-blob/list-files{?dataset_name}")
	sasTemplate  = uritemplate.MustNew("/azure-blob/generate-blob-sas-token{?dataset_name,file_name}")
)

// API is the authenticated catalog transport.
type API interface {
	Get(ctx context.Context, path string, out any) error
}

// Downloader fetches a blob through a SAS URL.
type Downloader interface {
	Download(ctx context.Context, sasURL string) ([]byte, error)
}

// SDKDownloader downloads with the Azure SDK blob client.
type SDKDownloader struct {
	Options *blob.ClientOptions
}

// Download implements Downloader.
func (d SDKDownloader) Download(ctx context.Context, sasURL string) ([]byte, error) {
	client, err := blob.NewClientWithNoCredential(sasURL, d.Options)
	if err != nil {
		return nil, fmt.Errorf("creating blob client: %w", err)
	}
	resp, err := client.DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("downloading blob: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(resp.Body)
}

type listResponse struct {
	Files []dataset.File `json:"files"`
}

type sasResponse struct {
	AccountURL    string `json:"account_url"`
	ContainerName string `json:"container_name"`
	BlobName      string `json:"blob_name"`
	SASToken      string `json:"sas_token"`
}

// Adapter serves one AzureBlob dataset.
type Adapter struct {
	meta       catalog.Metadata
	name       string
	api        API
	downloader Downloader
	clock      clockwork.Clock

	listing *dataset.Listing
	access  *dataset.AccessCache
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDownloader replaces the Azure SDK downloader.
func WithDownloader(d Downloader) Option {
	return func(a *Adapter) { a.downloader = d }
}

// WithClock sets the clock used to check SAS expiry.
func WithClock(clock clockwork.Clock) Option {
	return func(a *Adapter) { a.clock = clock }
}

// New binds an adapter to meta and fetches the file listing.
func New(ctx context.Context, meta catalog.Metadata, api API, opts ...Option) (*Adapter, error) {
	name := meta.DatasetName()
	if name == "" {
		return nil, fmt.Errorf("%w: dataset_name is required", dataset.ErrInvalidMetadata)
	}
	a := &Adapter{
		meta:       meta,
		name:       name,
		api:        api,
		downloader: SDKDownloader{},
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.listing = dataset.NewListing(a.list)
	a.access = dataset.NewAccessCache(a.issue, a.clock)

	if _, err := a.listing.Files(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Kind implements dataset.Adapter.
func (*Adapter) Kind() string { return Kind }

// Metadata implements dataset.Adapter.
func (a *Adapter) Metadata() catalog.Metadata { return a.meta }

// ListFiles implements dataset.Adapter.
func (a *Adapter) ListFiles(ctx context.Context) ([]dataset.File, error) {
	return a.listing.Files(ctx)
}

// DownloadLinks implements dataset.Adapter.
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
		access, err := a.Acquire(ctx, f)
		if err != nil {
			return nil, err
		}
		links = append(links, access.Link())
	}
	return links, nil
}

// Acquire returns the SAS access for file, issuing it on first use.
func (a *Adapter) Acquire(ctx context.Context, file dataset.File) (dataset.Access, error) {
	return a.access.Acquire(ctx, file)
}

// Download implements dataset.Downloader.
func (a *Adapter) Download(ctx context.Context, file dataset.File) ([]byte, error) {
	access, err := a.Acquire(ctx, file)
	if err != nil {
		return nil, err
	}
	return a.downloader.Download(ctx, access.URL)
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

func (a *Adapter) list(ctx context.Context) ([]dataset.File, error) {
	vars := uritemplate.Values{}
	vars.Set("dataset_name", uritemplate.String(a.name))
	path, err := listTemplate.Expand(vars)
	if err != nil {
		return nil, fmt.Errorf("expanding list endpoint: %w", err)
	}
	var out listResponse
	if err := a.api.Get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("listing files of %s: %w", a.name, err)
	}
	slog.Debug("listed azure blob files", "dataset", a.name, "files", len(out.Files))
	return out.Files, nil
}

func (a *Adapter) issue(ctx context.Context, file dataset.File) (dataset.Access, error) {
	vars := uritemplate.Values{}
	vars.Set("dataset_name", uritemplate.String(a.name))
	vars.Set("file_name", uritemplate.String(file.Name))
	path, err := sasTemplate.Expand(vars)
	if err != nil {
		return dataset.Access{}, fmt.Errorf("expanding sas endpoint: %w", err)
	}
	var sas sasResponse
	if err := a.api.Get(ctx, path, &sas); err != nil {
		return dataset.Access{}, fmt.Errorf("issuing sas for %s: %w", file.Name, err)
	}

	access := dataset.Access{File: file.Name, URL: sas.url()}
	if parts, err := blob.ParseURL(access.URL); err == nil {
		access.ExpiresAt = parts.SAS.ExpiryTime()
	}
	slog.Debug("issued blob sas", "dataset", a.name, "file", file.Name, "expires", access.ExpiresAt)
	return access, nil
}

// url joins the SAS parts into account_url/container/blob?sas.
func (s sasResponse) url() string {
	path := (&url.URL{Path: "/" + s.ContainerName + "/" + s.BlobName}).EscapedPath()
	return strings.TrimRight(s.AccountURL, "/") + path + "?" + strings.TrimPrefix(s.SASToken, "?")
}

// Verify interface compliance.
var (
	_ dataset.Adapter     = (*Adapter)(nil)
	_ dataset.TableReader = (*Adapter)(nil)
	_ dataset.ArrayReader = (*Adapter)(nil)
	_ dataset.Downloader  = (*Adapter)(nil)
)
