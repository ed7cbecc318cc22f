// Package dataverse implements the dataset adapter for DOI-identified
// datasets published in a Dataverse archive. It lists files and hands out
// access URLs but has no table or array materialization.
package dataverse

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/yosida95/uritemplate/v3"

	"github.com/DHI/gwc-datalib/pkg/catalog"
	"github.com/DHI/gwc-datalib/pkg/dataset"
	apihttp "github.com/DHI/gwc-datalib/pkg/http"
)

// Kind is the storage_service value served by this adapter.
const Kind = "Dataverse"

// DefaultServerURL is used when neither the metadata nor the configuration
// names a Dataverse installation.
const DefaultServerURL = "https://dataverse.harvard.edu"

// APIKeyHeader carries the Dataverse API token.
const APIKeyHeader = "X-Dataverse-key"

// Metadata keys read by the adapter.
const (
	KeyDOI          = "doi"
	KeyPersistentID = "persistent_id"
	KeyServerURL    = "dataverse_url"
)

var (
	datasetTemplate  = uritemplate.MustNew("/api/datasets/:persistentId/{?persistentId}")
	datafileTemplate = uritemplate.MustNew("/api/access/datafile/{id}")
)

// Config configures the adapter.
type Config struct {
	ServerURL string
	APIToken  string
	Transport apihttp.Config
}

type datasetResponse struct {
	Status string `json:"status"`
	Data   struct {
		LatestVersion struct {
			Files []struct {
				Label          string `json:"label"`
				DirectoryLabel string `json:"directoryLabel"`
				DataFile       struct {
					ID          int64  `json:"id"`
					Filename    string `json:"filename"`
					ContentType string `json:"contentType"`
					Filesize    int64  `json:"filesize"`
				} `json:"dataFile"`
			} `json:"files"`
		} `json:"latestVersion"`
	} `json:"data"`
}

// Adapter serves one Dataverse dataset.
type Adapter struct {
	meta         catalog.Metadata
	persistentID string
	server       string
	api          *apihttp.Client

	listing *dataset.Listing
	ids     map[string]int64
}

// New binds an adapter to meta. The listing is fetched on first use.
func New(meta catalog.Metadata, cfg Config) (*Adapter, error) {
	pid := PersistentID(meta.String(KeyDOI))
	if pid == "" {
		pid = PersistentID(meta.String(KeyPersistentID))
	}
	if pid == "" {
		return nil, fmt.Errorf("%w: doi is required for %s datasets", dataset.ErrInvalidMetadata, Kind)
	}

	server := meta.String(KeyServerURL)
	if server == "" {
		server = cfg.ServerURL
	}
	if server == "" {
		server = DefaultServerURL
	}
	server = strings.TrimRight(server, "/")

	transport := cfg.Transport
	transport.BaseURL = server
	if cfg.APIToken != "" {
		headers := make(map[string]string, len(transport.Headers)+1)
		for k, v := range transport.Headers {
			headers[k] = v
		}
		headers[APIKeyHeader] = cfg.APIToken
		transport.Headers = headers
	}

	a := &Adapter{
		meta:         meta,
		persistentID: pid,
		server:       server,
		api:          apihttp.New(transport, nil),
		ids:          make(map[string]int64),
	}
	a.listing = dataset.NewListing(a.list)
	return a, nil
}

// PersistentID normalizes a DOI ("10.7910/DVN/X", "doi:...", or a doi.org
// URL) into the doi:-prefixed form Dataverse expects.
func PersistentID(doi string) string {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return ""
	}
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(strings.ToLower(doi), prefix) {
			doi = doi[len(prefix):]
			break
		}
	}
	return "doi:" + doi
}

// Kind implements dataset.Adapter.
func (*Adapter) Kind() string { return Kind }

// Metadata implements dataset.Adapter.
func (a *Adapter) Metadata() catalog.Metadata { return a.meta }

// ListFiles implements dataset.Adapter.
func (a *Adapter) ListFiles(ctx context.Context) ([]dataset.File, error) {
	return a.listing.Files(ctx)
}

// DownloadLinks implements dataset.Adapter. Access URLs do not expire.
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
		path, err := a.datafilePath(f)
		if err != nil {
			return nil, err
		}
		links = append(links, dataset.DownloadLink{File: f.Name, URL: a.server + path})
	}
	return links, nil
}

// Download implements dataset.Downloader.
func (a *Adapter) Download(ctx context.Context, file dataset.File) ([]byte, error) {
	if _, err := a.ListFiles(ctx); err != nil {
		return nil, err
	}
	path, err := a.datafilePath(file)
	if err != nil {
		return nil, err
	}
	return a.api.GetBytes(ctx, path)
}

func (a *Adapter) datafilePath(f dataset.File) (string, error) {
	id, ok := a.ids[f.Name]
	if !ok {
		return "", fmt.Errorf("%w: no file named %q", dataset.ErrNoMatchingFiles, f.Name)
	}
	vars := uritemplate.Values{}
	vars.Set("id", uritemplate.String(strconv.FormatInt(id, 10)))
	return datafileTemplate.Expand(vars)
}

func (a *Adapter) list(ctx context.Context) ([]dataset.File, error) {
	vars := uritemplate.Values{}
	vars.Set("persistentId", uritemplate.String(a.persistentID))
	path, err := datasetTemplate.Expand(vars)
	if err != nil {
		return nil, fmt.Errorf("expanding dataset endpoint: %w", err)
	}

	var out datasetResponse
	if err := a.api.Get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("listing files of %s: %w", a.persistentID, err)
	}

	files := make([]dataset.File, 0, len(out.Data.LatestVersion.Files))
	for _, entry := range out.Data.LatestVersion.Files {
		df := entry.DataFile
		name := df.Filename
		if name == "" {
			name = entry.Label
		}
		// Files in different folders may share a name.
		if dir := strings.Trim(entry.DirectoryLabel, "/"); dir != "" {
			name = dir + "/" + name
		}
		a.ids[name] = df.ID
		files = append(files, dataset.File{Name: name, ContentType: df.ContentType, Size: df.Filesize})
	}
	slog.Debug("listed dataverse files", "persistent_id", a.persistentID, "files", len(files))
	return files, nil
}

// Verify interface compliance. Dataverse has no materialization capability.
var (
	_ dataset.Adapter    = (*Adapter)(nil)
	_ dataset.Downloader = (*Adapter)(nil)
)
