package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yosida95/uritemplate/v3"

	apihttp "github.com/DHI/gwc-datalib/pkg/http"
)

// Endpoint templates relative to the API base URL.
var (
	searchTemplate       = uritemplate.MustNew("/dataset/search{?dataset_name,tag}")
	userDatasetsTemplate = uritemplate.MustNew("/dataset/user-datasets")
	datasetTemplate      = uritemplate.MustNew("/dataset{?dataset_name}")
)

// API is the transport the client needs. *apihttp.Client implements it.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// Client talks to the metadata catalog.
type Client struct {
	api API
}

// New creates a catalog client on top of an authenticated transport.
func New(api API) *Client {
	return &Client{api: api}
}

// Search returns datasets whose name contains params.Name and/or that carry
// params.Tag, in the order the catalog returns them.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]Metadata, error) {
	vars := uritemplate.Values{}
	if params.Name != "" {
		vars.Set("dataset_name", uritemplate.String(params.Name))
	}
	if params.Tag != "" {
		vars.Set("tag", uritemplate.String(params.Tag))
	}
	path, err := searchTemplate.Expand(vars)
	if err != nil {
		return nil, fmt.Errorf("expanding search endpoint: %w", err)
	}

	var out []Metadata
	if err := c.api.Get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("searching datasets: %w", err)
	}
	return out, nil
}

// UserDatasets lists the datasets owned by the authenticated user.
func (c *Client) UserDatasets(ctx context.Context) ([]Metadata, error) {
	path, err := userDatasetsTemplate.Expand(uritemplate.Values{})
	if err != nil {
		return nil, fmt.Errorf("expanding user datasets endpoint: %w", err)
	}
	var out []Metadata
	if err := c.api.Get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("listing user datasets: %w", err)
	}
	return out, nil
}

// Get fetches the full metadata of one dataset. A 404 or an empty answer
// yields ErrNotFound.
func (c *Client) Get(ctx context.Context, name string) (Metadata, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: dataset name is required", ErrValidation)
	}
	vars := uritemplate.Values{}
	vars.Set("dataset_name", uritemplate.String(name))
	path, err := datasetTemplate.Expand(vars)
	if err != nil {
		return nil, fmt.Errorf("expanding dataset endpoint: %w", err)
	}

	var out Metadata
	if err := c.api.Get(ctx, path, &out); err != nil {
		if apihttp.IsStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, name, err)
		}
		return nil, fmt.Errorf("fetching dataset %s: %w", name, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if detail, ok := out["detail"].(string); ok && len(out) == 1 {
		// Error envelope delivered with a success status.
		return nil, fmt.Errorf("%w: %s: %s", ErrNotFound, name, detail)
	}
	slog.Debug("fetched dataset metadata", "dataset", name, "storage_service", out.StorageService())
	return out, nil
}

// Create registers a new dataset. The document must carry at least id,
// title, repository.type, repository.files and structure.representation.
func (c *Client) Create(ctx context.Context, doc Metadata) (Metadata, error) {
	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}

	path, err := datasetTemplate.Expand(uritemplate.Values{})
	if err != nil {
		return nil, fmt.Errorf("expanding dataset endpoint: %w", err)
	}

	var out Metadata
	if err := c.api.Post(ctx, path, doc, &out); err != nil {
		if apihttp.IsStatus(err, http.StatusBadRequest, http.StatusUnprocessableEntity) {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return nil, fmt.Errorf("creating dataset: %w", err)
	}
	return out, nil
}

// ValidateDocument checks the minimal schema the catalog requires and reports
// every missing field at once.
func ValidateDocument(doc Metadata) error {
	if doc == nil {
		return fmt.Errorf("%w: document is empty", ErrValidation)
	}
	var missing []string
	if doc.String(KeyID) == "" {
		missing = append(missing, KeyID)
	}
	if doc.String(KeyTitle) == "" {
		missing = append(missing, KeyTitle)
	}
	repo := doc.Map(KeyRepository)
	if repo == nil {
		missing = append(missing, KeyRepository)
	} else {
		if repo.String("type") == "" {
			missing = append(missing, "repository.type")
		}
		if !isList(repo["files"]) {
			missing = append(missing, "repository.files")
		}
	}
	structure := doc.Map(KeyStructure)
	if structure == nil || structure.String("representation") == "" {
		missing = append(missing, "structure.representation")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []string, []map[string]any, []Metadata:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err means the dataset does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
