// Package catalog provides the MCP toolkit that exposes dataset discovery and
// file access to agents.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	catalogapi "github.com/DHI/gwc-datalib/pkg/catalog"
	"github.com/DHI/gwc-datalib/pkg/dataset"
	"github.com/DHI/gwc-datalib/pkg/toolkit"
)

// Tool names.
const (
	ToolSearchDatasets = "datalib_search_datasets"
	ToolUserDatasets   = "datalib_user_datasets"
	ToolGetDataset     = "datalib_get_dataset"
	ToolListFiles      = "datalib_list_files"
	ToolDownloadLinks  = "datalib_download_links"
	ToolBackends       = "datalib_backends"
)

// Service is what the toolkit needs from the library. *datalib.Client
// implements it.
type Service interface {
	Search(ctx context.Context, params catalogapi.SearchParams) ([]catalogapi.Metadata, error)
	UserDatasets(ctx context.Context) ([]catalogapi.Metadata, error)
	Dataset(ctx context.Context, name string) (catalogapi.Metadata, error)
	Load(ctx context.Context, name string) (dataset.Adapter, error)
	Backends() []string
	Supports(kind string) bool
}

type searchInput struct {
	Name string `json:"name,omitempty" jsonschema:"substring of the dataset name"`
	Tag  string `json:"tag,omitempty" jsonschema:"tag the dataset must carry"`
}

type datasetInput struct {
	DatasetName string `json:"dataset_name" jsonschema:"catalog name of the dataset"`
}

type linksInput struct {
	DatasetName string `json:"dataset_name" jsonschema:"catalog name of the dataset"`
	FileName    string `json:"file_name,omitempty" jsonschema:"single file to link; all files when empty"`
}

type noInput struct{}

// datasetSummary is the compact form of search results.
type datasetSummary struct {
	DatasetName    string   `json:"dataset_name"`
	Title          string   `json:"title,omitempty"`
	StorageService string   `json:"storage_service,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	// Loadable is false when no adapter serves StorageService.
	Loadable       bool     `json:"loadable"`
}

type filesOutput struct {
	DatasetName    string         `json:"dataset_name"`
	StorageService string         `json:"storage_service"`
	Files          []dataset.File `json:"files"`
}

// Toolkit serves catalog tools.
type Toolkit struct {
	name string
	svc  Service
}

// New creates a catalog toolkit.
func New(name string, svc Service) *Toolkit {
	if name == "" {
		name = "default"
	}
	return &Toolkit{name: name, svc: svc}
}

// Kind returns the toolkit kind.
func (*Toolkit) Kind() string {
	return "catalog"
}

// Name returns the toolkit instance name.
func (t *Toolkit) Name() string {
	return t.name
}

// Tools returns the list of tool names provided by this toolkit.
func (*Toolkit) Tools() []string {
	return []string{
		ToolSearchDatasets,
		ToolUserDatasets,
		ToolGetDataset,
		ToolListFiles,
		ToolDownloadLinks,
		ToolBackends,
	}
}

// Close releases resources.
func (*Toolkit) Close() error {
	return nil
}

// RegisterTools registers the catalog tools with the MCP server.
func (t *Toolkit) RegisterTools(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name: ToolSearchDatasets,
		Description: "Search the dataset catalog by name substring and/or tag. " +
			"Returns dataset names, titles and storage backends.",
	}, t.handleSearch)

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolUserDatasets,
		Description: "List the datasets owned by the authenticated user.",
	}, t.handleUserDatasets)

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolGetDataset,
		Description: "Get the full metadata document of one dataset.",
	}, t.handleGetDataset)

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolListFiles,
		Description: "List the files of a dataset in its storage backend.",
	}, t.handleListFiles)

	mcp.AddTool(s, &mcp.Tool{
		Name: ToolDownloadLinks,
		Description: "Get time-limited download URLs for the files of a dataset. " +
			"Links are reused until they expire.",
	}, t.handleDownloadLinks)

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolBackends,
		Description: "List the storage backends this library can load datasets from.",
	}, t.handleBackends)
}

func (t *Toolkit) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input searchInput) (*mcp.CallToolResult, any, error) {
	results, err := t.svc.Search(ctx, catalogapi.SearchParams{Name: input.Name, Tag: input.Tag})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(t.summarize(results))
}

func (t *Toolkit) handleUserDatasets(ctx context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, any, error) {
	results, err := t.svc.UserDatasets(ctx)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(t.summarize(results))
}

func (t *Toolkit) handleGetDataset(ctx context.Context, _ *mcp.CallToolRequest, input datasetInput) (*mcp.CallToolResult, any, error) {
	if err := requireName(input.DatasetName); err != nil {
		return errorResult(err), nil, nil
	}
	meta, err := t.svc.Dataset(ctx, input.DatasetName)
	if err != nil {
		return lookupError(input.DatasetName, err), nil, nil
	}
	return jsonResult(meta)
}

func (t *Toolkit) handleListFiles(ctx context.Context, _ *mcp.CallToolRequest, input datasetInput) (*mcp.CallToolResult, any, error) {
	if err := requireName(input.DatasetName); err != nil {
		return errorResult(err), nil, nil
	}
	adapter, err := t.svc.Load(ctx, input.DatasetName)
	if err != nil {
		return lookupError(input.DatasetName, err), nil, nil
	}
	files, err := adapter.ListFiles(ctx)
	if err != nil {
		return errorResult(err), nil, nil
	}
	if files == nil {
		files = []dataset.File{}
	}
	return jsonResult(filesOutput{
		DatasetName:    input.DatasetName,
		StorageService: adapter.Kind(),
		Files:          files,
	})
}

func (t *Toolkit) handleDownloadLinks(ctx context.Context, _ *mcp.CallToolRequest, input linksInput) (*mcp.CallToolResult, any, error) {
	if err := requireName(input.DatasetName); err != nil {
		return errorResult(err), nil, nil
	}
	adapter, err := t.svc.Load(ctx, input.DatasetName)
	if err != nil {
		return lookupError(input.DatasetName, err), nil, nil
	}
	links, err := adapter.DownloadLinks(ctx, input.FileName)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(links)
}

func (t *Toolkit) handleBackends(_ context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, any, error) {
	return jsonResult(map[string][]string{"storage_services": t.svc.Backends()})
}

func requireName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: dataset_name is required", catalogapi.ErrValidation)
	}
	return nil
}

func (t *Toolkit) summarize(results []catalogapi.Metadata) []datasetSummary {
	out := make([]datasetSummary, 0, len(results))
	for _, m := range results {
		out = append(out, datasetSummary{
			DatasetName:    m.DatasetName(),
			Title:          m.Title(),
			StorageService: m.StorageService(),
			Tags:           m.Strings(catalogapi.KeyTags),
			Loadable:       t.svc.Supports(m.StorageService()),
		})
	}
	return out
}

// lookupError points agents at the search tool when a name is unknown.
func lookupError(name string, err error) *mcp.CallToolResult {
	if catalogapi.IsNotFound(err) {
		return errorResult(fmt.Errorf("%w: %q; find dataset names with %s", err, name, ToolSearchDatasets))
	}
	return errorResult(err)
}

// errorResult creates an error CallToolResult.
func errorResult(err error) *mcp.CallToolResult {
	slog.Debug("catalog tool failed", "error", err)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(`{"error": %q}`, err.Error())},
		},
		IsError: true,
	}
}

// jsonResult creates a success CallToolResult carrying v as indented JSON.
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("marshaling response: %w", err)), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}

// Verify interface compliance.
var _ toolkit.Toolkit = (*Toolkit)(nil)
