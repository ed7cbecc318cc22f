package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/DHI/gwc-datalib/internal/server"
	"github.com/DHI/gwc-datalib/pkg/catalog"
	"github.com/DHI/gwc-datalib/pkg/dataset"
	"github.com/DHI/gwc-datalib/pkg/raster"
	"github.com/DHI/gwc-datalib/pkg/table"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "datalib",
		Short: "Dataset catalog client",
		Long: `Search the dataset catalog, inspect dataset metadata and fetch dataset
files from their storage backend.

Settings come from the environment (AUTH0_DOMAIN, API_ENDPOINT, ...) and
optionally from a .env or YAML file given with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a .env or YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (default LOG_LEVEL or info)")

	root.AddCommand(
		newSearchCmd(a),
		newMineCmd(a),
		newGetCmd(a),
		newCreateCmd(a),
		newFilesCmd(a),
		newLinksCmd(a),
		newTableCmd(a),
		newArrayCmd(a),
		newWhoamiCmd(a),
		newBackendsCmd(a),
		newMCPCmd(a),
		newVersionCmd(a),
	)
	return root
}

func newSearchCmd(a *app) *cobra.Command {
	var params catalog.SearchParams
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search datasets by name and/or tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			results, err := c.Search(cmd.Context(), params)
			if err != nil {
				return err
			}
			return a.printJSON(results)
		},
	}
	cmd.Flags().StringVar(&params.Name, "name", "", "substring of the dataset name")
	cmd.Flags().StringVar(&params.Tag, "tag", "", "tag the dataset must carry")
	return cmd
}

func newMineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List the datasets you own",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			results, err := c.UserDatasets(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(results)
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show the metadata of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			meta, err := c.Dataset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(meta)
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create -f FILE",
		Short: "Register a dataset from a YAML or JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := readDocument(file)
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			created, err := c.CreateDataset(cmd.Context(), doc)
			if err != nil {
				return err
			}
			return a.printJSON(created)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "dataset document (.yaml, .yml or .json)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readDocument parses a dataset document. YAML is chosen by extension,
// everything else is read as JSON.
func readDocument(path string) (catalog.Metadata, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is a user-supplied CLI argument
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	var doc catalog.Metadata
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// withDataset loads name and hands its adapter to fn.
func (a *app) withDataset(cmd *cobra.Command, name string, fn func(dataset.Adapter) error) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	adapter, err := c.Load(cmd.Context(), name)
	if err != nil {
		return err
	}
	return fn(adapter)
}

func newFilesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "files NAME",
		Short: "List the files of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDataset(cmd, args[0], func(ad dataset.Adapter) error {
				files, err := ad.ListFiles(cmd.Context())
				if err != nil {
					return err
				}
				return a.printJSON(files)
			})
		},
	}
}

func newLinksCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "links NAME",
		Short: "Print download URLs for the files of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDataset(cmd, args[0], func(ad dataset.Adapter) error {
				links, err := ad.DownloadLinks(cmd.Context(), file)
				if err != nil {
					return err
				}
				return a.printJSON(links)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "single file (default all files)")
	return cmd
}

func newTableCmd(a *app) *cobra.Command {
	var (
		file string
		head int64
	)
	cmd := &cobra.Command{
		Use:   "table NAME",
		Short: "Load the tabular files of a dataset and print them as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDataset(cmd, args[0], func(ad dataset.Adapter) error {
				tbl, err := dataset.ToTable(cmd.Context(), ad, file)
				if err != nil {
					return err
				}
				defer tbl.Release()
				return table.WriteCSV(a.out, tbl, head)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "single file (default all .csv/.parquet files)")
	cmd.Flags().Int64Var(&head, "head", 0, "print at most N rows (0 prints all)")
	return cmd
}

// bandSummary describes one raster band.
type bandSummary struct {
	Band int     `json:"band"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`

	// Valid counts samples that are not nodata.
	Valid int `json:"valid"`
}

type rasterSummary struct {
	*raster.Raster
	Shape [3]int        `json:"shape"`
	Stats []bandSummary `json:"stats"`
}

func summarizeRaster(r *raster.Raster) rasterSummary {
	s := rasterSummary{Raster: r, Shape: r.Shape()}
	for b := range r.Bands {
		values := r.Band(b)
		bs := bandSummary{Band: b, Min: math.Inf(1), Max: math.Inf(-1)}
		var sum float64
		for _, v := range values {
			if r.IsNoData(v) {
				continue
			}
			bs.Min = math.Min(bs.Min, v)
			bs.Max = math.Max(bs.Max, v)
			sum += v
			bs.Valid++
		}
		if bs.Valid > 0 {
			bs.Mean = sum / float64(bs.Valid)
		} else {
			bs.Min, bs.Max = 0, 0
		}
		s.Stats = append(s.Stats, bs)
	}
	return s
}

func newArrayCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "array NAME",
		Short: "Load the raster files of a dataset and print their shape and band statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDataset(cmd, args[0], func(ad dataset.Adapter) error {
				rasters, err := dataset.ToArray(cmd.Context(), ad, file)
				if err != nil {
					return err
				}
				out := make([]rasterSummary, 0, len(rasters))
				for _, r := range rasters {
					out = append(out, summarizeRaster(r))
				}
				return a.printJSON(out)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "single file (default all .tif/.tiff files)")
	return cmd
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Authenticate and show the token expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			cred, err := c.Authenticate(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(map[string]any{
				"username":   c.Config().Auth.Username,
				"audience":   c.Config().Auth.Audience,
				"expires_at": cred.ExpiresAt.UTC().Format(time.RFC3339),
			})
		},
	}
}

func newBackendsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the supported storage backends",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return a.printJSON(c.Backends())
		},
	}
}

func newMCPCmd(a *app) *cobra.Command {
	var allow, deny []string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the catalog tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			s, err := server.New(cmd.Context(), c, server.WithToolFilter(allow, deny))
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer func() { _ = s.Close() }()
			return s.Run(cmd.Context())
		},
	}
	cmd.Flags().StringSliceVar(&allow, "allow-tools", nil, "only list tools matching these glob patterns")
	cmd.Flags().StringSliceVar(&deny, "deny-tools", nil, "hide tools matching these glob patterns")
	return cmd
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.out, "datalib version %s\n", server.Version)
			return err
		},
	}
}
