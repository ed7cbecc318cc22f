package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/DHI/gwc-datalib/pkg/raster"
	"github.com/DHI/gwc-datalib/pkg/table"
)

// FetchFunc downloads the bytes of one file.
type FetchFunc func(ctx context.Context, file File) ([]byte, error)

// ListFunc queries a backend for the dataset files.
type ListFunc func(ctx context.Context) ([]File, error)

// Listing memoizes a file listing. A failed query is not memoized.
type Listing struct {
	list ListFunc

	mu    sync.Mutex
	files []File
	done  bool
}

// NewListing wraps list.
func NewListing(list ListFunc) *Listing {
	return &Listing{list: list}
}

// Files returns the listing, querying the backend on first use only.
func (l *Listing) Files(ctx context.Context) ([]File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return l.files, nil
	}
	files, err := l.list(ctx)
	if err != nil {
		return nil, err
	}
	l.files, l.done = files, true
	return files, nil
}

// ReadTable selects tabular files, downloads them in listing order and
// returns a single table. CSV files share one schema inferred across all of
// them, with columns matched by header name.
func ReadTable(ctx context.Context, files []File, name string, fetch FetchFunc) (arrow.Table, error) {
	selected, err := Select(files, name, TableExtensions)
	if err != nil {
		return nil, err
	}

	contents := make([][]byte, len(selected))
	var csvDocs [][]byte
	for i, f := range selected {
		data, err := fetch(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("downloading %s: %w", f.Name, err)
		}
		contents[i] = data
		if isCSV(f.Name) {
			csvDocs = append(csvDocs, data)
		}
	}

	var schema *arrow.Schema
	if len(csvDocs) > 0 {
		if schema, err = table.InferSchema(csvDocs...); err != nil {
			return nil, err
		}
	}

	tables := make([]arrow.Table, 0, len(selected))
	defer func() {
		for _, t := range tables {
			t.Release()
		}
	}()
	for i, f := range selected {
		tbl, err := table.Decode(ctx, f.Name, contents[i], schema)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		tables = append(tables, tbl)
		slog.Debug("read table file", "file", f.Name, "rows", tbl.NumRows())
	}

	if len(tables) == 1 {
		tbl := tables[0]
		tables = nil
		return tbl, nil
	}
	return table.Concat(tables...)
}

// ReadArrays selects raster files and decodes them in listing order.
func ReadArrays(ctx context.Context, files []File, name string, fetch FetchFunc) ([]*raster.Raster, error) {
	selected, err := Select(files, name, ArrayExtensions)
	if err != nil {
		return nil, err
	}

	out := make([]*raster.Raster, 0, len(selected))
	for _, f := range selected {
		data, err := fetch(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("downloading %s: %w", f.Name, err)
		}
		r, err := raster.Decode(f.Name, data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
		slog.Debug("read raster file", "file", f.Name, "width", r.Width, "height", r.Height, "bands", r.Bands)
	}
	return out, nil
}

func isCSV(name string) bool {
	return strings.EqualFold(path.Ext(name), ".csv")
}
