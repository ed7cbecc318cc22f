package table

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

var (
	// ErrSchemaMismatch is returned when tables with different schemas are
	// concatenated.
	ErrSchemaMismatch = errors.New("table schemas differ")

	// ErrUnsupportedFormat is returned for file types with no table reader.
	ErrUnsupportedFormat = errors.New("unsupported table format")
)

// ReadParquet reads a whole Parquet file.
func ReadParquet(ctx context.Context, data []byte, mem memory.Allocator) (arrow.Table, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	tbl, err := pqarrow.ReadTable(ctx, bytes.NewReader(data), parquet.NewReaderProperties(mem),
		pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("reading parquet: %w", err)
	}
	return tbl, nil
}

// Decode parses one file by extension. schema only applies to CSV files and
// may be nil.
func Decode(ctx context.Context, name string, data []byte, schema *arrow.Schema) (arrow.Table, error) {
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".csv":
		return ReadCSV(bytes.NewReader(data), schema, nil)
	case ".parquet":
		return ReadParquet(ctx, data, nil)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// Concat appends the rows of tables in order. Every schema must equal the
// first one. The inputs are left to the caller to release.
func Concat(tables ...arrow.Table) (arrow.Table, error) {
	if len(tables) == 0 {
		return nil, errors.New("concat: no tables")
	}
	schema := tables[0].Schema()
	for i, t := range tables[1:] {
		if !t.Schema().Equal(schema) {
			return nil, fmt.Errorf("%w: table %d has %s, want %s", ErrSchemaMismatch, i+1, t.Schema(), schema)
		}
	}

	cols := make([]arrow.Column, schema.NumFields())
	for i := range cols {
		var chunks []arrow.Array
		for _, t := range tables {
			chunks = append(chunks, t.Column(i).Data().Chunks()...)
		}
		field := schema.Field(i)
		chunked := arrow.NewChunked(field.Type, chunks)
		cols[i] = *arrow.NewColumn(field, chunked)
		chunked.Release()
	}
	defer func() {
		for i := range cols {
			cols[i].Release()
		}
	}()
	return array.NewTable(schema, cols, -1), nil
}
