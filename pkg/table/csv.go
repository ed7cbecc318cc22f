// Package table materializes dataset files as Arrow tables.
package table

import (
	"bytes"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ReadCSV parses a CSV document with a header row. With a nil schema the
// column types are inferred from every row. Otherwise the header columns are
// matched to schema fields by name: fields the document lacks are null, and
// a header column outside schema is ErrSchemaMismatch.
func ReadCSV(r io.Reader, schema *arrow.Schema, mem memory.Allocator) (arrow.Table, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if schema == nil {
		schema, err = InferSchema(data)
	} else {
		data, err = conform(data, schema)
	}
	if err != nil {
		return nil, err
	}

	rdr := csv.NewReader(bytes.NewReader(data), schema,
		csv.WithHeader(true),
		csv.WithChunk(-1),
		csv.WithNullReader(true, ""),
		csv.WithAllocator(mem))
	defer rdr.Release()

	var recs []arrow.Record
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	for rdr.Next() {
		if err := rdr.Err(); err != nil {
			break
		}
		rec := rdr.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	if err := rdr.Err(); err != nil {
		if errors.Is(err, csv.ErrMismatchFields) {
			return nil, fmt.Errorf("%w: csv header does not match %d columns", ErrSchemaMismatch, schema.NumFields())
		}
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	return array.NewTableFromRecords(rdr.Schema(), recs), nil
}

type columnKind int

const (
	kindInt columnKind = iota
	kindFloat
	kindBool
	kindString
)

// InferSchema derives one schema for a set of CSV documents. Columns are
// matched by header name and ordered by first appearance. Per document a
// column takes the first of int64, float64 and bool that every non-empty
// value parses as; across documents int64 widens to float64 and any other
// disagreement to string. Columns with no values anywhere are strings.
func InferSchema(docs ...[]byte) (*arrow.Schema, error) {
	var names []string
	index := make(map[string]int)
	var kinds []columnKind
	var seen []bool

	for _, data := range docs {
		header, docKinds, docSeen, err := inferColumns(data)
		if err != nil {
			return nil, err
		}
		for i, name := range header {
			j, ok := index[name]
			if !ok {
				j = len(names)
				index[name] = j
				names = append(names, name)
				kinds = append(kinds, kindString)
				seen = append(seen, false)
			}
			switch {
			case !docSeen[i]:
			case !seen[j]:
				kinds[j], seen[j] = docKinds[i], true
			default:
				kinds[j] = widen(kinds[j], docKinds[i])
			}
		}
	}
	if len(names) == 0 {
		return nil, errors.New("parsing csv: missing header row")
	}

	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		fields[i] = arrow.Field{Name: name, Type: kinds[i].dataType(), Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

// inferColumns reports the header and, per column, its narrowest kind and
// whether it holds any non-empty value.
func inferColumns(data []byte) ([]string, []columnKind, []bool, error) {
	rows, err := stdcsv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parsing csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, nil, errors.New("parsing csv: missing header row")
	}

	header := rows[0]
	// candidates[i][k] stays true while every value of column i parses as k.
	candidates := make([][kindString]bool, len(header))
	seen := make([]bool, len(header))
	for i := range candidates {
		candidates[i] = [kindString]bool{true, true, true}
	}
	for _, row := range rows[1:] {
		for i, v := range row {
			if v == "" {
				continue
			}
			seen[i] = true
			for k := kindInt; k < kindString; k++ {
				if candidates[i][k] && !parses(k, v) {
					candidates[i][k] = false
				}
			}
		}
	}

	kinds := make([]columnKind, len(header))
	for i := range header {
		kinds[i] = kindString
		for k := kindInt; k < kindString; k++ {
			if candidates[i][k] {
				kinds[i] = k
				break
			}
		}
	}
	return header, kinds, seen, nil
}

func widen(a, b columnKind) columnKind {
	switch {
	case a == b:
		return a
	case (a == kindInt && b == kindFloat) || (a == kindFloat && b == kindInt):
		return kindFloat
	default:
		return kindString
	}
}

// conform rewrites data so its columns follow schema order. Documents whose
// header already matches are returned unchanged.
func conform(data []byte, schema *arrow.Schema) ([]byte, error) {
	rows, err := stdcsv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("parsing csv: missing header row")
	}
	header := rows[0]

	names := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}
	if slices.Equal(header, names) {
		return data, nil
	}

	// src[i] is the document column feeding schema field i, or -1.
	src := make([]int, len(names))
	for i, name := range names {
		src[i] = slices.Index(header, name)
	}
	for _, name := range header {
		if !slices.Contains(names, name) {
			return nil, fmt.Errorf("%w: csv column %q is not in %s", ErrSchemaMismatch, name, schema)
		}
	}

	var buf bytes.Buffer
	w := stdcsv.NewWriter(&buf)
	out := make([]string, len(names))
	_ = w.Write(names)
	for _, row := range rows[1:] {
		for i, j := range src {
			out[i] = ""
			if j >= 0 && j < len(row) {
				out[i] = row[j]
			}
		}
		_ = w.Write(out)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("reordering csv: %w", err)
	}
	return buf.Bytes(), nil
}

func parses(k columnKind, v string) bool {
	var err error
	switch k {
	case kindInt:
		_, err = strconv.ParseInt(v, 10, 64)
	case kindFloat:
		_, err = strconv.ParseFloat(v, 64)
	case kindBool:
		_, err = strconv.ParseBool(v)
	}
	return err == nil
}

func (k columnKind) dataType() arrow.DataType {
	switch k {
	case kindInt:
		return arrow.PrimitiveTypes.Int64
	case kindFloat:
		return arrow.PrimitiveTypes.Float64
	case kindBool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

// WriteCSV writes tbl with a header row. head limits the number of data rows
// when positive.
func WriteCSV(w io.Writer, tbl arrow.Table, head int64) error {
	cw := csv.NewWriter(w, tbl.Schema(), csv.WithHeader(true), csv.WithNullWriter(""))
	tr := array.NewTableReader(tbl, 0)
	defer tr.Release()

	remaining := head
	for tr.Next() {
		rec := tr.Record()
		if head > 0 {
			if remaining <= 0 {
				break
			}
			if rec.NumRows() > remaining {
				rec = rec.NewSlice(0, remaining)
				defer rec.Release()
			}
			remaining -= rec.NumRows()
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing csv: %w", err)
		}
	}
	if err := cw.Flush(); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}
