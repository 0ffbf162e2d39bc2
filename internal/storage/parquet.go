package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	local "github.com/xitongsys/parquet-go-source/local"
	pw "github.com/xitongsys/parquet-go/writer"

	"github.com/JonMunkholm/tidycsv/internal/core"
)

// parquetParallelism is the number of goroutines the parquet writer uses.
const parquetParallelism = 4

type parquetField struct {
	Tag string `json:"Tag"`
}

type parquetSchema struct {
	Tag    string         `json:"Tag"`
	Fields []parquetField `json:"Fields"`
}

// parquetColumn maps a table column onto a parquet field.
type parquetColumn struct {
	source string
	field  string
	kind   core.Kind
}

// parquetColumns derives field names safe for the parquet tag syntax
// (no ',' or '=') and unique after sanitizing.
func parquetColumns(t *core.Table) []parquetColumn {
	cols := make([]parquetColumn, len(t.Columns))
	used := make(map[string]struct{}, len(t.Columns))
	for i, c := range t.Columns {
		field := parquetFieldName(c.Name)
		if _, dup := used[field]; dup {
			for n := 1; ; n++ {
				candidate := field + "_" + strconv.Itoa(n)
				if _, taken := used[candidate]; !taken {
					field = candidate
					break
				}
			}
		}
		used[field] = struct{}{}
		cols[i] = parquetColumn{source: c.Name, field: field, kind: c.Kind}
	}
	return cols
}

func parquetFieldName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if isAlnum(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "c_" + s
	}
	return s
}

func parquetSchemaJSON(cols []parquetColumn) (string, error) {
	sc := parquetSchema{Tag: "name=schema, repetitiontype=REQUIRED"}
	for _, c := range cols {
		tag := "name=" + c.field + ", repetitiontype=OPTIONAL, type="
		switch c.kind {
		case core.KindFloat:
			tag += "DOUBLE"
		case core.KindInt:
			tag += "INT64"
		case core.KindBool:
			tag += "BOOLEAN"
		default:
			tag += "UTF8"
		}
		sc.Fields = append(sc.Fields, parquetField{Tag: tag})
	}
	b, err := json.Marshal(sc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// parquetValue coerces a record value to the Go type matching the field's
// physical type. Values that do not fit are written as null.
func parquetValue(kind core.Kind, v any) any {
	switch kind {
	case core.KindInt:
		if n, ok := v.(int64); ok {
			return n
		}
		return nil
	case core.KindFloat:
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
		return nil
	case core.KindBool:
		if b, ok := v.(bool); ok {
			return b
		}
		return nil
	default:
		if v == nil {
			return nil
		}
		return fmt.Sprint(v)
	}
}

// WriteParquet writes t to path as a Parquet file.
func WriteParquet(path string, t *core.Table) (err error) {
	cols := parquetColumns(t)
	schema, err := parquetSchemaJSON(cols)
	if err != nil {
		return fmt.Errorf("parquet schema: %w", err)
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("parquet file: %w", err)
	}
	writer, err := pw.NewJSONWriter(schema, fw, parquetParallelism)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet writer init: %w", err)
	}
	defer func() {
		if stopErr := writer.WriteStop(); stopErr != nil && err == nil {
			err = fmt.Errorf("parquet flush: %w", stopErr)
		}
		if closeErr := fw.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for i, rec := range core.ToRecords(t, -1) {
		row := make(map[string]any, len(cols))
		for _, c := range cols {
			row[c.field] = parquetValue(c.kind, rec[c.source])
		}
		line, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("parquet encode row %d: %w", i+1, err)
		}
		if err := writer.Write(string(line)); err != nil {
			return fmt.Errorf("parquet write row %d: %w", i+1, err)
		}
	}
	return nil
}

// tempFile removes itself when closed.
type tempFile struct {
	*os.File
}

func (f tempFile) Close() error {
	err := f.File.Close()
	_ = os.Remove(f.Name())
	return err
}

// ExportParquet converts a cleaned artifact to Parquet in a temporary file.
// The returned reader deletes the file when closed.
func (s *Store) ExportParquet(ctx context.Context, name string) (io.ReadSeekCloser, core.ArtifactInfo, error) {
	t, err := s.loadCleaned(ctx, name)
	if err != nil {
		return nil, core.ArtifactInfo{}, err
	}

	tmp, err := os.CreateTemp("", "tidycsv-*.parquet")
	if err != nil {
		return nil, core.ArtifactInfo{}, fmt.Errorf("parquet temp file: %w", err)
	}
	path := tmp.Name()
	_ = tmp.Close()

	if err := WriteParquet(path, t); err != nil {
		_ = os.Remove(path)
		return nil, core.ArtifactInfo{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, core.ArtifactInfo{}, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, core.ArtifactInfo{}, err
	}

	info := core.ArtifactInfo{
		Name:       strings.TrimSuffix(name, ".csv") + ".parquet",
		Size:       stat.Size(),
		ModifiedAt: stat.ModTime(),
	}
	return tempFile{f}, info, nil
}
