package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/aluiziolira/go-scrape-storefront/models"
)

// Extensions of the file formats.
const (
	extCSV   = ".csv"
	extCSVGz = ".csv.gz"
	extJSONL = ".jsonl"
)

// formatExtensions maps an output format to the files written per batch.
var formatExtensions = map[string][]string{
	"csv":    {extCSV},
	"csv.gz": {extCSVGz},
	"json":   {extJSONL},
	"dual":   {extCSV, extJSONL},
}

// FileStore writes every batch to its own file(s) in a directory.
type FileStore struct {
	dir    string
	exts   []string
	logger *slog.Logger
}

// NewFileStore creates the output directory and returns a store writing the
// given format: csv, csv.gz, json (JSON lines) or dual (csv and JSON lines).
func NewFileStore(dir, format string, logger *slog.Logger) (*FileStore, error) {
	exts, ok := formatExtensions[format]
	if !ok {
		return nil, fmt.Errorf("unsupported file format %q", format)
	}
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		dir:    dir,
		exts:   exts,
		logger: logger.With("component", "file_store"),
	}, nil
}

// Path returns the file path of a batch name for one extension.
func (fs *FileStore) Path(name, ext string) string {
	return filepath.Join(fs.dir, name+ext)
}

// Persist implements Sink. A batch is skipped when any of its files exists.
func (fs *FileStore) Persist(ctx context.Context, batch Batch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	for _, ext := range fs.exts {
		path := fs.Path(batch.Name, ext)
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return false, &StorageError{Op: "stat", Batch: batch.Name, Err: err}
		}
	}

	for _, ext := range fs.exts {
		path := fs.Path(batch.Name, ext)
		if err := writeFile(path, func(w io.Writer) error {
			return encode(w, ext, batch.Schema, batch.Records)
		}); err != nil {
			return false, &StorageError{Op: "write", Batch: batch.Name, Err: err}
		}
		fs.logger.Debug("file written", slog.String("path", path), slog.Int("records", len(batch.Records)))
	}
	return true, nil
}

// Exists implements Sink.
func (fs *FileStore) Exists(_ context.Context, prefix string) (bool, error) {
	entries, err := os.ReadDir(fs.dir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "list", Batch: prefix, Err: err}
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		for _, ext := range fs.exts {
			if strings.HasSuffix(name, ext) {
				return true, nil
			}
		}
	}
	return false, nil
}

// Targets implements Sink.
func (fs *FileStore) Targets(_ context.Context) ([]models.ListingTarget, error) {
	return LoadListingTargets(fs.dir)
}

// Close implements Sink. Files are closed after every write.
func (fs *FileStore) Close() error {
	return nil
}

// writeFile writes through a temporary file and renames it into place, so
// an interrupted write never leaves a file that would be taken as done.
func writeFile(path string, fill func(io.Writer) error) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	buffer := bufio.NewWriter(tmp)
	if err := fill(buffer); err != nil {
		tmp.Close()
		return err
	}
	if err := buffer.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

func encode(w io.Writer, ext string, schema models.Schema, records []models.Record) error {
	switch ext {
	case extCSV:
		return writeCSV(w, schema, records)
	case extCSVGz:
		zw := gzip.NewWriter(w)
		if err := writeCSV(zw, schema, records); err != nil {
			zw.Close()
			return err
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("close gzip stream: %w", err)
		}
		return nil
	case extJSONL:
		return writeJSONL(w, schema, records)
	}
	return fmt.Errorf("unsupported extension %q", ext)
}

// writeCSV writes a header in schema order followed by one row per record.
// Null cells are written empty.
func writeCSV(w io.Writer, schema models.Schema, records []models.Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(schema); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	row := make([]string, len(schema))
	for _, rec := range records {
		for i, v := range schema.Row(rec) {
			row[i] = formatValue(v)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// writeJSONL writes one JSON object per record with keys in schema order.
func writeJSONL(w io.Writer, schema models.Schema, records []models.Record) error {
	var line bytes.Buffer
	for _, rec := range records {
		line.Reset()
		line.WriteByte('{')
		for i, k := range schema {
			if i > 0 {
				line.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("encode json key %q: %w", k, err)
			}
			value, err := json.Marshal(rec[k])
			if err != nil {
				return fmt.Errorf("encode json value of %q: %w", k, err)
			}
			line.Write(key)
			line.WriteByte(':')
			line.Write(value)
		}
		line.WriteString("}\n")
		if _, err := w.Write(line.Bytes()); err != nil {
			return fmt.Errorf("write json record: %w", err)
		}
	}
	return nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
