package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"

	"github.com/aluiziolira/go-scrape-storefront/models"
)

var testSchema = models.Schema{"page", "listing_counter", "title", "url"}

func testBatch(name string) Batch {
	return Batch{
		Name:   name,
		Kind:   KindSearch,
		Schema: testSchema,
		Records: []models.Record{
			{"page": int64(1), "listing_counter": int64(1), "title": "Half, Life", "url": "https://store.test/app/70/Half_Life/"},
			{"page": int64(1), "listing_counter": int64(2), "title": nil, "url": nil},
		},
	}
}

func TestFileStoreCSV(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "csv", nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	written, err := store.Persist(context.Background(), testBatch("search_results_page_1_20240101_120000"))
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if !written {
		t.Fatalf("written = false, want true")
	}

	f, err := os.Open(filepath.Join(dir, "search_results_page_1_20240101_120000.csv"))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	want := [][]string{
		{"page", "listing_counter", "title", "url"},
		{"1", "1", "Half, Life", "https://store.test/app/70/Half_Life/"},
		{"1", "2", "", ""},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStoreSkipsExistingBatch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "csv", nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	batch := testBatch("p1_l1_Half_Life")

	if written, err := store.Persist(context.Background(), batch); err != nil || !written {
		t.Fatalf("first persist = %v, %v; want true, nil", written, err)
	}
	path := filepath.Join(dir, "p1_l1_Half_Life.csv")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}

	batch.Records = batch.Records[:1]
	if written, err := store.Persist(context.Background(), batch); err != nil || written {
		t.Fatalf("second persist = %v, %v; want false, nil", written, err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("existing file was rewritten")
	}
}

func TestFileStoreJSONLKeepsSchemaOrder(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "json", nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, err := store.Persist(context.Background(), testBatch("p2_l3_Portal")); err != nil {
		t.Fatalf("persist: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "p2_l3_Portal.jsonl"))
	if err != nil {
		t.Fatalf("open jsonl: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	want := `{"page":1,"listing_counter":2,"title":null,"url":null}`
	if lines[1] != want {
		t.Fatalf("line = %s, want %s", lines[1], want)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if decoded["title"] != "Half, Life" {
		t.Fatalf("title = %v, want Half, Life", decoded["title"])
	}
}

func TestFileStoreGzip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "csv.gz", nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, err := store.Persist(context.Background(), testBatch("p1_l1_Half_Life")); err != nil {
		t.Fatalf("persist: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "p1_l1_Half_Life.csv.gz"))
	if err != nil {
		t.Fatalf("open gzip: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer zr.Close()

	rows, err := csv.NewReader(zr).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if diff := cmp.Diff([]string(testSchema), rows[0]); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStoreDualWritesBoth(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "dual", nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, err := store.Persist(context.Background(), testBatch("p1_l1_Half_Life")); err != nil {
		t.Fatalf("persist: %v", err)
	}
	for _, name := range []string{"p1_l1_Half_Life.csv", "p1_l1_Half_Life.jsonl"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Fatalf("temporary file left behind: %s", entry.Name())
		}
	}
}

func TestFileStoreExists(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "csv", nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, err := store.Persist(context.Background(), testBatch("search_results_page_4_20240101_120000")); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "search_results_page_5_20240101_120000.parquet"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write foreign file: %v", err)
	}

	tests := []struct {
		prefix string
		want   bool
	}{
		{"search_results_page_4_", true},
		{"search_results_page_40_", false},
		{"search_results_page_5_", false},
		{"p1_l1_", false},
	}
	for _, tt := range tests {
		got, err := store.Exists(context.Background(), tt.prefix)
		if err != nil {
			t.Fatalf("exists %s: %v", tt.prefix, err)
		}
		if got != tt.want {
			t.Fatalf("exists %s = %v, want %v", tt.prefix, got, tt.want)
		}
	}
}

func TestNewFileStoreRejectsUnknownFormat(t *testing.T) {
	if _, err := NewFileStore(t.TempDir(), "parquet", nil); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"Windows, macOS", "Windows, macOS"},
		{int64(1234), "1234"},
		{7, "7"},
		{0.5, "0.5"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Fatalf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
