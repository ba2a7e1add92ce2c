package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/aluiziolira/go-scrape-storefront/models"
)

type mockSink struct {
	mu       sync.Mutex
	batches  map[string]Batch
	err      error
	closed   bool
	existing []models.ListingTarget
}

func newMockSink() *mockSink {
	return &mockSink{batches: make(map[string]Batch)}
}

func (m *mockSink) Persist(_ context.Context, batch Batch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.batches[batch.Name]; ok {
		return false, nil
	}
	m.batches[batch.Name] = batch
	return true, nil
}

func (m *mockSink) Exists(_ context.Context, prefix string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range m.batches {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSink) Targets(context.Context) ([]models.ListingTarget, error) {
	return m.existing, nil
}

func (m *mockSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func TestPipelinePersistConformsAndCounts(t *testing.T) {
	sink := newMockSink()
	p := NewPipeline(sink, nil)

	batch := Batch{
		Name:     "p1_l1_Portal",
		Kind:     KindListing,
		Schema:   models.Schema{"a", "b"},
		Records:  []models.Record{{"a": "x", "extra": 1}},
		Failures: 0,
	}
	if written, err := p.Persist(context.Background(), batch); err != nil || !written {
		t.Fatalf("persist = %v, %v; want true, nil", written, err)
	}
	if written, err := p.Persist(context.Background(), batch); err != nil || written {
		t.Fatalf("second persist = %v, %v; want false, nil", written, err)
	}

	failed := Batch{
		Name:     "p1_l2_Unknown",
		Kind:     KindListing,
		Schema:   models.Schema{"a", "b"},
		Records:  []models.Record{models.Schema{"a", "b"}.Null()},
		Failures: 1,
	}
	if _, err := p.Persist(context.Background(), failed); err != nil {
		t.Fatalf("persist failure batch: %v", err)
	}

	got := sink.batches["p1_l1_Portal"].Records
	want := []models.Record{{"a": "x", "b": nil}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stored records mismatch (-want +got):\n%s", diff)
	}

	stats := p.Stats()
	wantStats := Stats{Written: 2, Skipped: 1, Records: 2, FailureRecords: 1}
	if diff := cmp.Diff(wantStats, stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestPipelinePersistValidation(t *testing.T) {
	tests := []struct {
		name  string
		batch Batch
	}{
		{name: "empty name", batch: Batch{Schema: models.Schema{"a"}}},
		{name: "empty schema", batch: Batch{Name: "x"}},
		{name: "duplicate column", batch: Batch{Name: "x", Schema: models.Schema{"a", "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(newMockSink(), nil)
			if _, err := p.Persist(context.Background(), tt.batch); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestPipelinePropagatesStorageError(t *testing.T) {
	sink := newMockSink()
	sink.err = &StorageError{Op: "write", Batch: "p1_l1_x", Err: errors.New("disk full")}
	p := NewPipeline(sink, nil)

	_, err := p.Persist(context.Background(), Batch{Name: "p1_l1_x", Schema: models.Schema{"a"}})
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if storageErr.Op != "write" {
		t.Fatalf("op = %q, want write", storageErr.Op)
	}
}

func TestPipelineClose(t *testing.T) {
	sink := newMockSink()
	p := NewPipeline(sink, nil)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !sink.closed {
		t.Fatalf("sink not closed")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	_, err := p.Persist(context.Background(), Batch{Name: "x", Schema: models.Schema{"a"}})
	if !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func TestLoadListingTargets(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	csvStore, err := NewFileStore(dir, "dual", nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	gzStore, err := NewFileStore(dir, "csv.gz", nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	page2 := Batch{
		Name:   "search_results_page_2_20240101_120000",
		Kind:   KindSearch,
		Schema: models.SearchResultSchema,
		Records: []models.Record{
			{"page": int64(2), "listing_counter": int64(2), "url": "https://store.test/app/2/B/"},
			{"page": int64(2), "listing_counter": int64(1), "url": "https://store.test/app/1/A/"},
			{"page": int64(2), "listing_counter": nil, "url": nil},
		},
	}
	page1 := Batch{
		Name:   "search_results_page_1_20240101_115900",
		Kind:   KindSearch,
		Schema: models.SearchResultSchema,
		Records: []models.Record{
			{"page": int64(1), "listing_counter": int64(1), "url": "https://store.test/app/9/Z/"},
		},
	}
	if _, err := csvStore.Persist(ctx, page2); err != nil {
		t.Fatalf("persist page 2: %v", err)
	}
	if _, err := gzStore.Persist(ctx, page1); err != nil {
		t.Fatalf("persist page 1: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "p1_l1_Z.csv"), []byte("page_num,listing_num\n1,1\n"), 0o644); err != nil {
		t.Fatalf("write listing file: %v", err)
	}

	got, err := LoadListingTargets(dir)
	if err != nil {
		t.Fatalf("load targets: %v", err)
	}
	want := []models.ListingTarget{
		{Page: 1, Listing: 1, URL: "https://store.test/app/9/Z/"},
		{Page: 2, Listing: 1, URL: "https://store.test/app/1/A/"},
		{Page: 2, Listing: 2, URL: "https://store.test/app/2/B/"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadListingTargetsMissingDir(t *testing.T) {
	got, err := LoadListingTargets(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("load targets: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("targets = %v, want none", got)
	}
}

func TestLoadListingTargetsRejectsForeignCSV(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "search_results_page_1_x.csv"), []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := LoadListingTargets(dir); err == nil {
		t.Fatalf("expected error for csv without url column")
	}
}

func TestMongoDocumentOrder(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	batch := Batch{Name: "p1_l1_Portal", Kind: KindListing, Schema: models.Schema{"Title", "page_num"}}
	got := document(batch, models.Record{"page_num": int64(1), "Title": "Portal"}, at)
	want := bson.D{
		{Key: "_batch", Value: "p1_l1_Portal"},
		{Key: "_kind", Value: KindListing},
		{Key: "_written_at", Value: at},
		{Key: "Title", Value: "Portal"},
		{Key: "page_num", Value: int64(1)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}
