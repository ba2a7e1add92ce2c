package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/aluiziolira/go-scrape-storefront/models"
)

// SearchBatchPrefix starts the name of every persisted search-result batch.
const SearchBatchPrefix = "search_results_page_"

// LoadListingTargets reads every search-result file in dir (csv, csv.gz or
// JSON lines) and returns the listing targets they record, ordered by page
// and listing counter. Rows without a URL are dropped. When a page was
// written in several formats its rows are only returned once.
func LoadListingTargets(dir string) ([]models.ListingTarget, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	seen := make(map[[2]int]struct{})
	var targets []models.ListingTarget
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, SearchBatchPrefix) {
			continue
		}

		var read func(io.Reader) ([]models.ListingTarget, error)
		switch {
		case strings.HasSuffix(name, extCSVGz):
			read = readCSVGzTargets
		case strings.HasSuffix(name, extCSV):
			read = readCSVTargets
		case strings.HasSuffix(name, extJSONL):
			read = readJSONLTargets
		default:
			continue
		}

		found, err := readTargetsFile(filepath.Join(dir, name), read)
		if err != nil {
			return nil, err
		}
		for _, t := range found {
			key := [2]int{t.Page, t.Listing}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			targets = append(targets, t)
		}
	}

	sort.Slice(targets, func(i, j int) bool {
		if targets[i].Page != targets[j].Page {
			return targets[i].Page < targets[j].Page
		}
		return targets[i].Listing < targets[j].Listing
	})
	return targets, nil
}

func readTargetsFile(path string, read func(io.Reader) ([]models.ListingTarget, error)) ([]models.ListingTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	targets, err := read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return targets, nil
}

func readCSVGzTargets(r io.Reader) ([]models.ListingTarget, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()
	return readCSVTargets(zr)
}

func readCSVTargets(r io.Reader) ([]models.ListingTarget, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[col] = i
	}
	for _, col := range []string{"page", "listing_counter", "url"} {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("csv header lacks column %q", col)
		}
	}

	var targets []models.ListingTarget
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if t, ok := newTarget(row[index["page"]], row[index["listing_counter"]], row[index["url"]]); ok {
			targets = append(targets, t)
		}
	}
	return targets, nil
}

func readJSONLTargets(r io.Reader) ([]models.ListingTarget, error) {
	decoder := json.NewDecoder(r)
	var targets []models.ListingTarget
	for {
		var rec map[string]any
		if err := decoder.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decode json record: %w", err)
		}
		if t, ok := newTarget(rec["page"], rec["listing_counter"], rec["url"]); ok {
			targets = append(targets, t)
		}
	}
	return targets, nil
}

func newTarget(page, listing, url any) (models.ListingTarget, bool) {
	p, ok := toInt(page)
	if !ok {
		return models.ListingTarget{}, false
	}
	l, ok := toInt(listing)
	if !ok {
		return models.ListingTarget{}, false
	}
	u, _ := url.(string)
	if u == "" {
		return models.ListingTarget{}, false
	}
	return models.ListingTarget{Page: p, Listing: l, URL: u}, true
}

// toInt accepts the number forms a stored cell comes back as.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}
