package models

import "time"

// ScrapeResult holds the overall result of a scraping run.
type ScrapeResult struct {
	StartTime      time.Time
	EndTime        time.Time
	PageCount      int
	ListingCount   int
	RecordCount    int
	FailureRecords int
	SkippedWrites  int
	SkippedPages   int
	RequestCount   int
	RetryCount     int
	ErrorCount     int
	FailedURLs     []string
	ErrorsByType   map[string]int
	FieldMisses    map[string]int
}

// NewScrapeResult returns a result with its maps initialised and StartTime set.
func NewScrapeResult() *ScrapeResult {
	return &ScrapeResult{
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
		FieldMisses:  make(map[string]int),
	}
}
