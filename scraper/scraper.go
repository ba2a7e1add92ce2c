package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-scrape-storefront/config"
	"github.com/aluiziolira/go-scrape-storefront/extract"
	"github.com/aluiziolira/go-scrape-storefront/models"
	"github.com/aluiziolira/go-scrape-storefront/pace"
	"github.com/aluiziolira/go-scrape-storefront/pipeline"
)

// Timestamp layout carried by search-result batch names.
const batchTimeLayout = "20060102_150405"

// Scraper walks search-result pages and listing pages one at a time and
// hands every extracted batch to the pipeline.
type Scraper struct {
	cfg       *config.Config
	fetcher   Fetcher
	pipeline  *pipeline.Pipeline
	extractor *extract.Extractor
	delayer   pace.Delayer
	limiter   *rate.Limiter
	seen      *lru.Cache[string, struct{}]
	Metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time

	result *models.ScrapeResult
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithDelayer replaces the random delayer used between listings.
func WithDelayer(d pace.Delayer) Option {
	return func(s *Scraper) {
		if d != nil {
			s.delayer = d
		}
	}
}

// WithMetrics sets the metrics bundle. A nil bundle disables metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Scraper) {
		s.Metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scraper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for batch timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScraper builds a runner around fetcher and p.
func NewScraper(cfg *config.Config, fetcher Fetcher, p *pipeline.Pipeline, opts ...Option) (*Scraper, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if p == nil {
		return nil, errors.New("pipeline is required")
	}

	seen, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	s := &Scraper{
		cfg:      cfg,
		fetcher:  fetcher,
		pipeline: p,
		delayer:  pace.NewRandom(0),
		limiter:  rate.NewLimiter(limit, 1),
		seen:     seen,
		Metrics:  NewMetrics(),
		logger:   slog.Default(),
		now:      time.Now,
		result:   models.NewScrapeResult(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scraper")

	extractOpts := []extract.Option{
		extract.WithLogger(s.logger),
		extract.WithMissFunc(s.recordMiss),
	}
	if cfg.SystemRequirements {
		extractOpts = append(extractOpts, extract.WithSystemRequirements())
	}
	s.extractor = extract.NewListingExtractor(extractOpts...)
	return s, nil
}

// Result returns the run summary accumulated so far.
func (s *Scraper) Result() *models.ScrapeResult {
	if counter, ok := s.fetcher.(interface{ Retries() int }); ok {
		s.result.RetryCount = counter.Retries()
	}
	s.result.EndTime = time.Now()
	return s.result
}

// RunSearch walks the search-result pages starting at cfg.StartPage. It
// stops after cfg.MaxPages pages, on the last page, or when the page offers
// no forward movement. Pages already persisted are skipped without a fetch.
// Only storage errors and cancellation end the run with an error.
func (s *Scraper) RunSearch(ctx context.Context) (*models.ScrapeResult, error) {
	page := s.cfg.StartPage
	for n := 0; n < s.cfg.MaxPages; n++ {
		if err := ctx.Err(); err != nil {
			return s.Result(), err
		}

		done, err := s.pipeline.Exists(ctx, fmt.Sprintf("%s%d_", pipeline.SearchBatchPrefix, page))
		if err != nil {
			return s.Result(), err
		}
		if done {
			s.logger.Info("search page already stored, skipping", slog.Int("page", page))
			s.result.SkippedPages++
			s.Metrics.IncPage(pipeline.KindSearch, "skipped")
			page++
			continue
		}

		next, err := s.searchPage(ctx, page)
		if err != nil {
			return s.Result(), err
		}
		if !next {
			break
		}
		page++
	}
	return s.Result(), nil
}

// searchPage scrapes one search page and reports whether the crawl can move
// on to the following page.
func (s *Scraper) searchPage(ctx context.Context, page int) (bool, error) {
	url := extract.SearchURL(s.cfg.SearchURLTemplate, page)
	body, err := s.fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		s.Metrics.IncPage(pipeline.KindSearch, "fetch_failed")
		return true, nil
	}
	s.humanize(ctx, pipeline.KindSearch)

	doc, err := extract.ParseDocument(strings.NewReader(body))
	if err != nil {
		s.logger.Warn("parse search page failed", slog.Int("page", page), slog.Any("error", err))
		doc = nil
	}

	var (
		rows  []models.Record
		found int
	)
	if doc != nil {
		rows, found = extract.ExtractSearchPage(doc, page, s.cfg.ListingURLTemplate)
	} else {
		rows = extract.EmptySearchPage(page)
	}
	batch := pipeline.Batch{
		Name:    fmt.Sprintf("%s%d_%s", pipeline.SearchBatchPrefix, page, s.now().Format(batchTimeLayout)),
		Kind:    pipeline.KindSearch,
		Schema:  models.SearchResultSchema,
		Records: rows,
	}
	if found == 0 {
		batch.Failures = len(rows)
		s.logger.Warn("no listings rendered on search page", slog.Int("page", page))
	}
	if err := s.persist(ctx, batch); err != nil {
		return false, err
	}
	s.result.PageCount++
	s.Metrics.IncPage(pipeline.KindSearch, outcome(found > 0))

	if doc == nil {
		return true, nil
	}
	root := doc.Get(0)
	movement := extract.ReadMovement(root)
	pagination, err := extract.ReadPagination(root)
	if err != nil {
		s.logger.Debug("pagination unavailable", slog.Int("page", page), slog.Any("error", err))
	}
	s.logger.Info("search page scraped",
		slog.Int("page", page),
		slog.Int("listings", found),
		slog.Int("max_page", pagination.MaxPage),
		slog.Bool("can_move_forward", movement.CanMoveForward),
	)

	if !movement.CanMoveForward {
		return false, nil
	}
	if pagination.MaxPage > 0 && page >= pagination.MaxPage {
		return false, nil
	}
	return true, nil
}

// RunListings scrapes every target in order. Targets whose URL was already
// visited in this run, or whose batch is already stored, are skipped.
func (s *Scraper) RunListings(ctx context.Context, targets []models.ListingTarget) (*models.ScrapeResult, error) {
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return s.Result(), err
		}
		if target.URL == "" {
			continue
		}
		if ok, _ := s.seen.ContainsOrAdd(target.URL, struct{}{}); ok {
			s.logger.Debug("duplicate listing url", slog.String("url", target.URL))
			s.Metrics.IncPage(pipeline.KindListing, "duplicate")
			continue
		}

		done, err := s.pipeline.Exists(ctx, listingPrefix(target))
		if err != nil {
			return s.Result(), err
		}
		if done {
			s.logger.Info("listing already stored, skipping",
				slog.Int("page", target.Page),
				slog.Int("listing", target.Listing),
			)
			s.result.SkippedPages++
			s.Metrics.IncPage(pipeline.KindListing, "skipped")
			continue
		}

		if err := s.listing(ctx, target); err != nil {
			return s.Result(), err
		}
	}
	return s.Result(), nil
}

// Crawl runs the search stage and then scrapes every listing recorded in
// the stored search batches, including those stored by earlier runs.
func (s *Scraper) Crawl(ctx context.Context) (*models.ScrapeResult, error) {
	if _, err := s.RunSearch(ctx); err != nil {
		return s.Result(), err
	}
	targets, err := s.pipeline.Targets(ctx)
	if err != nil {
		return s.Result(), fmt.Errorf("load listing targets: %w", err)
	}
	s.logger.Info("listing targets loaded", slog.Int("count", len(targets)))
	return s.RunListings(ctx, targets)
}

func (s *Scraper) listing(ctx context.Context, target models.ListingTarget) error {
	if err := s.delayer.Pause(ctx, s.cfg.DelayMin, s.cfg.DelayMax); err != nil {
		return err
	}

	body, err := s.fetch(ctx, target.URL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.Metrics.IncPage(pipeline.KindListing, "fetch_failed")
		return nil
	}
	s.humanize(ctx, pipeline.KindListing)

	doc, err := extract.ParseDocument(strings.NewReader(body))
	if err != nil {
		s.logger.Warn("parse listing failed", slog.String("url", target.URL), slog.Any("error", err))
		doc = nil
	}

	class := extract.ClassifyListing(doc)
	if class.Kind == extract.KindCollection {
		s.logger.Info("listing is a collection, skipping",
			slog.String("url", target.URL),
			slog.String("heading", class.Heading),
		)
		s.Metrics.IncPage(pipeline.KindListing, "collection")
		return nil
	}

	if class.Kind != extract.KindProduct {
		s.logger.Warn("listing is not a product page, leaving it for the next run", slog.String("url", target.URL))
		s.recordFailure(target.URL, unrecognizedLabel)
		s.Metrics.IncPage(pipeline.KindListing, unrecognizedLabel)
		return nil
	}

	rec, fallback := s.extractor.Extract(doc)
	rec["page_num"] = int64(target.Page)
	rec["listing_num"] = int64(target.Listing)

	slug := class.Slug
	if slug == "" {
		slug = "unknown"
	}
	batch := pipeline.Batch{
		Name:    listingPrefix(target) + slug,
		Kind:    pipeline.KindListing,
		Schema:  s.extractor.Schema().With(models.ListingFileColumns...),
		Records: []models.Record{rec},
	}
	if fallback {
		batch.Failures = 1
	}
	if err := s.persist(ctx, batch); err != nil {
		return err
	}
	s.result.ListingCount++
	s.Metrics.IncPage(pipeline.KindListing, outcome(!fallback))
	return nil
}

// fetch waits for the rate limiter and fetches url. Failures are recorded
// in the result and returned.
func (s *Scraper) fetch(ctx context.Context, url string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	s.result.RequestCount++
	body, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		label := errorTypeLabel(err)
		s.recordFailure(url, label)
		s.logger.Warn("fetch failed",
			slog.String("url", url),
			slog.String("category", label),
			slog.Any("error", err),
		)
		return "", err
	}
	return body, nil
}

// unrecognizedLabel marks pages that loaded but were neither a product nor a
// collection, such as an age gate that was not passed.
const unrecognizedLabel = "unrecognized"

func (s *Scraper) recordFailure(url, label string) {
	s.result.ErrorCount++
	s.result.ErrorsByType[label]++
	s.result.FailedURLs = append(s.result.FailedURLs, url)
}

// humanize runs the visitor choreography when enabled and supported.
// Choreography errors never fail the page.
func (s *Scraper) humanize(ctx context.Context, kind string) {
	if !s.cfg.Humanize {
		return
	}
	h, ok := s.fetcher.(Humanizer)
	if !ok {
		return
	}
	var err error
	if kind == pipeline.KindSearch {
		err = h.HumanizeSearch(ctx)
	} else {
		err = h.HumanizeListing(ctx)
	}
	if err != nil {
		s.logger.Debug("humanize steps failed", slog.String("kind", kind), slog.Any("error", err))
	}
}

func (s *Scraper) persist(ctx context.Context, batch pipeline.Batch) error {
	written, err := s.pipeline.Persist(ctx, batch)
	if err != nil {
		s.Metrics.IncWrite("failed")
		return fmt.Errorf("persist %s: %w", batch.Name, err)
	}
	if !written {
		s.Metrics.IncWrite("skipped")
		s.result.SkippedWrites++
		return nil
	}
	s.Metrics.IncWrite("written")
	s.Metrics.AddRecords(batch.Kind, len(batch.Records))
	s.Metrics.AddFailureRecords(batch.Kind, batch.Failures)
	s.result.RecordCount += len(batch.Records)
	s.result.FailureRecords += batch.Failures
	return nil
}

func (s *Scraper) recordMiss(field string, _ error) {
	s.result.FieldMisses[field]++
	s.Metrics.IncFieldMiss(field)
}

func listingPrefix(t models.ListingTarget) string {
	return fmt.Sprintf("p%d_l%d_", t.Page, t.Listing)
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
