package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-storefront/config"
	"github.com/aluiziolira/go-scrape-storefront/pace"
)

// Fetcher returns the HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Humanizer is implemented by fetchers that can act like a visitor on the
// page they fetched last.
type Humanizer interface {
	HumanizeSearch(ctx context.Context) error
	HumanizeListing(ctx context.Context) error
}

// HTTPFetcher fetches pages with a colly collector and retries retryable
// failures with capped exponential backoff.
type HTTPFetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	metrics   *Metrics
	logger    *slog.Logger

	requests atomic.Int64
	retries  atomic.Int64
}

// NewHTTPFetcher builds a fetcher configured from cfg. metrics may be nil.
func NewHTTPFetcher(cfg *config.Config, metrics *Metrics, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &HTTPFetcher{
		cfg:       cfg,
		collector: collector,
		metrics:   metrics,
		logger:    logger.With("component", "http_fetcher"),
	}
}

// WithTransport replaces the collector's HTTP transport.
func (f *HTTPFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	var lastErr error
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		attempt++

		body, err := f.visit(url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !retryable(err) || attempt > f.cfg.MaxRetries {
			break
		}
		f.retries.Add(1)
		f.metrics.IncRetries()
		delay := f.backoff(attempt)
		f.logger.Debug("retrying fetch",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if err := pace.Sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", &FetchError{URL: url, Attempts: attempt, Err: lastErr}
}

// visit issues one synchronous request on a clone of the collector, so
// callbacks of concurrent calls never see each other's responses.
func (f *HTTPFetcher) visit(url string) (string, error) {
	c := f.collector.Clone()

	var (
		body     []byte
		status   int
		visitErr error
	)
	c.OnRequest(func(r *colly.Request) {
		f.requests.Add(1)
		f.metrics.IncRequest("started")
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		visitErr = err
		if r != nil {
			status = r.StatusCode
		}
	})

	start := time.Now()
	err := c.Visit(url)
	f.metrics.ObserveDuration(time.Since(start))
	if err == nil {
		err = visitErr
	}
	if err == nil && status >= http.StatusBadRequest {
		err = fmt.Errorf("http status %d", status)
	}
	if err != nil {
		classified := classifyError(err, status)
		label := errorTypeLabel(classified)
		f.metrics.IncError(label)
		f.logger.Warn("request error",
			slog.String("url", url),
			slog.Int("status", status),
			slog.String("category", label),
			slog.Any("error", err),
		)
		return "", classified
	}

	f.metrics.IncRequest("completed")
	return string(body), nil
}

// Requests returns the number of HTTP requests issued so far.
func (f *HTTPFetcher) Requests() int {
	return int(f.requests.Load())
}

// Retries returns the number of retries performed so far.
func (f *HTTPFetcher) Retries() int {
	return int(f.retries.Load())
}

func (f *HTTPFetcher) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := f.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := f.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}
