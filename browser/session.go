// Package browser drives a headless Chromium session through go-rod and
// performs the mouse, scroll and filter choreography used on storefront pages.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/aluiziolira/go-scrape-storefront/pace"
)

// ErrNoElement is returned when a selector matches nothing on the current page.
var ErrNoElement = errors.New("element not found")

// ErrAgeGate is returned by Fetch when the age gate could not be passed.
var ErrAgeGate = errors.New("age gate not passed")

// Options configures a Session.
type Options struct {
	Headless  bool
	Stealth   bool
	UserAgent string
	// Timeout bounds a single navigation.
	Timeout time.Duration
	// Delayer provides the pauses between actions. Defaults to pace.Random.
	Delayer pace.Delayer
	// Seed fixes the choreography's random choices. Zero picks a random seed.
	Seed   uint64
	Logger *slog.Logger
}

// Session is a single browser tab reused for every page of a crawl.
type Session struct {
	browser *rod.Browser
	page    *rod.Page
	delay   pace.Delayer
	timeout time.Duration
	logger  *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// Launch starts Chromium and opens the tab used by the session.
func Launch(opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	controlURL, err := launcher.New().
		Headless(opts.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	var page *rod.Page
	if opts.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			logger.Warn("failed to set user agent", slog.Any("error", err))
		}
	}

	s := newSession(opts, logger)
	s.browser = browser
	s.page = page
	s.logger.Info("browser session ready",
		slog.Bool("headless", opts.Headless),
		slog.Bool("stealth", opts.Stealth),
	)
	return s, nil
}

func newSession(opts Options, logger *slog.Logger) *Session {
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	delay := opts.Delayer
	if delay == nil {
		delay = pace.NewRandom(seed)
	}
	return &Session{
		delay:   delay,
		timeout: opts.Timeout,
		logger:  logger.With("component", "browser"),
		rnd:     rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

// Fetch navigates to url, passes the age gate when one is shown and returns
// the rendered HTML.
func (s *Session) Fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	page := s.page.Context(ctx)

	start := time.Now()
	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", url, err)
	}
	if err := page.WaitStable(300 * time.Millisecond); err != nil {
		s.logger.Warn("page stability timeout, continuing", slog.String("url", url), slog.Any("error", err))
	}

	if gated, _, err := page.Has("#ageYear"); err == nil && gated {
		if err := s.EnterAge(ctx); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrAgeGate, url, err)
		}
		if still, _, err := page.Has("#ageYear"); err != nil {
			return "", fmt.Errorf("check age gate %s: %w", url, err)
		} else if still {
			return "", fmt.Errorf("%w: %s: still shown after proceeding", ErrAgeGate, url)
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read html %s: %w", url, err)
	}
	s.logger.Debug("browser fetch complete",
		slog.String("url", url),
		slog.Int("size", len(html)),
		slog.Duration("duration", time.Since(start)),
	)
	return html, nil
}

// HumanizeSearch runs the search page choreography. Failed steps are
// reported together; the page content is left as it was found.
func (s *Session) HumanizeSearch(ctx context.Context) error {
	var errs []error
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"random_navigation", s.RandomNavigation},
		{"tag_filters", s.InteractWithTagFilters},
		{"feature_filters", s.InteractWithFeatureFilters},
		{"sort_results", s.SortResults},
		{"scroll", func(ctx context.Context) error { return s.ScrollPage(ctx, SlowScrollDown) }},
		{"mouse", func(ctx context.Context) error { return s.MoveMouse(ctx, s.between(2, 5)) }},
	}
	for _, step := range steps {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := step.run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	return errors.Join(errs...)
}

// HumanizeListing scrolls a listing page down slowly and back up quickly.
func (s *Session) HumanizeListing(ctx context.Context) error {
	return errors.Join(
		s.ScrollPage(ctx, SlowScrollDown),
		s.ScrollPage(ctx, FastScrollUp),
	)
}

// Close shuts the browser down.
func (s *Session) Close() error {
	if s.browser == nil {
		return nil
	}
	return s.browser.Close()
}

func (s *Session) find(ctx context.Context, selector string) (*rod.Element, error) {
	has, el, err := s.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return el, nil
}

func (s *Session) pause(ctx context.Context, min, max time.Duration) error {
	return s.delay.Pause(ctx, min, max)
}

// between returns a random int in [lo, hi].
func (s *Session) between(lo, hi int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return between(s.rnd, lo, hi)
}

func (s *Session) shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rnd.Shuffle(n, swap)
}
