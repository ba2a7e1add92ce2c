package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-storefront/browser"
	"github.com/aluiziolira/go-scrape-storefront/config"
	"github.com/aluiziolira/go-scrape-storefront/models"
	"github.com/aluiziolira/go-scrape-storefront/pace"
	"github.com/aluiziolira/go-scrape-storefront/pipeline"
	"github.com/aluiziolira/go-scrape-storefront/scraper"
)

// stage is the part of a crawl a subcommand runs.
type stage func(ctx context.Context, s *scraper.Scraper, p *pipeline.Pipeline) (*models.ScrapeResult, error)

func runSearch(ctx context.Context, s *scraper.Scraper, _ *pipeline.Pipeline) (*models.ScrapeResult, error) {
	return s.RunSearch(ctx)
}

func runCrawl(ctx context.Context, s *scraper.Scraper, _ *pipeline.Pipeline) (*models.ScrapeResult, error) {
	return s.Crawl(ctx)
}

func runListings(from string) stage {
	return func(ctx context.Context, s *scraper.Scraper, p *pipeline.Pipeline) (*models.ScrapeResult, error) {
		var (
			targets []models.ListingTarget
			err     error
		)
		if from != "" {
			targets, err = pipeline.LoadListingTargets(from)
		} else {
			targets, err = p.Targets(ctx)
		}
		if err != nil {
			return s.Result(), fmt.Errorf("load listing targets: %w", err)
		}
		slog.Info("listing targets loaded", slog.Int("count", len(targets)))
		return s.RunListings(ctx, targets)
	}
}

// run loads the configuration, wires fetcher, storage and metrics, and runs
// the stage until it finishes or the process is interrupted.
func run(cmd *cobra.Command, st stage) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received, finishing the current page")
	}()

	metrics := scraper.NewMetrics()
	fetcher, closeFetcher, err := newFetcher(cfg, metrics, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer closeFetcher()

	sink, output, err := newSink(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	p := pipeline.NewPipeline(sink, logger)
	defer func() {
		if err := p.Close(); err != nil {
			logger.Error("close storage", slog.Any("error", err))
		}
	}()

	s, err := scraper.NewScraper(cfg, fetcher, p,
		scraper.WithMetrics(metrics),
		scraper.WithLogger(logger),
		scraper.WithDelayer(pace.NewRandom(0)),
	)
	if err != nil {
		return fmt.Errorf("initialise scraper: %w", err)
	}

	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics, logger)
	defer stopMetricsServer(metricsServer, logger)

	logger.Info("starting scrape",
		slog.String("command", cmd.Name()),
		slog.String("fetcher", cfg.Fetcher),
		slog.Int("start_page", cfg.StartPage),
		slog.Int("max_pages", cfg.MaxPages),
		slog.String("output", output),
	)

	startTime := time.Now()
	result, err := st(ctx, s, p)
	printSummary(result, p.Stats(), time.Since(startTime), output)

	if errors.Is(err, context.Canceled) {
		logger.Info("scrape interrupted, rerun the command to resume")
		return nil
	}
	if err != nil {
		logger.Error("scraping failed", slog.Any("error", err))
		return err
	}
	return nil
}

func newFetcher(cfg *config.Config, metrics *scraper.Metrics, logger *slog.Logger) (scraper.Fetcher, func(), error) {
	if cfg.Fetcher == "http" {
		return scraper.NewHTTPFetcher(cfg, metrics, logger), func() {}, nil
	}

	session, err := browser.Launch(browser.Options{
		Headless:  cfg.Headless,
		Stealth:   cfg.Stealth,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
		Delayer:   pace.NewRandom(0),
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}
	closeSession := func() {
		if err := session.Close(); err != nil {
			logger.Error("close browser", slog.Any("error", err))
		}
	}
	return session, closeSession, nil
}

func newSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pipeline.Sink, string, error) {
	if cfg.OutputFormat == "mongo" {
		store, err := pipeline.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
		if err != nil {
			return nil, "", err
		}
		return store, cfg.MongoDatabase + "." + cfg.MongoCollection, nil
	}
	store, err := pipeline.NewFileStore(cfg.OutputDir, cfg.OutputFormat, logger)
	if err != nil {
		return nil, "", err
	}
	return store, cfg.OutputDir, nil
}

func startMetricsServer(addr string, metrics *scraper.Metrics, logger *slog.Logger) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	logger.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func stopMetricsServer(server *http.Server, logger *slog.Logger) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}
