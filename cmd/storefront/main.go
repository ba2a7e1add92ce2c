package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-storefront/config"
	"github.com/aluiziolira/go-scrape-storefront/models"
	"github.com/aluiziolira/go-scrape-storefront/pipeline"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "storefront",
		Short: "Scrape storefront search results and listing pages",
		Long: `storefront walks the paginated search results of a game storefront,
stores one file per results page, then visits every listing found and stores
one record per listing. Existing output is never rewritten, so an interrupted
run resumes where it stopped.`,
		SilenceUsage: true,
	}

	defaults := config.DefaultConfig()
	flags := root.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file path (YAML)")
	flags.BoolP("verbose", "v", defaults.Verbose, "enable debug logging")
	flags.String("fetcher", defaults.Fetcher, "page fetcher: browser or http")
	flags.Bool("headless", defaults.Headless, "run the browser without a window")
	flags.Bool("stealth", defaults.Stealth, "hide browser automation markers")
	flags.Bool("humanize", defaults.Humanize, "act like a visitor on every fetched page (browser only)")
	flags.Duration("timeout", defaults.Timeout, "timeout of a single page load")
	flags.Int("max-retries", defaults.MaxRetries, "retry attempts per URL (http fetcher)")
	flags.Duration("delay-min", defaults.DelayMin, "minimum pause before each listing")
	flags.Duration("delay-max", defaults.DelayMax, "maximum pause before each listing")
	flags.Int("requests-per-minute", defaults.RequestsPerMinute, "request rate cap (0 = unlimited)")
	flags.String("output-dir", defaults.OutputDir, "directory of the output files")
	flags.String("output-format", defaults.OutputFormat, "output format: csv, csv.gz, json, dual or mongo")
	flags.String("mongo-uri", defaults.MongoURI, "MongoDB URI for the mongo output format")
	flags.String("user-agent", defaults.UserAgent, "User-Agent header")
	flags.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.Bool("system-requirements", defaults.SystemRequirements, "also extract system requirement columns")
	flags.Bool("respect-robots-txt", defaults.RespectRobotsTxt, "respect robots.txt directives (http fetcher)")

	root.AddCommand(searchCmd(), listingsCmd(), crawlCmd())
	return root
}

func addSearchFlags(cmd *cobra.Command) {
	defaults := config.DefaultConfig()
	cmd.Flags().String("search-url-template", defaults.SearchURLTemplate, "search page URL with a {page} placeholder")
	cmd.Flags().String("listing-url-template", defaults.ListingURLTemplate, "listing URL with {id} and {title} placeholders")
	cmd.Flags().Int("start-page", defaults.StartPage, "first search page")
	cmd.Flags().Int("max-pages", defaults.MaxPages, "maximum search pages to visit")
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Scrape search-result pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, runSearch)
		},
	}
	addSearchFlags(cmd)
	return cmd
}

func listingsCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Scrape the listings recorded in stored search results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, runListings(from))
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "read search-result files from this directory instead of the output")
	return cmd
}

func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Scrape search-result pages, then every listing they record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, runCrawl)
		},
	}
	addSearchFlags(cmd)
	return cmd
}

func printSummary(result *models.ScrapeResult, stats pipeline.Stats, duration time.Duration, output string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	fmt.Printf("  Search pages:    %d\n", result.PageCount)
	fmt.Printf("  Listings:        %d\n", result.ListingCount)
	fmt.Printf("  Records:         %d\n", stats.Records)
	fmt.Printf("  Failure records: %d\n", stats.FailureRecords)
	fmt.Printf("  Batches written: %d\n", stats.Written)
	fmt.Printf("  Skipped:         %d stored, %d existing\n", result.SkippedPages, stats.Skipped)
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Printf("  Success rate:    %.2f%%\n", successRate)
	fmt.Printf("  Errors:          %d\n", result.ErrorCount)
	fmt.Printf("  Retries:         %d\n", result.RetryCount)
	fmt.Printf("  Failed URLs:     %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:     %v\n", result.ErrorsByType)
	}
	if len(result.FieldMisses) > 0 {
		fmt.Printf("  Field misses:    %v\n", result.FieldMisses)
	}
	fmt.Printf("  Duration:        %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Output:          %s\n", output)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
