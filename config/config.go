package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	SearchURLTemplate  string `mapstructure:"search_url_template"`
	ListingURLTemplate string `mapstructure:"listing_url_template"`
	StartPage          int    `mapstructure:"start_page"`
	MaxPages           int    `mapstructure:"max_pages"`

	Fetcher  string `mapstructure:"fetcher"` // browser or http
	Headless bool   `mapstructure:"headless"`
	Stealth  bool   `mapstructure:"stealth"`
	Humanize bool   `mapstructure:"humanize"`

	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	RetryBackoffMax   time.Duration `mapstructure:"retry_backoff_max"`
	DelayMin          time.Duration `mapstructure:"delay_min"`
	DelayMax          time.Duration `mapstructure:"delay_max"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`

	OutputDir       string `mapstructure:"output_dir"`
	OutputFormat    string `mapstructure:"output_format"` // csv, csv.gz, json, dual or mongo
	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection"`

	UserAgent          string `mapstructure:"user_agent"`
	Verbose            bool   `mapstructure:"verbose"`
	MetricsAddr        string `mapstructure:"metrics_addr"`
	DedupeMaxSize      int    `mapstructure:"dedupe_max_size"`
	SystemRequirements bool   `mapstructure:"system_requirements"`
	RespectRobotsTxt   bool   `mapstructure:"respect_robots_txt"`
}

var (
	fetchers      = []string{"browser", "http"}
	outputFormats = []string{"csv", "csv.gz", "json", "dual", "mongo"}
)

// DefaultConfig returns conservative defaults for the public storefront.
func DefaultConfig() *Config {
	return &Config{
		SearchURLTemplate:  "https://store.steampowered.com/search/?sort_by=Released_DESC&page={page}",
		ListingURLTemplate: "https://store.steampowered.com/app/{id}/{title}/",
		StartPage:          1,
		MaxPages:           10,
		Fetcher:            "browser",
		Headless:           true,
		Stealth:            true,
		Humanize:           true,
		Timeout:            30 * time.Second,
		MaxRetries:         2,
		RetryBackoff:       500 * time.Millisecond,
		RetryBackoffMax:    5 * time.Second,
		DelayMin:           time.Second,
		DelayMax:           3 * time.Second,
		RequestsPerMinute:  30,
		OutputDir:          "data/raw",
		OutputFormat:       "csv",
		MongoDatabase:      "storefront",
		MongoCollection:    "records",
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:            false,
		DedupeMaxSize:      10000,
		SystemRequirements: false,
		RespectRobotsTxt:   false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validateTemplate("search URL template", c.SearchURLTemplate, "{page}"); err != nil {
		return err
	}
	if err := validateTemplate("listing URL template", c.ListingURLTemplate, "{id}"); err != nil {
		return err
	}

	if c.StartPage <= 0 {
		return fmt.Errorf("start page must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if !oneOf(c.Fetcher, fetchers) {
		return fmt.Errorf("fetcher must be one of %s", strings.Join(fetchers, ", "))
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.DelayMin < 0 || c.DelayMax < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.DelayMin > c.DelayMax {
		return fmt.Errorf("delay min (%s) cannot exceed delay max (%s)", c.DelayMin, c.DelayMax)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests per minute cannot be negative")
	}
	if !oneOf(c.OutputFormat, outputFormats) {
		return fmt.Errorf("output format must be one of %s", strings.Join(outputFormats, ", "))
	}
	if c.OutputFormat == "mongo" {
		if c.MongoURI == "" {
			return fmt.Errorf("mongo URI is required for the mongo output format")
		}
		if c.MongoDatabase == "" || c.MongoCollection == "" {
			return fmt.Errorf("mongo database and collection cannot be empty")
		}
	} else if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}

func validateTemplate(name, template, placeholder string) error {
	if template == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !strings.Contains(template, placeholder) {
		return fmt.Errorf("%s must contain %s", name, placeholder)
	}
	parsed, err := url.Parse(strings.NewReplacer("{page}", "1", "{id}", "1", "{title}", "x").Replace(template))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
