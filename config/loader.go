package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. STOREFRONT_MAX_PAGES.
const EnvPrefix = "STOREFRONT"

// Load reads configuration from file, environment and CLI flags.
// Priority (highest to lowest): changed flags > env vars > config file > defaults.
// Flag names map to keys by replacing "-" with "_".
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("storefront")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".storefront"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.Visit(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !IsKnownKey(key) {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

var knownKeys = []string{
	"search_url_template",
	"listing_url_template",
	"start_page",
	"max_pages",
	"fetcher",
	"headless",
	"stealth",
	"humanize",
	"timeout",
	"max_retries",
	"retry_backoff",
	"retry_backoff_max",
	"delay_min",
	"delay_max",
	"requests_per_minute",
	"output_dir",
	"output_format",
	"mongo_uri",
	"mongo_database",
	"mongo_collection",
	"user_agent",
	"verbose",
	"metrics_addr",
	"dedupe_max_size",
	"system_requirements",
	"respect_robots_txt",
}

// IsKnownKey reports whether key names a configuration field.
func IsKnownKey(key string) bool {
	return oneOf(key, knownKeys)
}

// setDefaults registers default values in viper so env lookups resolve every key.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("search_url_template", cfg.SearchURLTemplate)
	v.SetDefault("listing_url_template", cfg.ListingURLTemplate)
	v.SetDefault("start_page", cfg.StartPage)
	v.SetDefault("max_pages", cfg.MaxPages)

	v.SetDefault("fetcher", cfg.Fetcher)
	v.SetDefault("headless", cfg.Headless)
	v.SetDefault("stealth", cfg.Stealth)
	v.SetDefault("humanize", cfg.Humanize)

	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("max_retries", cfg.MaxRetries)
	v.SetDefault("retry_backoff", cfg.RetryBackoff)
	v.SetDefault("retry_backoff_max", cfg.RetryBackoffMax)
	v.SetDefault("delay_min", cfg.DelayMin)
	v.SetDefault("delay_max", cfg.DelayMax)
	v.SetDefault("requests_per_minute", cfg.RequestsPerMinute)

	v.SetDefault("output_dir", cfg.OutputDir)
	v.SetDefault("output_format", cfg.OutputFormat)
	v.SetDefault("mongo_uri", cfg.MongoURI)
	v.SetDefault("mongo_database", cfg.MongoDatabase)
	v.SetDefault("mongo_collection", cfg.MongoCollection)

	v.SetDefault("user_agent", cfg.UserAgent)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("dedupe_max_size", cfg.DedupeMaxSize)
	v.SetDefault("system_requirements", cfg.SystemRequirements)
	v.SetDefault("respect_robots_txt", cfg.RespectRobotsTxt)
}
