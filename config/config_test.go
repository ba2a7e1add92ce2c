package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero start page",
			mutate: func(cfg *Config) {
				cfg.StartPage = 0
			},
			wantErr: "start page",
		},
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "empty search template",
			mutate: func(cfg *Config) {
				cfg.SearchURLTemplate = ""
			},
			wantErr: "search URL template",
		},
		{
			name: "search template without page placeholder",
			mutate: func(cfg *Config) {
				cfg.SearchURLTemplate = "https://store.example.test/search/"
			},
			wantErr: "{page}",
		},
		{
			name: "listing template without host",
			mutate: func(cfg *Config) {
				cfg.ListingURLTemplate = "/app/{id}/"
			},
			wantErr: "listing URL template",
		},
		{
			name: "unknown fetcher",
			mutate: func(cfg *Config) {
				cfg.Fetcher = "curl"
			},
			wantErr: "fetcher",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 10 * time.Second
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "delay min above max",
			mutate: func(cfg *Config) {
				cfg.DelayMin = 5 * time.Second
				cfg.DelayMax = time.Second
			},
			wantErr: "delay min",
		},
		{
			name: "unknown output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "parquet"
			},
			wantErr: "output format",
		},
		{
			name: "mongo without uri",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "mongo"
				cfg.MongoURI = ""
			},
			wantErr: "mongo URI",
		},
		{
			name: "empty output dir",
			mutate: func(cfg *Config) {
				cfg.OutputDir = ""
			},
			wantErr: "output dir",
		},
		{
			name: "zero dedupe size",
			mutate: func(cfg *Config) {
				cfg.DedupeMaxSize = 0
			},
			wantErr: "dedupe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestMongoConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputFormat = "mongo"
	cfg.MongoURI = "mongodb://localhost:27017"
	cfg.OutputDir = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("mongo config should validate, got %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
max_pages: 4
fetcher: http
timeout: 12s
output_format: json
delay_min: 0s
delay_max: 500ms
`)
	t.Setenv("STOREFRONT_MAX_PAGES", "6")
	t.Setenv("STOREFRONT_OUTPUT_DIR", "/tmp/storefront-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("max-pages", 1, "")
	flags.String("output-format", "csv", "")
	flags.String("config", "", "")
	if err := flags.Parse([]string{"--output-format", "dual", "--config", path}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxPages != 6 {
		t.Fatalf("max pages = %d, want env value 6", cfg.MaxPages)
	}
	if cfg.OutputFormat != "dual" {
		t.Fatalf("output format = %q, want flag value dual", cfg.OutputFormat)
	}
	if cfg.Fetcher != "http" {
		t.Fatalf("fetcher = %q, want file value http", cfg.Fetcher)
	}
	if cfg.Timeout != 12*time.Second {
		t.Fatalf("timeout = %s, want 12s", cfg.Timeout)
	}
	if cfg.DelayMax != 500*time.Millisecond {
		t.Fatalf("delay max = %s, want 500ms", cfg.DelayMax)
	}
	if cfg.OutputDir != "/tmp/storefront-env" {
		t.Fatalf("output dir = %q", cfg.OutputDir)
	}
	if cfg.UserAgent != DefaultConfig().UserAgent {
		t.Fatalf("user agent default lost: %q", cfg.UserAgent)
	}
}

func TestLoadUnchangedFlagKeepsFileValue(t *testing.T) {
	path := writeConfig(t, "max_pages: 9\n")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("max-pages", 1, "")
	if err := flags.Parse(nil); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxPages != 9 {
		t.Fatalf("max pages = %d, want 9", cfg.MaxPages)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
