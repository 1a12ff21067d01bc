package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  shutdown_timeout_seconds: 5
browser:
  headless: false
  user_agent: radar-agent
  nav_timeout_seconds: 20
  challenge_timeout_seconds: 15
  scroll_settle_ms: 250
fetcher:
  timeout_seconds: 45
scraper:
  max_concurrent: 4
  delay_ms: 750
  max_attempts: 5
db:
  dsn: postgres://user:pass@db:5432/radar
logging:
  development: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Browser.Headless || cfg.Browser.UserAgent != "radar-agent" {
		t.Fatalf("expected browser overrides to apply: %+v", cfg.Browser)
	}
	if cfg.Scraper.MaxConcurrent != 4 || cfg.Scraper.MaxAttempts != 5 {
		t.Fatalf("expected scraper overrides to apply: %+v", cfg.Scraper)
	}
	if cfg.DB.DSN != "postgres://user:pass@db:5432/radar" {
		t.Fatalf("expected dsn override, got %q", cfg.DB.DSN)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	if got := cfg.FetchDelay(); got != 750*time.Millisecond {
		t.Fatalf("expected fetch delay 750ms, got %v", got)
	}
	if got := cfg.ScrollSettle(); got != 250*time.Millisecond {
		t.Fatalf("expected scroll settle 250ms, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if !cfg.Browser.Headless {
		t.Fatalf("expected headless by default")
	}
	if cfg.Scraper.MaxConcurrent != 10 || cfg.Scraper.MaxAttempts != 3 {
		t.Fatalf("unexpected scraper defaults: %+v", cfg.Scraper)
	}
	if got := cfg.FetchDelay(); got != 500*time.Millisecond {
		t.Fatalf("expected default delay 500ms, got %v", got)
	}
	if got := cfg.NavTimeout(); got != 45*time.Second {
		t.Fatalf("expected default nav timeout 45s, got %v", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Scraper: ScraperConfig{MaxConcurrent: 10, MaxAttempts: 3},
		Fetcher: FetcherConfig{TimeoutSeconds: 30},
		DB:      DBConfig{DSN: "postgres://localhost/radar"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "missing dsn",
			cfg: func() Config {
				c := base
				c.DB.DSN = ""
				return c
			}(),
			want: "db.dsn",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Scraper.MaxConcurrent = 0
				return c
			}(),
			want: "scraper.max_concurrent",
		},
		{
			name: "invalid attempts",
			cfg: func() Config {
				c := base
				c.Scraper.MaxAttempts = 0
				return c
			}(),
			want: "scraper.max_attempts",
		},
		{
			name: "invalid fetch timeout",
			cfg: func() Config {
				c := base
				c.Fetcher.TimeoutSeconds = 0
				return c
			}(),
			want: "fetcher.timeout_seconds",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
