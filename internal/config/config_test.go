package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
store:
  driver: sqlite
  sqlite:
    path: /tmp/scrapeforge-test.db
engine:
  rate_limit_ms: 50
  max_profiles: 25
  ai_parsing: false
collectors:
  mode: web
platforms:
  reddit:
    search_url: https://reddit.example/search?q={keyword}
    profile_link_selector: a.user
    name_selector: h1
    bio_selector: .bio
    link_selector: a.ext
    follow_bio_links: true
blob:
  driver: local
  local:
    base_dir: /tmp/exports
pubsub:
  driver: none
seed_projects:
  - id: founders
    name: Founders
    platforms: [reddit]
    keywords: "founder, ceo"
    max_profiles: 10
    include_followers: true
    status: active
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Store.Driver != StoreSQLite || cfg.Store.SQLite.Path != "/tmp/scrapeforge-test.db" {
		t.Fatalf("expected sqlite store overrides, got %+v", cfg.Store)
	}
	if got := cfg.RateLimit(); got != 50*time.Millisecond {
		t.Fatalf("expected rate limit 50ms, got %v", got)
	}
	defaults := cfg.CollectorDefaults()
	if defaults.MaxProfiles != 25 || defaults.MaxFollowersPerProfile != 100 {
		t.Fatalf("unexpected collector defaults: %+v", defaults)
	}
	reddit, ok := cfg.Platforms["reddit"]
	if !ok || reddit.BioSelector != ".bio" || !reddit.FollowBioLinks {
		t.Fatalf("expected reddit platform to be loaded: %+v", cfg.Platforms)
	}
	if cfg.Blob.Local.BaseDir != "/tmp/exports" {
		t.Fatalf("expected local blob dir, got %q", cfg.Blob.Local.BaseDir)
	}
	if len(cfg.SeedProjects) != 1 {
		t.Fatalf("expected one seed project, got %d", len(cfg.SeedProjects))
	}
	seed := cfg.SeedProjects[0]
	if seed.ID != "founders" || seed.Keywords != "founder, ceo" || !seed.IncludeFollowers || len(seed.Platforms) != 1 {
		t.Fatalf("seed project not decoded: %+v", seed)
	}
	if cfg.AIEnabled() {
		t.Fatal("expected AI to be disabled")
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
	if cfg.Store.Driver != StoreMemory || cfg.Blob.Driver != BlobMemory {
		t.Fatalf("expected memory drivers, got store=%s blob=%s", cfg.Store.Driver, cfg.Blob.Driver)
	}
	if cfg.Collectors.Mode != CollectorsSynthetic {
		t.Fatalf("expected synthetic collectors, got %s", cfg.Collectors.Mode)
	}
	if cfg.Engine.RateLimitMs != 300 || cfg.Engine.MaxProfiles != 10000 ||
		cfg.Engine.MaxFollowersPerProfile != 100 || cfg.Engine.MaxCommentsPerProfile != 50 ||
		cfg.Engine.MaxPostsToScan != 10 || !cfg.Engine.AIParsing {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.AI.TimeoutSeconds != 15 {
		t.Fatalf("expected ai timeout 15s, got %d", cfg.AI.TimeoutSeconds)
	}
	if cfg.AIEnabled() {
		t.Fatal("AI needs an API key")
	}
	policy := cfg.RetryPolicy()
	if policy.MaxAttempts != 3 || policy.BaseDelay != 250*time.Millisecond || policy.MaxDelay != 5*time.Second {
		t.Fatalf("unexpected retry policy: %+v", policy)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCRAPEFORGE_SERVER_PORT", "7070")
	t.Setenv("SCRAPEFORGE_AI_API_KEY", "sk-test")
	t.Setenv("SCRAPEFORGE_STORE_DRIVER", "postgres")
	t.Setenv("SCRAPEFORGE_STORE_POSTGRES_DSN", "postgres://localhost/scrapeforge")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Store.Postgres.DSN != "postgres://localhost/scrapeforge" {
		t.Fatalf("expected env dsn, got %q", cfg.Store.Postgres.DSN)
	}
	if !cfg.AIEnabled() {
		t.Fatal("expected AI enabled with env api key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"auth key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"store driver", func(c *Config) { c.Store.Driver = "mongo" }, "store.driver"},
		{"postgres dsn", func(c *Config) { c.Store.Driver = StorePostgres }, "store.postgres.dsn"},
		{"rate limit", func(c *Config) { c.Engine.RateLimitMs = -1 }, "engine.rate_limit_ms"},
		{"collectors mode", func(c *Config) { c.Collectors.Mode = "magic" }, "collectors.mode"},
		{"web without platforms", func(c *Config) { c.Collectors.Mode = CollectorsWeb }, "platforms must be configured"},
		{"gcs bucket", func(c *Config) { c.Blob.Driver = BlobGCS }, "blob.gcs.bucket"},
		{"pubsub project", func(c *Config) { c.PubSub.Driver = PublisherPubSub }, "pubsub.project_id"},
		{"headless parallel", func(c *Config) {
			c.Headless.Enabled = true
			c.Headless.MaxParallel = 0
		}, "headless.max_parallel"},
		{"seed id", func(c *Config) {
			c.SeedProjects = []scraper.Project{{Name: "nameless"}}
		}, "seed_projects[0].id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.want)
			}
		})
	}
}
