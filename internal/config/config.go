// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/scrapeforge/internal/collector"
	"github.com/JakeFAU/scrapeforge/internal/collector/web"
	"github.com/JakeFAU/scrapeforge/internal/logging"
	"github.com/JakeFAU/scrapeforge/internal/scraper"
	"github.com/JakeFAU/scrapeforge/internal/storage/gcs"
	"github.com/JakeFAU/scrapeforge/internal/storage/local"
)

// EnvPrefix prefixes every environment override, e.g. SCRAPEFORGE_SERVER_PORT.
const EnvPrefix = "SCRAPEFORGE"

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Collector modes.
const (
	CollectorsSynthetic = "synthetic"
	CollectorsWeb       = "web"
)

// Blob drivers.
const (
	BlobMemory = "memory"
	BlobLocal  = "local"
	BlobGCS    = "gcs"
)

// Publisher drivers.
const (
	PublisherNone   = "none"
	PublisherMemory = "memory"
	PublisherPubSub = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig                  `mapstructure:"server"`
	Auth         AuthConfig                    `mapstructure:"auth"`
	Logging      logging.Config                `mapstructure:"logging"`
	Store        StoreConfig                   `mapstructure:"store"`
	Engine       EngineConfig                  `mapstructure:"engine"`
	Progress     ProgressConfig                `mapstructure:"progress"`
	Collectors   CollectorsConfig              `mapstructure:"collectors"`
	Platforms    map[string]web.PlatformConfig `mapstructure:"platforms"`
	Fetcher      FetcherConfig                 `mapstructure:"fetcher"`
	Headless     HeadlessConfig                `mapstructure:"headless"`
	AI           AIConfig                      `mapstructure:"ai"`
	Blob         BlobConfig                    `mapstructure:"blob"`
	PubSub       PubSubConfig                  `mapstructure:"pubsub"`
	SeedProjects []scraper.Project             `mapstructure:"seed_projects"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// StoreConfig selects and configures the result store.
type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	// AutoMigrate applies the schema on startup.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// SQLiteConfig points at the embedded database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig holds run defaults applied when a project leaves a limit unset.
type EngineConfig struct {
	RateLimitMs            int  `mapstructure:"rate_limit_ms"`
	MaxProfiles            int  `mapstructure:"max_profiles"`
	MaxFollowersPerProfile int  `mapstructure:"max_followers_per_profile"`
	MaxCommentsPerProfile  int  `mapstructure:"max_comments_per_profile"`
	MaxPostsToScan         int  `mapstructure:"max_posts_to_scan"`
	AIParsing              bool `mapstructure:"ai_parsing"`
}

// ProgressConfig sizes the progress hub.
type ProgressConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms"`
}

// CollectorsConfig picks the collector implementation.
type CollectorsConfig struct {
	Mode      string          `mapstructure:"mode"`
	Synthetic SyntheticConfig `mapstructure:"synthetic"`
}

// SyntheticConfig tunes the synthetic generator.
type SyntheticConfig struct {
	Platforms []string `mapstructure:"platforms"`
	Domains   []string `mapstructure:"domains"`
}

// FetcherConfig configures the HTTP page fetcher and its retry behavior.
type FetcherConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	RespectRobots    bool   `mapstructure:"respect_robots"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	WaitSelector  string `mapstructure:"wait_selector"`
	SettleMs      int    `mapstructure:"settle_ms"`
}

// AIConfig configures the email classifier.
type AIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// BlobConfig selects where export archives are written.
type BlobConfig struct {
	Driver string       `mapstructure:"driver"`
	Prefix string       `mapstructure:"prefix"`
	Local  local.Config `mapstructure:"local"`
	GCS    gcs.Config   `mapstructure:"gcs"`
}

// PubSubConfig holds metadata for run summary notifications.
type PubSubConfig struct {
	Driver       string `mapstructure:"driver"`
	ProjectID    string `mapstructure:"project_id"`
	SummaryTopic string `mapstructure:"summary_topic"`
}

// Load builds a Config from a .env file, the optional YAML file at path, and
// the environment, in increasing order of precedence.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.max_conns", 10)
	v.SetDefault("store.postgres.min_conns", 0)
	v.SetDefault("store.postgres.max_conn_lifetime_minutes", 30)
	v.SetDefault("store.postgres.auto_migrate", true)
	v.SetDefault("store.sqlite.path", "scrapeforge.db")
	v.SetDefault("engine.rate_limit_ms", 300)
	v.SetDefault("engine.max_profiles", 10000)
	v.SetDefault("engine.max_followers_per_profile", 100)
	v.SetDefault("engine.max_comments_per_profile", 50)
	v.SetDefault("engine.max_posts_to_scan", 10)
	v.SetDefault("engine.ai_parsing", true)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 1000)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("collectors.mode", CollectorsSynthetic)
	v.SetDefault("collectors.synthetic.platforms", []string{"instagram", "tiktok", "youtube", "twitter", "reddit", "linkedin"})
	v.SetDefault("fetcher.user_agent", "scrapeforge/0.1")
	v.SetDefault("fetcher.respect_robots", true)
	v.SetDefault("fetcher.timeout_seconds", 15)
	v.SetDefault("fetcher.max_retries", 3)
	v.SetDefault("fetcher.backoff_initial_ms", 250)
	v.SetDefault("fetcher.backoff_max_ms", 5000)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.wait_selector", "body")
	v.SetDefault("headless.settle_ms", 0)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.timeout_seconds", 15)
	v.SetDefault("blob.driver", BlobMemory)
	v.SetDefault("blob.prefix", "")
	v.SetDefault("blob.local.base_dir", "exports")
	v.SetDefault("blob.gcs.bucket", "")
	v.SetDefault("blob.gcs.prefix", "")
	v.SetDefault("pubsub.driver", PublisherMemory)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.summary_topic", "scrape-run-summaries")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the postgres driver")
		}
	case StoreSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver %q is not one of memory, postgres, sqlite", c.Store.Driver)
	}
	if c.Engine.RateLimitMs < 0 {
		return fmt.Errorf("engine.rate_limit_ms must be >= 0")
	}
	if c.Engine.MaxProfiles <= 0 {
		return fmt.Errorf("engine.max_profiles must be > 0")
	}
	switch c.Collectors.Mode {
	case CollectorsSynthetic:
		if len(c.Collectors.Synthetic.Platforms) == 0 {
			return fmt.Errorf("collectors.synthetic.platforms must not be empty")
		}
	case CollectorsWeb:
		if len(c.Platforms) == 0 {
			return fmt.Errorf("platforms must be configured for the web collector mode")
		}
		for name, p := range c.Platforms {
			if err := p.Validate(); err != nil {
				return fmt.Errorf("platforms.%s: %w", name, err)
			}
			if p.Headless && !c.Headless.Enabled {
				return fmt.Errorf("platforms.%s requires headless.enabled", name)
			}
		}
	default:
		return fmt.Errorf("collectors.mode %q is not one of synthetic, web", c.Collectors.Mode)
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Blob.Driver {
	case BlobMemory:
	case BlobLocal:
		if c.Blob.Local.BaseDir == "" {
			return fmt.Errorf("blob.local.base_dir is required for the local driver")
		}
	case BlobGCS:
		if c.Blob.GCS.Bucket == "" {
			return fmt.Errorf("blob.gcs.bucket is required for the gcs driver")
		}
	default:
		return fmt.Errorf("blob.driver %q is not one of memory, local, gcs", c.Blob.Driver)
	}
	switch c.PubSub.Driver {
	case PublisherNone, PublisherMemory:
	case PublisherPubSub:
		if c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id is required for the pubsub driver")
		}
		if c.PubSub.SummaryTopic == "" {
			return fmt.Errorf("pubsub.summary_topic is required for the pubsub driver")
		}
	default:
		return fmt.Errorf("pubsub.driver %q is not one of none, memory, pubsub", c.PubSub.Driver)
	}
	for i, p := range c.SeedProjects {
		if p.ID == "" {
			return fmt.Errorf("seed_projects[%d].id is required", i)
		}
	}
	return nil
}

// RateLimit is the minimum delay between profile visits.
func (c Config) RateLimit() time.Duration {
	return time.Duration(c.Engine.RateLimitMs) * time.Millisecond
}

// CollectorDefaults converts the engine section into collector fallbacks.
func (c Config) CollectorDefaults() collector.Defaults {
	return collector.Defaults{
		MaxProfiles:            c.Engine.MaxProfiles,
		RateLimit:              c.RateLimit(),
		MaxFollowersPerProfile: c.Engine.MaxFollowersPerProfile,
		MaxCommentsPerProfile:  c.Engine.MaxCommentsPerProfile,
		MaxPostsToScan:         c.Engine.MaxPostsToScan,
	}
}

// RetryPolicy converts the fetcher section into a collector retry policy.
func (c Config) RetryPolicy() collector.RetryPolicy {
	return collector.RetryPolicy{
		MaxAttempts: max(c.Fetcher.MaxRetries, 1),
		BaseDelay:   time.Duration(c.Fetcher.BackoffInitialMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.Fetcher.BackoffMaxMs) * time.Millisecond,
	}
}

// AIEnabled reports whether the classifier fallback can run.
func (c Config) AIEnabled() bool {
	return c.Engine.AIParsing && strings.TrimSpace(c.AI.APIKey) != ""
}
