// Package app initializes and holds long-lived application services, acting
// as the dependency injection container behind every CLI command.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeforge/internal/ai"
	"github.com/JakeFAU/scrapeforge/internal/api"
	"github.com/JakeFAU/scrapeforge/internal/clock/system"
	"github.com/JakeFAU/scrapeforge/internal/collector"
	"github.com/JakeFAU/scrapeforge/internal/collector/synthetic"
	"github.com/JakeFAU/scrapeforge/internal/collector/web"
	"github.com/JakeFAU/scrapeforge/internal/config"
	"github.com/JakeFAU/scrapeforge/internal/export"
	"github.com/JakeFAU/scrapeforge/internal/extractor"
	collyfetcher "github.com/JakeFAU/scrapeforge/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/scrapeforge/internal/fetcher/headless"
	"github.com/JakeFAU/scrapeforge/internal/hash/sha256"
	"github.com/JakeFAU/scrapeforge/internal/id/uuid"
	"github.com/JakeFAU/scrapeforge/internal/metrics"
	"github.com/JakeFAU/scrapeforge/internal/orchestrator"
	"github.com/JakeFAU/scrapeforge/internal/progress"
	"github.com/JakeFAU/scrapeforge/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/scrapeforge/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/scrapeforge/internal/publisher/pubsub"
	"github.com/JakeFAU/scrapeforge/internal/registry"
	"github.com/JakeFAU/scrapeforge/internal/scraper"
	"github.com/JakeFAU/scrapeforge/internal/storage/gcs"
	"github.com/JakeFAU/scrapeforge/internal/storage/local"
	"github.com/JakeFAU/scrapeforge/internal/storage/memory"
	"github.com/JakeFAU/scrapeforge/internal/storage/postgres"
	"github.com/JakeFAU/scrapeforge/internal/storage/sqlite"
)

// pinger is implemented by stores that can report reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// App holds all the shared, long-lived services for the application. It is
// built once at startup; Close releases everything in reverse order.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	store        scraper.ResultStore
	blob         scraper.BlobStore
	publisher    scraper.Publisher
	hub          *progress.Hub
	metrics      *prometheus.Registry
	orchestrator *orchestrator.Orchestrator
	exporter     *export.Exporter
	server       *api.Server

	closers []closer
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetStore exposes the configured result store.
func (a *App) GetStore() scraper.ResultStore {
	return a.store
}

// GetOrchestrator returns the run engine.
func (a *App) GetOrchestrator() *orchestrator.Orchestrator {
	return a.orchestrator
}

// GetMetrics returns the Prometheus registry every component registers on.
func (a *App) GetMetrics() *prometheus.Registry {
	return a.metrics
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// New creates and initializes an App from cfg. It fails fast if any critical
// service cannot be initialized, releasing whatever was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, metrics: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			if cerr := a.Close(context.Background()); cerr != nil {
				logger.Warn("cleanup after failed init", zap.Error(cerr))
			}
		}
	}()

	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	if err := a.seedProjects(ctx); err != nil {
		return nil, err
	}
	if err := a.initBlob(ctx); err != nil {
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		return nil, err
	}
	collectorRegistry, err := a.initCollectors()
	if err != nil {
		return nil, err
	}
	classifier, err := a.initClassifier()
	if err != nil {
		return nil, err
	}
	if err := a.initHub(); err != nil {
		return nil, err
	}

	clock := system.New()
	orch, err := orchestrator.New(orchestrator.Deps{
		Store:      a.store,
		Registry:   registry.New(),
		Collectors: collectorRegistry,
		Extractor: extractor.New(classifier, extractor.Config{
			Timeout: time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
			Logger:  logger.Named("extractor"),
		}),
		Emitter:   a.hub,
		Publisher: a.publisher,
		Clock:     clock,
		IDs:       uuid.New(),
	}, orchestrator.Config{
		AIParsing:    cfg.AIEnabled(),
		Defaults:     cfg.CollectorDefaults(),
		SummaryTopic: cfg.PubSub.SummaryTopic,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}
	a.orchestrator = orch
	// Registered last so it closes first: runs stop before their sinks go away.
	a.addCloser("orchestrator", orch.Shutdown)

	a.exporter = export.New(a.store, a.blob, sha256.New(), clock, export.Config{Prefix: cfg.Blob.Prefix})
	a.server = api.NewServer(orch, a.exporter, api.Config{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		Gatherer:       a.metrics,
		HTTPMetrics:    metrics.NewHTTP(a.metrics),
		Ready:          a.ready,
	}, logger)

	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("blob", cfg.Blob.Driver),
		zap.String("publisher", cfg.PubSub.Driver),
		zap.String("collectors", cfg.Collectors.Mode),
		zap.Strings("platforms", collectorRegistry.Platforms()),
		zap.Bool("ai_parsing", cfg.AIEnabled()),
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case config.StorePostgres:
		pg := a.cfg.Store.Postgres
		a.logger.Info("Connecting to PostgreSQL...")
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             pg.DSN,
			MaxConns:        pg.MaxConns,
			MinConns:        pg.MinConns,
			MaxConnLifetime: time.Duration(pg.MaxConnLifetimeMinutes) * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		a.store = store
		a.addCloser("store", func(context.Context) error { return store.Close() })
		if pg.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate postgres: %w", err)
			}
		}
	case config.StoreSQLite:
		a.logger.Info("Opening SQLite database", zap.String("path", a.cfg.Store.SQLite.Path))
		store, err := sqlite.New(a.cfg.Store.SQLite.Path)
		if err != nil {
			return fmt.Errorf("init sqlite store: %w", err)
		}
		a.store = store
		a.addCloser("store", func(context.Context) error { return store.Close() })
	case config.StoreMemory:
		a.logger.Info("Using in-memory store. Results are lost on exit.")
		a.store = memory.NewResultStore()
	default:
		return fmt.Errorf("unknown store driver: %s", a.cfg.Store.Driver)
	}
	return nil
}

func (a *App) seedProjects(ctx context.Context) error {
	for _, p := range a.cfg.SeedProjects {
		if p.Status == "" {
			p.Status = scraper.ProjectStatusActive
		}
		if err := a.store.UpsertProject(ctx, p); err != nil {
			return fmt.Errorf("seed project %s: %w", p.ID, err)
		}
	}
	if n := len(a.cfg.SeedProjects); n > 0 {
		a.logger.Info("seed projects loaded", zap.Int("count", n))
	}
	return nil
}

func (a *App) initBlob(ctx context.Context) error {
	switch a.cfg.Blob.Driver {
	case config.BlobGCS:
		a.logger.Info("Using GCS blob store", zap.String("bucket", a.cfg.Blob.GCS.Bucket))
		store, err := gcs.New(ctx, a.cfg.Blob.GCS)
		if err != nil {
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		a.blob = store
		a.addCloser("blob", func(context.Context) error { return store.Close() })
	case config.BlobLocal:
		store, err := local.New(a.cfg.Blob.Local)
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		a.blob = store
	case config.BlobMemory:
		a.blob = memory.NewBlobStore()
	default:
		return fmt.Errorf("unknown blob driver: %s", a.cfg.Blob.Driver)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	switch a.cfg.PubSub.Driver {
	case config.PublisherPubSub:
		a.logger.Info("Connecting to GCP Pub/Sub", zap.String("topic", a.cfg.PubSub.SummaryTopic))
		pub, err := pubsubpublisher.New(ctx, pubsubpublisher.Config{ProjectID: a.cfg.PubSub.ProjectID})
		if err != nil {
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.publisher = pub
		a.addCloser("publisher", func(context.Context) error { return pub.Close() })
	case config.PublisherMemory:
		a.publisher = memorypublisher.New()
	case config.PublisherNone:
		a.logger.Info("Run summaries are disabled.")
	default:
		return fmt.Errorf("unknown publisher driver: %s", a.cfg.PubSub.Driver)
	}
	return nil
}

func (a *App) initCollectors() (*collector.Registry, error) {
	reg := collector.NewRegistry()
	switch a.cfg.Collectors.Mode {
	case config.CollectorsSynthetic:
		ctor := synthetic.Constructor(synthetic.Config{Domains: a.cfg.Collectors.Synthetic.Domains})
		for _, platform := range a.cfg.Collectors.Synthetic.Platforms {
			reg.Register(platform, ctor)
		}
	case config.CollectorsWeb:
		httpFetcher := collyfetcher.New(collyfetcher.Config{
			UserAgent:     a.cfg.Fetcher.UserAgent,
			RespectRobots: a.cfg.Fetcher.RespectRobots,
			Timeout:       time.Duration(a.cfg.Fetcher.TimeoutSeconds) * time.Second,
		})
		var browser scraper.Fetcher = headlessfetcher.NewNoop()
		if a.cfg.Headless.Enabled {
			chrome, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
				MaxParallel:       a.cfg.Headless.MaxParallel,
				UserAgent:         a.cfg.Fetcher.UserAgent,
				NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
				WaitSelector:      a.cfg.Headless.WaitSelector,
				Settle:            time.Duration(a.cfg.Headless.SettleMs) * time.Millisecond,
			})
			if err != nil {
				return nil, fmt.Errorf("init headless fetcher: %w", err)
			}
			browser = chrome
			a.addCloser("headless", func(context.Context) error {
				chrome.Close()
				return nil
			})
		}
		for name, platform := range a.cfg.Platforms {
			var pageFetcher scraper.Fetcher = httpFetcher
			if platform.Headless {
				pageFetcher = browser
			}
			reg.Register(name, web.Constructor(web.Config{
				Platform:    platform,
				Fetcher:     pageFetcher,
				LinkFetcher: httpFetcher,
				Retry:       a.cfg.RetryPolicy(),
				Logger:      a.logger.Named("collector"),
			}))
		}
	default:
		return nil, fmt.Errorf("unknown collectors mode: %s", a.cfg.Collectors.Mode)
	}
	return reg, nil
}

func (a *App) initClassifier() (extractor.Classifier, error) {
	if !a.cfg.AIEnabled() {
		return nil, nil
	}
	timeout := time.Duration(a.cfg.AI.TimeoutSeconds) * time.Second
	client, err := ai.New(ai.Config{
		BaseURL: a.cfg.AI.BaseURL,
		APIKey:  a.cfg.AI.APIKey,
		Model:   a.cfg.AI.Model,
		Timeout: timeout,
	}, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("init ai classifier: %w", err)
	}
	return client, nil
}

func (a *App) initHub() error {
	promSink, err := sinks.NewPrometheusSink(a.metrics)
	if err != nil {
		return fmt.Errorf("init prometheus sink: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.MaxBatchWaitMs) * time.Millisecond,
		Logger:         a.logger.Named("progress"),
	},
		sinks.NewStoreSink(a.store, a.logger.Named("progress")),
		promSink,
		sinks.NewLogSink(a.logger.Named("progress")),
	)
	a.addCloser("progress hub", a.hub.Close)
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if p, ok := a.store.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (a *App) addCloser(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases every service in reverse order of creation and reports all
// failures together.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
