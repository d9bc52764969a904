// Package server builds the ingest application from configuration and owns
// its long-lived resources.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/api"
	"github.com/JakeFAU/catalog-ingest/internal/apiclient"
	"github.com/JakeFAU/catalog-ingest/internal/batch"
	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/clock/system"
	"github.com/JakeFAU/catalog-ingest/internal/config"
	"github.com/JakeFAU/catalog-ingest/internal/discovery"
	"github.com/JakeFAU/catalog-ingest/internal/embedding"
	collyfetcher "github.com/JakeFAU/catalog-ingest/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-ingest/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-ingest/internal/hash/sha256"
	"github.com/JakeFAU/catalog-ingest/internal/id/uuid"
	"github.com/JakeFAU/catalog-ingest/internal/logging"
	"github.com/JakeFAU/catalog-ingest/internal/metrics"
	"github.com/JakeFAU/catalog-ingest/internal/normalize"
	"github.com/JakeFAU/catalog-ingest/internal/persist"
	"github.com/JakeFAU/catalog-ingest/internal/pipeline"
	"github.com/JakeFAU/catalog-ingest/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/catalog-ingest/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/catalog-ingest/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/catalog-ingest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/catalog-ingest/internal/storage/local"
	memorystorage "github.com/JakeFAU/catalog-ingest/internal/storage/memory"
	pgstore "github.com/JakeFAU/catalog-ingest/internal/storage/postgres"
	supastore "github.com/JakeFAU/catalog-ingest/internal/storage/supabase"
	"github.com/JakeFAU/catalog-ingest/internal/telemetry"
)

const (
	serviceName = "catalog-ingest"
	// Version is stamped into traces.
	Version = "0.1.0"
)

// App contains the application's dependencies.
type App struct {
	cfg        config.Config
	site       config.Site
	filter     []string
	logger     *zap.Logger
	api        *apiclient.Client
	resolver   *discovery.Resolver
	pipeline   *pipeline.Pipeline
	opsServer  *api.Server
	renderer   *headless.Renderer
	store      catalog.ProductStore
	gcs        *gcsstorage.BlobStore
	pubsub     *gcppublisher.Publisher
	tracerStop func(context.Context) error
}

// Build creates the application's dependencies. The logger is built from cfg
// when nil.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	app := &App{cfg: cfg, logger: logger}

	if err := app.loadSite(); err != nil {
		return nil, err
	}

	tp, err := telemetry.InitTracerProvider(ctx, serviceName, Version)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerStop = tp.Shutdown
	metrics.Init()

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.RequestsPerSecond,
		DefaultBurst: cfg.HTTP.Burst,
	})
	headers := collyfetcher.DefaultHeaders()
	for k, v := range app.site.HTTPHeaders() {
		headers[k] = v
	}
	fetcher := ratelimit.Wrap(collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      cfg.HTTPTimeout(),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Headers:      headers,
	}), limiter)
	app.api = apiclient.New(fetcher, nil, logger)

	if err := app.setupDiscovery(); err != nil {
		return nil, err
	}

	archive, err := app.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	batches, err := batch.New(app.api, archive, batch.Config{
		BatchSize: cfg.Fetch.BatchSize,
		IDParam:   app.site.API.IDParam,
		ItemsPath: app.site.API.ItemsPath,
		Fields:    app.site.API.Fields,
		Expand:    expandLevels(app.site.API.Expand),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("batch fetcher init failed: %w", err)
	}

	normalizer := normalize.New(normalize.Defaults{
		Source:             app.site.Source,
		Brand:              app.site.Brand,
		Merchant:           app.site.Merchant,
		Currency:           app.site.Currency,
		ImageHost:          app.site.ImageHost,
		ProductURLTemplate: app.site.ProductURLTemplate,
		ClassByCategoryID:  app.site.ClassTable(),
	}, sha256.New())

	embedder, textModel := app.setupEmbedding(fetcher)

	if err := app.setupStore(ctx); err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	app.pipeline = pipeline.New(pipeline.Deps{
		Resolver:   app.resolver,
		Batches:    batches,
		Normalizer: normalizer,
		Embedder:   embedder,
		TextModel:  textModel,
		Persister:  persist.New(app.store, cfg.DB.BatchSize, logger),
		Publisher:  publisher,
		Clock:      system.New(),
		IDs:        uuid.New(),
		Logger:     logger,
	}, pipeline.Config{
		Limit:   cfg.Fetch.Limit,
		Workers: cfg.Embedding.Workers,
	})

	if cfg.Server.MetricsAddr != "" {
		app.opsServer = api.NewServer(app.pipeline, logger)
	}
	return app, nil
}

func expandLevels(in []config.ExpandLevel) []batch.Level {
	out := make([]batch.Level, 0, len(in))
	for _, l := range in {
		out = append(out, batch.Level{Name: l.Name, Path: l.Path})
	}
	return out
}

func (a *App) loadSite() error {
	site, err := config.LoadSite(a.cfg.SitesFile)
	if err != nil {
		return fmt.Errorf("site config: %w", err)
	}
	a.site = site
	if a.cfg.CategoriesFile != "" {
		a.filter, err = config.LoadCategoryFilter(a.cfg.CategoriesFile)
		if err != nil {
			return err
		}
		a.logger.Info("category filter loaded", zap.Int("categories", len(a.filter)))
	}
	return nil
}

func (a *App) setupDiscovery() error {
	var renderer catalog.Renderer
	if a.cfg.Headless.Enabled {
		r, err := headless.NewChromedp(headless.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.HTTP.UserAgent,
			Headers:           a.site.HTTPHeaders(),
			NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
			IdleTimeout:       time.Duration(a.cfg.Headless.IdleTimeoutSec) * time.Second,
		})
		if err != nil {
			a.logger.Warn("headless renderer init failed, rendered-page discovery disabled", zap.Error(err))
		} else {
			a.renderer = r
			renderer = r
			a.logger.Info("using headless renderer", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
		}
	}
	resolver, err := discovery.New(a.api, renderer, discovery.Config{
		IDField:    a.site.API.IDField,
		ItemsPath:  a.site.API.ItemsPath,
		ItemIDPath: a.site.API.ItemIDPath,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("discovery init failed: %w", err)
	}
	a.resolver = resolver
	return nil
}

func (a *App) setupArchive(ctx context.Context) (catalog.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		store, err := gcsstorage.Dial(ctx, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.gcs = store
		a.logger.Info("archiving raw batches to GCS", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return store, nil
	case config.StorageLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("archiving raw batches locally", zap.String("path", a.cfg.Storage.LocalDir))
		return store, nil
	case config.StorageMemory:
		a.logger.Info("archiving raw batches in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) setupEmbedding(fetcher catalog.Fetcher) (pipeline.ImageEmbedder, embedding.TextModel) {
	ec := a.cfg.Embedding
	service := embedding.NewService(embedding.ServiceConfig{
		BaseURL:   ec.ServiceURL,
		Timeout:   time.Duration(ec.TimeoutSeconds) * time.Second,
		InputSize: ec.InputSize,
	}, &http.Client{Timeout: time.Duration(ec.TimeoutSeconds) * time.Second})

	validation := embedding.DefaultValidation()
	if rules := a.site.ImageRules; !rules.IsZero() {
		validation = embedding.ValidationConfig{
			RetailerMarker: rules.RetailerMarker,
			StaticPrefix:   rules.StaticPrefix,
			AssetToken:     rules.AssetToken,
			MinLength:      rules.MinLength,
		}
	}
	generator := embedding.New(fetcher, service, embedding.Config{
		MaxAttempts: ec.MaxAttempts,
		BackoffBase: time.Duration(ec.BackoffBaseMs) * time.Millisecond,
		Referer:     a.site.Referer,
		Validation:  validation,
	}, a.logger)
	a.logger.Info("embedding service configured",
		zap.String("url", ec.ServiceURL),
		zap.Int("workers", ec.Workers),
		zap.Bool("text", ec.TextEnabled),
	)
	if !ec.TextEnabled {
		return generator, nil
	}
	return generator, service
}

func (a *App) setupStore(ctx context.Context) error {
	db := a.cfg.DB
	switch db.StoreBackend() {
	case config.DBPostgres:
		store, err := pgstore.NewProductStore(ctx, pgstore.ProductStoreConfig{
			DSN:              db.DSN,
			Table:            db.Table,
			MaxConns:         db.MaxConns,
			StatementTimeout: time.Duration(db.StatementTimeoutSec) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		a.store = store
		a.logger.Info("persisting to postgres", zap.String("table", db.Table))
	case config.DBSupabase:
		store, err := supastore.NewProductStore(supastore.Config{
			URL:   db.SupabaseURL,
			Key:   db.SupabaseKey,
			Table: db.Table,
		})
		if err != nil && !errors.Is(err, catalog.ErrStoreDisabled) {
			return fmt.Errorf("supabase store init failed: %w", err)
		}
		if store != nil {
			a.store = store
			a.logger.Info("persisting to supabase", zap.String("table", db.Table))
		}
	default:
		a.logger.Warn("no row store credentials configured, persistence disabled")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (catalog.Publisher, error) {
	ps := a.cfg.PubSub
	if ps.TopicName == "" || ps.ProjectID == "" {
		a.logger.Debug("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.Dial(ctx, ps.ProjectID, ps.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub init failed: %w", err)
	}
	a.pubsub = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", ps.ProjectID),
		zap.String("topic", ps.TopicName),
	)
	return pub, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Categories returns the configured categories after the category filter.
func (a *App) Categories() []catalog.Category {
	return a.site.ExpandCategories(a.filter)
}

// Prewarm fetches the site's warm-up URLs, ignoring failures.
func (a *App) Prewarm(ctx context.Context) {
	a.api.Prewarm(ctx, a.site.Prewarm)
}

// Run executes one ingest run over the configured categories. The ops server,
// when configured, serves for the duration of the run.
func (a *App) Run(ctx context.Context) pipeline.Summary {
	if a.opsServer != nil {
		opsCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := a.opsServer.Serve(opsCtx, a.cfg.Server.MetricsAddr); err != nil {
				a.logger.Warn("ops server stopped", zap.Error(err))
			}
		}()
		a.opsServer.SetReady(true)
	}
	a.Prewarm(ctx)
	return a.pipeline.Run(ctx, a.Categories())
}

// Discover resolves every configured category without fetching products.
func (a *App) Discover(ctx context.Context) map[string]discovery.Result {
	out := make(map[string]discovery.Result)
	a.Prewarm(ctx)
	for _, cat := range a.Categories() {
		if ctx.Err() != nil {
			break
		}
		out[cat.ID] = a.resolver.Resolve(ctx, cat)
	}
	return out
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	a.pubsub.Close()
	if a.tracerStop != nil {
		if err := a.tracerStop(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
