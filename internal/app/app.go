// Package app wires configuration into the long-lived admission services and
// owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/crawl-admission/internal/admission"
	"github.com/JakeFAU/crawl-admission/internal/api"
	"github.com/JakeFAU/crawl-admission/internal/clock/system"
	"github.com/JakeFAU/crawl-admission/internal/config"
	"github.com/JakeFAU/crawl-admission/internal/crawler"
	"github.com/JakeFAU/crawl-admission/internal/dispatcher"
	"github.com/JakeFAU/crawl-admission/internal/id/uuid"
	"github.com/JakeFAU/crawl-admission/internal/logging"
	"github.com/JakeFAU/crawl-admission/internal/metrics"
	"github.com/JakeFAU/crawl-admission/internal/policy/conditions"
	"github.com/JakeFAU/crawl-admission/internal/policy/domain"
	"github.com/JakeFAU/crawl-admission/internal/progress"
	progresssinks "github.com/JakeFAU/crawl-admission/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/crawl-admission/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/crawl-admission/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/crawl-admission/internal/queue/memory"
	"github.com/JakeFAU/crawl-admission/internal/scanindex"
	"github.com/JakeFAU/crawl-admission/internal/seed"
	liststorage "github.com/JakeFAU/crawl-admission/internal/storage"
	gcsstorage "github.com/JakeFAU/crawl-admission/internal/storage/gcs"
	localstorage "github.com/JakeFAU/crawl-admission/internal/storage/local"
	memoryStorage "github.com/JakeFAU/crawl-admission/internal/storage/memory"
	pgstore "github.com/JakeFAU/crawl-admission/internal/storage/postgres"
	redisstore "github.com/JakeFAU/crawl-admission/internal/storage/redis"
	"github.com/JakeFAU/crawl-admission/internal/store"
	"github.com/JakeFAU/crawl-admission/internal/telemetry"
	"github.com/JakeFAU/crawl-admission/internal/worker"
)

const (
	tracerName     = "github.com/JakeFAU/crawl-admission/internal/admission"
	gaugeInterval  = 5 * time.Second
	shutdownBudget = 10 * time.Second
)

// queueStore is what every store driver provides.
type queueStore interface {
	crawler.EligibilityStore
	crawler.QueueReader
	Ping(ctx context.Context) error
}

// Options override collaborators that are otherwise derived from config.
type Options struct {
	// Logger replaces the logger built from the logging section.
	Logger *zap.Logger
	// Registerer receives the progress collectors; nil means the default.
	Registerer prometheus.Registerer
	// Publisher receives "queue item added" notifications instead of Pub/Sub.
	Publisher crawler.Publisher
}

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	source         liststorage.Source
	gcs            *gcsstorage.Source
	store          queueStore
	stats          store.StatsRepository
	index          scanindex.Index
	engine         *admission.Engine
	progressHub    *progress.Hub
	pubsub         *gcppublisher.Publisher
	queue          *queueMemory.Queue
	dispatch       *dispatcher.Dispatcher
	apiServer      *api.Server
	seeds          *seed.Loader
	tracerShutdown telemetry.ShutdownFunc
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Options{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}
	app := &App{cfg: cfg, logger: logger}

	shutdown, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.TracingEnabled,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Exporter:    cfg.Telemetry.Exporter,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = shutdown

	app.logger.Info("building application dependencies",
		zap.String("store_driver", cfg.Store.Driver),
		zap.Int("concurrency", cfg.Admission.Concurrency),
		zap.Int("refetch_days", cfg.Admission.RefetchDays),
	)

	if err := app.build(ctx, opts); err != nil {
		app.closeInfrastructure(ctx)
		app.closeObservability(ctx)
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	if err := a.setupSources(ctx); err != nil {
		return err
	}
	if err := a.setupStore(ctx); err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx, opts.Publisher)
	if err != nil {
		return err
	}
	if err := a.setupProgress(ctx, opts.Registerer, publisher); err != nil {
		return err
	}
	if err := a.setupEngine(ctx); err != nil {
		return err
	}

	a.queue = queueMemory.NewQueue(a.cfg.Admission.QueueDepth)
	a.dispatch = dispatcher.NewPool(
		a.queue,
		a.engine,
		a.cfg.Admission.Concurrency,
		nil,
		logging.Component(a.logger, "dispatcher"),
	)
	a.seeds = seed.New(a.store, a.source, logging.Component(a.logger, "seed"))
	a.apiServer = api.NewServer(api.Deps{
		Admitter:   a.engine,
		Queue:      a.store,
		Dispatcher: a.dispatch,
		Stats:      a.stats,
		Ready:      a.store.Ping,
	}, a.cfg, logging.Component(a.logger, "api"))
	return nil
}

func (a *App) setupSources(ctx context.Context) error {
	router := liststorage.Router{
		Local: localstorage.New(localstorage.Config{BaseDir: a.cfg.Source.BaseDir}),
	}
	if usesGCS(a.cfg.Seed.File, a.cfg.Domains.AllowFile, a.cfg.Domains.DenyFile) {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcs, err = gcsstorage.New(client)
		if err != nil {
			return fmt.Errorf("gcs source init failed: %w", err)
		}
		router.GCS = a.gcs
		a.logger.Info("using GCS list source")
	}
	a.source = router
	return nil
}

func usesGCS(uris ...string) bool {
	for _, uri := range uris {
		if _, _, err := gcsstorage.ParseURI(uri); err == nil {
			return true
		}
	}
	return false
}

func (a *App) setupStore(ctx context.Context) error {
	clock := system.New()
	ids := uuid.New()
	switch a.cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("postgres pool init failed: %w", err)
		}
		queueStore, err := pgstore.NewQueueStore(pool, pgstore.QueueStoreConfig{
			Table:           a.cfg.DB.QueueTable,
			RefetchCooldown: a.cfg.RefetchCooldown(),
		}, clock, ids)
		if err != nil {
			pool.Close()
			return fmt.Errorf("queue store init failed: %w", err)
		}
		a.store = queueStore
		statsStore, err := pgstore.NewStatsStore(pool, a.cfg.DB.StatsTable)
		if err != nil {
			return fmt.Errorf("stats store init failed: %w", err)
		}
		a.stats = statsStore
		if a.cfg.DB.EnsureSchema {
			if err := queueStore.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("ensure queue schema: %w", err)
			}
			if err := statsStore.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("ensure stats schema: %w", err)
			}
		}
		a.logger.Info("postgres store initialized",
			zap.String("queue_table", a.cfg.DB.QueueTable),
			zap.String("stats_table", a.cfg.DB.StatsTable),
		)
	case config.StoreRedis:
		redisCfg := redisstore.Config{
			Addr:            a.cfg.Redis.Addr,
			Password:        a.cfg.Redis.Password,
			DB:              a.cfg.Redis.DB,
			KeyPrefix:       a.cfg.Redis.KeyPrefix,
			RefetchCooldown: a.cfg.RefetchCooldown(),
		}
		client, err := redisstore.NewClient(redisCfg)
		if err != nil {
			return fmt.Errorf("redis client init failed: %w", err)
		}
		queueStore, err := redisstore.NewQueueStore(client, redisCfg, clock, ids)
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("queue store init failed: %w", err)
		}
		a.store = queueStore
		a.stats = memoryStorage.NewStatsStore()
		a.logger.Info("redis store initialized", zap.String("addr", a.cfg.Redis.Addr))
	default:
		a.store = memoryStorage.NewQueueStore(a.cfg.RefetchCooldown(), clock, ids)
		a.stats = memoryStorage.NewStatsStore()
		a.logger.Warn("using in-memory eligibility store; queue state is lost on exit")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context, override crawler.Publisher) (crawler.Publisher, error) {
	if override != nil {
		return override, nil
	}
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsub = gcppublisher.New(client, a.cfg.PubSub.TopicName)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.pubsub, nil
}

func (a *App) setupProgress(ctx context.Context, reg prometheus.Registerer, publisher crawler.Publisher) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{promSink}
	if a.cfg.Progress.LogOutcomes {
		sinkList = append(sinkList, progresssinks.NewLogSink(logging.Component(a.logger, "progress_log")))
	}
	if a.cfg.Progress.HostStats {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.stats, logging.Component(a.logger, "progress_store")))
	}
	sinkList = append(sinkList, progresssinks.NewPublishSink(
		publisher,
		a.cfg.PubSub.TopicName,
		logging.Component(a.logger, "progress_publish"),
	))
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.MaxBatchWait(),
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         logging.Component(a.logger, "progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func (a *App) setupEngine(ctx context.Context) error {
	validator, err := domain.FromConfig(ctx, domain.Config{
		Allow:              a.cfg.Domains.Allow,
		Deny:               a.cfg.Domains.Deny,
		AllowFile:          a.cfg.Domains.AllowFile,
		DenyFile:           a.cfg.Domains.DenyFile,
		RequireRegistrable: a.cfg.Domains.RequireRegistrable,
		Source:             a.source,
	})
	if err != nil {
		return fmt.Errorf("domain policy init failed: %w", err)
	}
	filter, err := conditions.FromConfig(a.cfg.ConditionsFilterConfig())
	if err != nil {
		return fmt.Errorf("fetch conditions init failed: %w", err)
	}
	a.index, err = scanindex.New(a.cfg.ScanIndexSettings())
	if err != nil {
		return fmt.Errorf("scan index init failed: %w", err)
	}
	a.engine, err = admission.New(admission.Deps{
		Store:     a.store,
		Filter:    filter,
		Index:     a.index,
		Validator: validator,
		Emitter:   a.progressHub,
		Clock:     system.New(),
		Logger:    logging.Component(a.logger, "admission"),
		Tracer:    otel.Tracer(tracerName),
	}, a.cfg.Settings())
	if err != nil {
		return fmt.Errorf("admission engine init failed: %w", err)
	}
	a.logger.Info("admission engine initialized",
		zap.Strings("conditions", a.cfg.Conditions.Enabled),
		zap.String("scan_index", a.cfg.ScanIndex.Kind),
		zap.Int("max_depth", a.cfg.Admission.MaxDepth),
	)
	return nil
}

// Engine returns the admission engine.
func (a *App) Engine() *admission.Engine {
	return a.engine
}

// Seeds returns the seed loader bound to the configured store.
func (a *App) Seeds() *seed.Loader {
	return a.seeds
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// AdmitAll pushes every raw URL through a dedicated worker pool and waits
// for all outcomes. onOutcome runs on worker goroutines.
func (a *App) AdmitAll(ctx context.Context, urls []string, onOutcome worker.OutcomeHandler) (worker.Counters, error) {
	q := queueMemory.NewQueue(a.cfg.Admission.QueueDepth)
	pool := dispatcher.NewPool(q, a.engine, a.cfg.Admission.Concurrency, onOutcome, logging.Component(a.logger, "batch"))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pool.Run(gctx)
		return nil
	})
	g.Go(func() error {
		defer q.Close()
		for _, raw := range urls {
			if err := pool.Enqueue(gctx, crawler.Discovery{URL: raw}); err != nil {
				return err
			}
		}
		return nil
	})
	err := g.Wait()
	return pool.Counters(), err
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Seed.File != "" {
		if _, err := a.seeds.LoadFile(ctx, a.cfg.Seed.File); err != nil {
			a.logger.Error("seed load failed", zap.String("file", a.cfg.Seed.File), zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Size()))
		a.dispatch.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.sampleGauges(gctx)
		return nil
	})
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownBudget)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		return err
	}
	return runErr
}

func (a *App) sampleGauges(ctx context.Context) {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()
	for {
		a.publishGauges()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) publishGauges() {
	metrics.SetQueueDepth(a.queue.Len())
	metrics.SetScanIndexKeys(a.index.Len())
	metrics.SetHubDropped(a.progressHub.Stats().Dropped)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.progressHub = nil
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsub = nil
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcs = nil
	}
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracerShutdown = nil
	}
}
