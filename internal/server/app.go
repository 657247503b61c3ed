// Package server builds the sitepdf service from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/api"
	"github.com/JakeFAU/sitepdf/internal/clock/system"
	"github.com/JakeFAU/sitepdf/internal/config"
	"github.com/JakeFAU/sitepdf/internal/crawler"
	"github.com/JakeFAU/sitepdf/internal/dispatcher"
	"github.com/JakeFAU/sitepdf/internal/hash/sha256"
	"github.com/JakeFAU/sitepdf/internal/id/uuid"
	"github.com/JakeFAU/sitepdf/internal/pipeline"
	"github.com/JakeFAU/sitepdf/internal/progress"
	progresssinks "github.com/JakeFAU/sitepdf/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/sitepdf/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/sitepdf/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/sitepdf/internal/queue/memory"
	gcsstorage "github.com/JakeFAU/sitepdf/internal/storage/gcs"
	localstorage "github.com/JakeFAU/sitepdf/internal/storage/local"
	memorystorage "github.com/JakeFAU/sitepdf/internal/storage/memory"
	pgstore "github.com/JakeFAU/sitepdf/internal/storage/postgres"
	"github.com/JakeFAU/sitepdf/internal/worker"
)

const shutdownTimeout = 30 * time.Second

// catalog is what the service needs from a capture catalog backend.
type catalog interface {
	crawler.CaptureCatalog
	api.CaptureLister
}

// App holds the service and everything that must be released on shutdown.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	queue     *queuememory.Queue
	hub       *progress.Hub
	gcs       *storage.Client
	pgCatalog *pgstore.CaptureStore
	pubsub    *gcppublisher.Publisher
}

// Build wires the service: blob store, capture catalog, publisher, progress
// hub, pipeline, worker pool and HTTP API.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Backend),
		zap.Int("workers", cfg.Worker.Concurrency),
	)

	jobStore := memorystorage.NewJobStore()

	blobStore, err := app.setupStorage(ctx)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	captures, err := app.setupCatalog(ctx)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := app.setupProgress(ctx, jobStore); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	runner := NewPipeline(cfg, app.hub, logger)
	clock := system.New()
	app.queue = queuememory.NewQueue(cfg.Worker.QueueDepth)

	workerCfg := worker.Config{
		BlobPrefix:    cfg.Storage.Prefix,
		Topic:         cfg.PubSub.TopicName,
		IncludeReport: cfg.Worker.IncludeReport,
		MaxAttempts:   cfg.Worker.MaxAttempts,
		CaptureID:     uuid.CaptureID,
	}
	workers := make([]*worker.Worker, 0, cfg.Worker.Concurrency)
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		workers = append(workers, worker.New(
			app.queue,
			jobStore,
			blobStore,
			captures,
			publisher,
			runner,
			clock,
			workerCfg,
			logger.With(zap.Int("index", i)),
		))
	}
	app.dispatch = dispatcher.New(app.queue, jobStore, uuid.New(), clock, workers)
	app.apiServer = api.NewServer(runner, app.dispatch, jobStore, blobStore, captures, cfg, logger)
	return app, nil
}

// NewPipeline builds the crawl, document and summary pipeline described by
// cfg. A nil emitter discards progress.
func NewPipeline(cfg config.Config, emitter progress.Emitter, logger *zap.Logger) *pipeline.Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := system.New()
	crawlOpts := crawler.Options{
		NavTimeout:     cfg.Capture.NavTimeout,
		Delay:          cfg.Capture.Delay,
		UserAgent:      cfg.Capture.UserAgent,
		KeepErrorPages: cfg.Capture.KeepErrorPages,
		Now:            clock.NowFunc(),
	}
	if cfg.Capture.MaxAttempts > 1 {
		crawlOpts.Retry = crawler.NewExponentialRetryPolicy(cfg.Capture.MaxAttempts)
	}

	browser := browserLauncher(cfg, logger)
	router := crawler.Router{Browser: crawler.New(browser, crawlOpts, logger)}
	if cfg.Capture.StaticFastMode {
		router.Static = crawler.New(collyLauncher(cfg, logger), crawlOpts, logger.Named("static"))
	}

	generator := newGenerator(cfg, logger)
	summarizer := newSummarizer(cfg, logger)

	var opts pipeline.Options
	opts.Hasher = sha256.New()
	opts.IDs = uuid.New()
	opts.Clock = clock
	if emitter != nil {
		opts.Progress = emitter
	}
	return pipeline.New(router, generator, summarizer, opts, logger)
}

func (a *App) setupStorage(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcs = client
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:       a.cfg.Storage.GCSBucket,
			CacheControl: a.cfg.Storage.CacheControl,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return store, nil
	case config.BackendLocal:
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.BaseDir))
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return store, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupCatalog(ctx context.Context) (catalog, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no db.dsn configured, keeping the capture catalog in memory")
		return memorystorage.NewCaptureCatalog(), nil
	}
	store, err := pgstore.NewCaptureStore(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("capture store init failed: %w", err)
	}
	a.pgCatalog = store
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("capture store schema: %w", err)
	}
	a.logger.Info("capture catalog initialized", zap.String("table", a.cfg.DB.Table))
	return store, nil
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.pubsub = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func (a *App) setupProgress(ctx context.Context, counters progresssinks.CounterStore) error {
	promSink, err := progresssinks.NewPrometheusSink(nil)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewCounterSink(counters, a.logger.Named("progress_counters")),
		promSink,
	}
	if a.cfg.Progress.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and runs the worker pool until ctx is canceled or the
// process receives SIGINT or SIGTERM, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Worker.Concurrency))
		a.dispatch.Run(workerCtx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")
	a.apiServer.SetDraining(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	// Queued jobs are abandoned; running jobs see cancellation and record it.
	a.queue.Close()
	cancelWorkers()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before the shutdown deadline")
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close releases every client the App opened. It is safe to call after Run.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.hub = nil
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
	if a.pgCatalog != nil {
		a.pgCatalog.Close()
		a.pgCatalog = nil
	}
}
