// Package app assembles the clipscope components from configuration. Both
// the server and the CLI build on it so they share one wiring.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/clipscope/clipscope/internal/analysis"
	"github.com/clipscope/clipscope/internal/api"
	"github.com/clipscope/clipscope/internal/config"
	"github.com/clipscope/clipscope/internal/database"
	"github.com/clipscope/clipscope/internal/discussion"
	"github.com/clipscope/clipscope/internal/inference"
	"github.com/clipscope/clipscope/internal/ingestion"
	"github.com/clipscope/clipscope/internal/memstore"
	"github.com/clipscope/clipscope/internal/metadata"
	"github.com/clipscope/clipscope/internal/metrics"
	"github.com/clipscope/clipscope/internal/resolver"
	"github.com/clipscope/clipscope/internal/search"
	"github.com/clipscope/clipscope/internal/trigger"
	"github.com/clipscope/clipscope/internal/users"
)

// Store is everything the components need from the document store. Both
// database.Store and memstore.Store satisfy it.
type Store interface {
	ingestion.ItemStore
	ingestion.ItemWriter
	users.Store
	analysis.Store
	discussion.Store
	api.Store
	search.Source
}

var (
	_ Store = (*database.Store)(nil)
	_ Store = (*memstore.Store)(nil)
)

// App holds the assembled components.
type App struct {
	Config config.Config
	Logger *slog.Logger

	DB    *sql.DB // nil for the memory driver
	Store Store

	IngestionErrors ingestion.ErrorRecorder
	ErrorLister     api.IngestionErrorLister // nil for the memory driver
	LogLister       api.InferenceLogLister   // nil for the memory driver

	Collector *metrics.HTTPCollector
	Pipeline  *metrics.Pipeline

	Coordinator *ingestion.Coordinator
	// Orchestrator is nil when the analysis backend could not be built.
	Orchestrator    *analysis.Orchestrator
	InferenceLogger *inference.Logger
	Index           *search.Index
	Responder       *discussion.Responder
	Dispatcher      *trigger.Dispatcher

	closers []func() error
}

// Build connects the store and constructs every component. An analysis
// backend that cannot be built is logged and left disabled.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	collector, err := metrics.NewHTTPCollector()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create metrics collector: %w", err)
	}
	pipeline, err := metrics.NewPipeline(collector.Registry())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("register pipeline metrics: %w", err)
	}
	a.Collector, a.Pipeline = collector, pipeline

	httpClient := &http.Client{Timeout: cfg.Extraction.HTTPTimeout}
	res := resolver.New(cfg.Extraction.ShortenerDomains,
		resolver.WithHTTPClient(httpClient),
		resolver.WithUserAgent(cfg.Extraction.UserAgent),
		resolver.WithLogger(logger))
	extractor := metadata.NewExtractor(res, httpClient, metadata.Config{
		YouTubeEndpoint: cfg.Extraction.YouTubeOEmbedURL,
		LoomEndpoint:    cfg.Extraction.LoomOEmbedURL,
		UserAgent:       cfg.Extraction.UserAgent,
	}, logger)

	a.Coordinator = ingestion.NewCoordinator(a.Store, extractor, users.NewResolver(a.Store, logger), logger,
		ingestion.WithErrorRecorder(a.IngestionErrors),
		ingestion.WithMetrics(pipeline))

	index, err := search.Open(cfg.Search.IndexPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open search index: %w", err)
	}
	a.Index = index
	a.closers = append(a.closers, index.Close)
	if n, err := index.Count(); err == nil && n == 0 {
		if indexed, err := index.Rebuild(ctx, a.Store); err != nil {
			logger.Warn("search index rebuild failed", "error", err)
		} else if indexed > 0 {
			logger.Info("search index rebuilt", "documents", indexed)
		}
	}

	model, err := analysis.NewModel(ctx, cfg.Analysis)
	if err != nil {
		logger.Warn("analysis disabled", "provider", cfg.Analysis.Provider, "error", err)
	} else {
		fetcher := analysis.NewHTTPFetcher(&http.Client{Timeout: cfg.Analysis.Timeout}, cfg.Analysis.MaxContentBytes, cfg.Extraction.UserAgent)
		a.Orchestrator = analysis.NewOrchestrator(a.Store, fetcher, model, logger,
			analysis.WithLimiter(analysis.NewLimiter(cfg.Analysis.MaxInFlight, cfg.Analysis.LockPath)),
			analysis.WithInferenceLogger(a.InferenceLogger),
			analysis.WithIndexer(index),
			analysis.WithMetrics(pipeline),
			analysis.WithTimeout(cfg.Analysis.Timeout))
	}

	a.Responder = discussion.NewResponder(a.Store, cfg.Discussion, logger)
	a.Dispatcher = trigger.NewDispatcher(logger)
	a.registerHandlers()

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config.Database
	var inferenceRepo inference.Repository

	switch cfg.Driver {
	case "memory":
		a.Store = memstore.New()
		a.IngestionErrors = &memstore.IngestionErrors{}
		inferenceRepo = &memstore.InferenceLogs{}
	case "postgres", "sqlite":
		var (
			db      *sql.DB
			dialect database.Dialect
			err     error
		)
		if cfg.Driver == "sqlite" {
			dialect = database.DialectSQLite
			db, err = database.OpenSQLite(ctx, cfg.SQLitePath)
		} else {
			dbCfg := database.DefaultConfig()
			dbCfg.URL = cfg.URL
			if cfg.MaxConnections > 0 {
				dbCfg.MaxConnections = cfg.MaxConnections
			}
			dialect = database.DialectPostgres
			db, err = database.Connect(ctx, dbCfg)
		}
		if err != nil {
			return fmt.Errorf("connect %s: %w", cfg.Driver, err)
		}
		a.closers = append(a.closers, db.Close)

		if err := database.RunMigrations(ctx, db, dialect, a.Logger); err != nil {
			a.Close()
			return fmt.Errorf("run migrations: %w", err)
		}

		errRepo := database.NewIngestionErrorRepository(db, dialect)
		logRepo := database.NewInferenceLogRepository(db, dialect)
		a.DB = db
		a.Store = database.NewStore(db, dialect)
		a.IngestionErrors, a.ErrorLister = errRepo, errRepo
		a.LogLister, inferenceRepo = logRepo, logRepo
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	a.InferenceLogger = inference.NewLogger(inferenceRepo, a.Logger)
	return nil
}

// registerHandlers binds each event kind to its component.
func (a *App) registerHandlers() {
	a.Dispatcher.Register(trigger.KindBatchReady, func(ctx context.Context, ev trigger.Event) error {
		msg, err := trigger.DecodeBatchReady(ev)
		if err != nil {
			// Redelivering a malformed message cannot help; ack it.
			a.Logger.Warn("discarding malformed batch message", "message_id", ev.MessageID, "error", err)
			return nil
		}
		res, err := a.Coordinator.HandleBatchReady(ctx, msg)
		if err != nil {
			return err
		}
		a.Logger.Info("batch handled",
			"batch_id", res.BatchID,
			"pending", res.PendingItems,
			"videos", res.VideosCreated,
			"failed_urls", res.FailedURLs,
			"duplicate", res.Duplicate)
		return nil
	})

	if a.Config.Triggers.ItemCreatedEnabled {
		a.Dispatcher.Register(trigger.KindItemCreated, func(ctx context.Context, ev trigger.Event) error {
			return a.Coordinator.HandleItemCreated(ctx, ev.ID)
		})
	}

	if a.Orchestrator != nil {
		a.Dispatcher.Register(trigger.KindVideoCreated, func(ctx context.Context, ev trigger.Event) error {
			return a.Orchestrator.Run(ctx, ev.ID)
		})
	}

	a.Dispatcher.Register(trigger.KindCommentCreated, func(ctx context.Context, ev trigger.Event) error {
		return a.Responder.HandleComment(ctx, ev.ID)
	})
}

// Routes mounts the read API, push endpoints and metrics on mux.
func (a *App) Routes(mux *http.ServeMux) {
	rt := api.Routes{Main: api.NewHandler(a.Store, a.Index, a.Logger)}
	if a.ErrorLister != nil {
		rt.IngestionErrors = api.NewIngestionErrorHandler(a.ErrorLister, a.Logger)
	}
	if a.LogLister != nil {
		rt.InferenceLogs = api.NewInferenceLogHandler(a.LogLister, a.Logger)
	}
	api.SetupRoutes(mux, rt)

	push := map[string]trigger.Kind{
		"/push/batch-ready":     trigger.KindBatchReady,
		"/push/item-created":    trigger.KindItemCreated,
		"/push/video-created":   trigger.KindVideoCreated,
		"/push/comment-created": trigger.KindCommentCreated,
	}
	for path, kind := range push {
		mux.Handle(path, trigger.PushHandler(a.Dispatcher, kind, a.Logger))
	}

	mux.Handle("GET /metrics", a.Collector.Handler())
}

// Handler returns the instrumented HTTP handler for the server.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.Routes(mux)
	return a.Collector.InstrumentHandler(mux)
}

// Poller returns the tweet poller, or nil when no token or accounts are set.
// Polled batches are announced through the dispatcher.
func (a *App) Poller() *ingestion.Poller {
	tw := a.Config.Twitter
	if tw.BearerToken == "" || len(tw.Accounts) == 0 {
		return nil
	}
	source := ingestion.NewTwitterSource(tw.BearerToken, tw.Accounts, a.Logger)
	pollCfg := ingestion.DefaultPollerConfig()
	if tw.PollInterval > 0 {
		pollCfg.PollInterval = tw.PollInterval
	}
	return ingestion.NewPoller([]ingestion.Source{source}, a.Store, a.Dispatcher, a.Logger, pollCfg)
}

// notifyKinds maps LISTEN channels onto event kinds.
func (a *App) notifyKinds() map[string]trigger.Kind {
	kinds := map[string]trigger.Kind{
		database.ChannelVideosCreated:   trigger.KindVideoCreated,
		database.ChannelCommentsCreated: trigger.KindCommentCreated,
	}
	if a.Config.Triggers.ItemCreatedEnabled {
		kinds[database.ChannelItemsCreated] = trigger.KindItemCreated
	}
	return kinds
}

// Listen forwards Postgres creation notifications to the dispatcher until ctx
// is done. It returns nil immediately when listening is not enabled.
func (a *App) Listen(ctx context.Context) error {
	cfg := a.Config.Database
	if !cfg.Listen || cfg.Driver != "postgres" {
		return nil
	}

	kinds := a.notifyKinds()
	channels := make([]string, 0, len(kinds))
	for ch := range kinds {
		channels = append(channels, ch)
	}

	listener := database.NewListener(cfg.URL, channels, a.Logger)
	err := listener.Run(ctx, func(n database.Notification) {
		kind, ok := kinds[n.Channel]
		if !ok || !a.Dispatcher.Registered(kind) {
			return
		}
		a.Dispatcher.Submit(ctx, trigger.Event{Kind: kind, ID: n.ID})
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close waits for in-flight handlers and releases resources.
func (a *App) Close() error {
	if a.Dispatcher != nil {
		a.Dispatcher.Wait()
	}
	if a.InferenceLogger != nil {
		a.InferenceLogger.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
