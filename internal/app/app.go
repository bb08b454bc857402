package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/NotARoomba/canvas/internal/data/db"
	httpx "github.com/NotARoomba/canvas/internal/http"
	"github.com/NotARoomba/canvas/internal/observability"
	"github.com/NotARoomba/canvas/internal/platform/envutil"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/realtime"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	SSEHub   *realtime.SSEHub
	Server   *httpx.Server
	// Metrics is nil unless METRICS_ENABLED is set.
	Metrics  *observability.Metrics

	dbService *db.Service
	otelStop  func(context.Context) error
	cancel    context.CancelFunc
	done      chan error
	closeOnce sync.Once
	closeErr  error
}

// NewLogger seeds the environment from .env and builds the process logger.
func NewLogger() (*logger.Logger, error) {
	envutil.LoadDotEnv(nil)
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// OpenDB connects to the configured database and migrates every model.
func OpenDB(log *logger.Logger) (*db.Service, error) {
	svc, err := db.Open(log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return svc, nil
}

func New(ctx context.Context, log *logger.Logger) (*App, error) {
	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelStop := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "canvas",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	dbService, err := OpenDB(log)
	if err != nil {
		return nil, err
	}
	theDB := dbService.DB()

	reposet := wireRepos(theDB, log)
	clients, err := wireClients(log, cfg)
	if err != nil {
		_ = dbService.Close()
		return nil, err
	}

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	ssehub := realtime.NewSSEHub(log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients, ssehub, metrics)
	if err != nil {
		clients.Close()
		_ = dbService.Close()
		return nil, err
	}
	handlerset := wireHandlers(theDB, log, serviceset, ssehub)

	return &App{
		Log:       log,
		DB:        theDB,
		Cfg:       cfg,
		Repos:     reposet,
		Clients:   clients,
		Services:  serviceset,
		SSEHub:    ssehub,
		Server:    wireServer(log, cfg, handlerset, metrics),
		Metrics:   metrics,
		dbService: dbService,
		otelStop:  otelStop,
	}, nil
}

/*
Start runs the background side of the process: the Redis forwarder (if any)
starts feeding the hub and the worker pool begins draining the queue. It
returns immediately; Close stops both.
*/
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	if a.Clients.Bus != nil {
		if err := a.Clients.Bus.StartForwarder(runCtx, a.SSEHub.Broadcast); err != nil {
			cancel()
			return fmt.Errorf("start realtime forwarder: %w", err)
		}
	}
	a.cancel = cancel
	a.done = make(chan error, 1)

	a.Metrics.StartJobQueueCollector(runCtx, a.Log, a.DB, a.Cfg.MetricsScrapeInterval)

	go func() { a.done <- a.Services.JobWorker.Run(runCtx) }()
	return nil
}

/*
Serve blocks on the HTTP server until ctx ends, then shuts everything down.
Runs left queued or running by a previous server process are abandoned first.
*/
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	abandonStaleRuns(ctx, a.Log, a.Repos)
	if err := a.Start(ctx); err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.Addr())
		errCh <- a.Server.Run()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.Log.Info("Shutdown requested")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Log.Warn("HTTP shutdown", "error", err)
	}
	return errors.Join(serveErr, a.Close())
}

// Close stops the worker (queued runs are abandoned) and releases clients.
// Calls after the first return the first result.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	a.closeOnce.Do(func() { a.closeErr = a.close() })
	return a.closeErr
}

func (a *App) close() error {
	var err error
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
		if werr := <-a.done; werr != nil && !errors.Is(werr, context.Canceled) {
			err = werr
		}
	}
	a.Clients.Close()
	if a.otelStop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if oerr := a.otelStop(ctx); oerr != nil {
			a.Log.Warn("otel shutdown", "error", oerr)
		}
		cancel()
	}
	if a.dbService != nil {
		err = errors.Join(err, a.dbService.Close())
	}
	a.Log.Sync()
	return err
}
