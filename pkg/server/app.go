package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mid "NKDash/internal/middleware"
	"NKDash/internal/usecase"
	"NKDash/pkg/config"
	xhttp "NKDash/pkg/http"
	applogger "NKDash/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	manager    *usecase.ConnectionManager
	pipeline   *mid.EventPipeline
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	manager *usecase.ConnectionManager,
	pipeline *mid.EventPipeline,
	httpServer *xhttp.Server,
) *App {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		logger:     logger,
		manager:    manager,
		pipeline:   pipeline,
		httpServer: httpServer,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// Serve runs until ctx ends, then shuts everything down.
func (a *App) Serve(ctx context.Context) error {
	if a.pipeline != nil && a.pipeline.Enabled() {
		events, _ := a.manager.Subscribe("pipeline")
		a.pipeline.Start(ctx, events)
		a.logger.Info("event pipeline started",
			applogger.Bool("redis_mirror", a.cfg != nil && a.cfg.Redis.Enabled),
			applogger.Bool("kafka_events", a.cfg != nil && a.cfg.Kafka.Enabled))
	}

	a.manager.Start(ctx)

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.logger.Error("http server start error", applogger.Error(err))
			_ = a.shutdown()
			return err
		}
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	a.manager.Shutdown()

	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
		defer cancel()
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
		}
	}

	// flush aggregated error logs while the kafka producer is still open
	a.logger.RemoveCollector()

	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	a.logger.Info("shutdown complete")
	return nil
}
