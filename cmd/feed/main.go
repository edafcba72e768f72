package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"NKDash/internal/service/feed"
	"NKDash/pkg/config"
	xhttp "NKDash/pkg/http"
	applogger "NKDash/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	l = l.With(applogger.String("component", "feed"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := feed.NewGenerator(cfg.Feed.Positions, time.Now().UnixNano())
	go gen.Run(ctx, cfg.Feed.Interval)

	// /metrics belongs to the feed payload, so prometheus moves aside
	srv := xhttp.NewServer(feed.NewHandler(gen, cfg.Feed.Interval, l),
		xhttp.WithPort(cfg.Feed.Port),
		xhttp.WithMetrics(cfg.Metrics.Enabled, "/prometheus"),
		xhttp.WithLogger(l),
	)
	if err := srv.Start(); err != nil {
		l.Error("feed server start error", applogger.Error(err))
		os.Exit(1)
	}
	l.Info("feed running",
		applogger.Int("port", cfg.Feed.Port),
		applogger.Duration("interval_ms", cfg.Feed.Interval),
		applogger.Strings("positions", cfg.Feed.Positions),
	)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), srv.ShutdownTimeout())
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		l.Error("feed shutdown error", applogger.Error(err))
	}
}
