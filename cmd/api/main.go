// Package main implements the herbid API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/herbid/herbid/engine/app"
	"github.com/herbid/herbid/engine/config"
	"github.com/herbid/herbid/engine/domain"
	"github.com/herbid/herbid/pkg/metrics"
	"github.com/herbid/herbid/pkg/natsutil"
	"github.com/herbid/herbid/pkg/resilience"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("could not load .env", "err", err)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	a, err := app.Build(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// --- Events (optional) ---
	var nc *nats.Conn
	if cfg.Events.NATSURL != "" {
		nc, err = natsutil.Connect(cfg.Events.NATSURL, "herbid-api", logger)
		if err != nil {
			logger.Warn("events disabled", "err", err)
		} else {
			defer nc.Drain()
		}
	}
	var pub natsutil.MsgPublisher
	if nc != nil {
		pub = nc
	}
	events := natsutil.NewEmitter[domain.IdentifiedEvent](pub, cfg.Events.Subject, logger)

	// --- HTTP ---
	var limiter *resilience.KeyedLimiter
	if cfg.Server.RequestsPerMinute > 0 {
		limiter = resilience.NewKeyedLimiter(resilience.LimiterOpts{
			Rate:  float64(cfg.Server.RequestsPerMinute) / 60,
			Burst: cfg.Server.RequestsPerMinute,
		})
		go pruneLoop(ctx, limiter)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newServer(a.Engine, a.Catalog, events, reg, cfg.Server, limiter, logger).routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func pruneLoop(ctx context.Context, l *resilience.KeyedLimiter) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Prune()
		}
	}
}

