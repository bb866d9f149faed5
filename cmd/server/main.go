package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/umar/roomchat/internal/chat"
	"github.com/umar/roomchat/internal/config"
	"github.com/umar/roomchat/internal/database"
	"github.com/umar/roomchat/internal/handlers"
	"github.com/umar/roomchat/internal/messaging"
	"github.com/umar/roomchat/internal/metrics"
	redisc "github.com/umar/roomchat/internal/redis"
)

const presenceRefresh = 60 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("starting chat server")
	metrics.Register(prometheus.DefaultRegisterer)

	db, err := database.InitDB(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to database", "driver", cfg.DatabaseDriver)

	if err := database.RunMigrations(db, cfg.DatabaseDriver); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("database migrations complete")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	hub := chat.NewHub(logger)
	var publisher messaging.Publisher = hub
	var presence handlers.PresenceChecker = hub

	if cfg.RedisURL != "" {
		redisClient, err := redisc.InitRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to init Redis: %w", err)
		}
		defer redisClient.Close()
		slog.Info("connected to Redis")

		bus := redisc.NewBus(redisClient, logger)
		redisPresence := redisc.NewPresence(redisClient)
		publisher = bus
		presence = redisPresence
		hub.SetFanout(bus.Publish)
		hub.SetPresence(redisPresence)

		g.Go(func() error { return bus.Relay(gctx, hub) })
		g.Go(func() error { return keepPresence(gctx, redisPresence, hub) })
	}

	svc := messaging.NewService(db, publisher, logger)
	svc.SetPageSizes(cfg.MessagePageSize, cfg.RoomPageSize)

	router := handlers.NewRouter(handlers.RouterConfig{
		Service:    svc,
		Presence:   presence,
		DB:         db,
		JWTSecret:  cfg.JWTSecret,
		CORSOrigin: cfg.CORSOrigin,
		Logger:     logger,
		WebSocket: chat.ServeWS(hub, svc, cfg.JWTSecret, chat.Limits{
			MessagesPerSecond: cfg.WSMessagesPerSecond,
			Burst:             cfg.WSBurst,
		}),
		Metrics: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

// keepPresence refreshes the presence keys of this instance's connections
// until ctx is done.
func keepPresence(ctx context.Context, presence *redisc.Presence, hub *chat.Hub) error {
	ticker := time.NewTicker(presenceRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := presence.Refresh(ctx, hub.Online()); err != nil {
				slog.Warn("presence refresh failed", "error", err)
			}
		}
	}
}
