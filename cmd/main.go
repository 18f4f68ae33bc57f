package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/config"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/auth"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/broadcast"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/contest"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/handlers"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/hub"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/kafka"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/logging"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/metrics"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/middleware"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/presence"
	redisclient "github.com/CDeX-Labs/CDeX-Live-Service/internal/redis"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/scheduler"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/store/memory"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/store/postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	devMode := pflag.Bool("dev", false, "load .env and log to the console")
	memoryStore := pflag.Bool("memory-store", false, "serve contests from an in-memory store instead of Postgres")
	pflag.Parse()

	cfg := config.InitConfig(*devMode)

	logger := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: *devMode || cfg.IsDevelopment(),
	})

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *memoryStore, logger); err != nil {
		logger.Fatal().Err(err).Msg("Service stopped with error")
	}
	logger.Info().Msg("Service stopped")
}

// openStore picks the contest store. The in-memory store is only used when
// asked for; a missing DSN is a configuration error.
func openStore(ctx context.Context, cfg *config.AppConfig, useMemory bool, logger zerolog.Logger) (contest.Store, func(), error) {
	if useMemory {
		logger.Warn().Msg("Using in-memory contest store")
		return memory.New(), func() {}, nil
	}
	if cfg.Postgres.DSN == "" {
		return nil, nil, errors.New("DATABASE_URL is required unless --memory-store is set")
	}

	pool, err := postgres.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, err
	}

	pg := postgres.New(pool)
	if cfg.Postgres.EnsureSchema {
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	logger.Info().Msg("Connected to Postgres")
	return pg, pool.Close, nil
}

func run(ctx context.Context, cfg *config.AppConfig, useMemory bool, logger zerolog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	readiness := map[string]handlers.Pinger{}

	store, closeStore, err := openStore(ctx, cfg, useMemory, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	if pinger, ok := store.(handlers.Pinger); ok {
		readiness["postgres"] = pinger
	}

	wsHub := hub.NewHub(logger, m)
	broadcaster := broadcast.New(store, wsHub, broadcast.Config{
		LeaderboardLimit: cfg.Leaderboard.Limit,
		StoreTimeout:     cfg.Leaderboard.StoreTimeout,
	}, m, logger)
	wsHub.UseSnapshots(broadcaster, cfg.Leaderboard.StoreTimeout)

	var presenceReader handlers.PresenceReader

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})

	if cfg.Redis.Enabled {
		rc, err := redisclient.NewClient(ctx, redisclient.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, m, logger)
		if err != nil {
			return err
		}
		defer rc.Close()

		pubsub := redisclient.NewPubSub(rc, wsHub.InstanceID(), wsHub.DeliverLocal, logger)
		wsHub.SetRelay(pubsub)
		broadcaster.SetSequencer(redisclient.NewSequencer(rc))

		presenceManager := presence.NewManager(rc, wsHub.InstanceID(), logger)
		wsHub.SetPresence(presenceManager)
		presenceReader = presenceManager
		readiness["redis"] = rc

		g.Go(func() error {
			return pubsub.Run(gctx)
		})
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.GroupID,
			Topics:  kafka.Topics(),
		}, m, logger)
		kafka.NewHandlers(broadcaster, logger).RegisterAll(consumer)

		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	if cfg.StatusSweep.Enabled {
		sweeper := scheduler.NewStatusSweeper(store, broadcaster, scheduler.Config{
			Spec:    cfg.StatusSweep.Schedule,
			Timeout: cfg.StatusSweep.Timeout,
		}, logger)
		g.Go(func() error {
			return sweeper.Run(gctx)
		})
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, m, logger)
	g.Go(func() error {
		return limiter.RunCleanup(gctx)
	})

	validator := auth.NewJWTValidator(cfg.Auth.JWTSecret)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/health", handlers.HealthHandler())
	r.Get("/ready", handlers.ReadyHandler(wsHub, readiness))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Use(auth.AuthMiddleware(validator, m))

		r.Get("/ws", handlers.NewWebSocketHandler(wsHub, handlers.MessageLimit{
			Rate:  cfg.RateLimit.MessagesPerSec,
			Burst: cfg.RateLimit.MessageBurst,
		}, logger).ServeHTTP)
		r.Get("/contests/{contestId}/leaderboard", handlers.NewLeaderboardHandler(broadcaster, logger).ServeHTTP)
		if presenceReader != nil {
			r.Get("/users/{userId}/presence", handlers.NewPresenceHandler(presenceReader, logger).ServeHTTP)
		}
	})

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           middleware.Chain(r, chimw.RequestID, middleware.RequestLogger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Str("app", cfg.App.Name).Msg("Server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
