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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ericc59/polybot-sub002/internal/account"
	"github.com/ericc59/polybot-sub002/internal/api"
	"github.com/ericc59/polybot-sub002/internal/config"
	"github.com/ericc59/polybot-sub002/internal/copytrade"
	"github.com/ericc59/polybot-sub002/internal/execution"
	"github.com/ericc59/polybot-sub002/internal/kafka"
	"github.com/ericc59/polybot-sub002/internal/ledger"
	"github.com/ericc59/polybot-sub002/internal/lock"
	"github.com/ericc59/polybot-sub002/internal/metrics"
	"github.com/ericc59/polybot-sub002/internal/model"
	"github.com/ericc59/polybot-sub002/internal/store"
	"github.com/ericc59/polybot-sub002/internal/subscription"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	loc, _ := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var rdb *redis.Client
	var cleanup []func()

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				slog.Error("schema migration failed", "err", err)
				os.Exit(1)
			}
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Per-user lock ---
	var locker lock.Locker = lock.NewKeyedMutex()
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL)
		slog.Info("distributed per-user lock enabled", "ttl", cfg.LockTTL)
	}

	// --- Execution collaborator ---
	var exec execution.Executor
	if cfg.ExecutorURL != "" {
		exec = execution.NewHTTPExecutor(execution.HTTPConfig{
			Endpoint: cfg.ExecutorURL,
			Timeout:  cfg.ExecutorTimeout,
		})
		slog.Info("execution service configured", "url", cfg.ExecutorURL)
	} else {
		slog.Warn("EXECUTOR_URL not set, orders will be paper-filled")
		exec = execution.NewPaperExecutor()
	}

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()

	// --- Services ---
	registry := subscription.NewRegistry(st)
	accounts := account.NewService(st)
	tradeLedger := ledger.New(st,
		ledger.WithLocation(loc),
		ledger.WithDefaultLimit(cfg.HistoryDefaultLimit),
	)

	coordOpts := []copytrade.Option{
		copytrade.WithLocker(locker),
		copytrade.WithBroadcaster(wsHub),
		copytrade.WithConcurrency(cfg.FanoutConcurrency),
	}

	var consumer *kafka.EventConsumer
	if cfg.KafkaEnabled() {
		publisher := kafka.NewRecommendationPublisher(cfg)
		cleanup = append(cleanup, func() { publisher.Close() })
		coordOpts = append(coordOpts, copytrade.WithNotifier(publisher))

		consumer = kafka.NewEventConsumer(cfg)
		cleanup = append(cleanup, func() { consumer.Close() })
		slog.Info("kafka enabled",
			"brokers", cfg.KafkaBrokers,
			"trades_topic", cfg.KafkaTopicTrades,
			"recommendations_topic", cfg.KafkaTopicRecommendations,
		)
	} else {
		slog.Warn("KAFKA_BROKERS not set, events accepted over HTTP only")
	}

	coord := copytrade.NewCoordinator(registry, accounts, tradeLedger, exec, coordOpts...)
	handler := api.NewHandler(registry, accounts, tradeLedger, coord)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for dashboard cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"copytrade-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	// The WebSocket route stays outside the request timeout.
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ws", wsHub.HandleWS)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			handler.Mount(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("copytrade-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if consumer != nil {
		g.Go(func() error {
			err := consumer.Consume(gctx, func(ctx context.Context, ev model.TradeEvent) error {
				metrics.EventsTotal.WithLabelValues("kafka").Inc()
				_, err := coord.Process(ctx, ev)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	// Graceful shutdown.
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down copytrade-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("copytrade-engine stopped with error", "err", err)
	}
	fmt.Println("copytrade-engine stopped")
}
