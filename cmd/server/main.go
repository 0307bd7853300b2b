package main

import (
	"context"
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

	"github.com/echopolis/market-engine/internal/api"
	"github.com/echopolis/market-engine/internal/config"
	"github.com/echopolis/market-engine/internal/ledger"
	"github.com/echopolis/market-engine/internal/logging"
	"github.com/echopolis/market-engine/internal/metrics"
	"github.com/echopolis/market-engine/internal/scheduler"
	"github.com/echopolis/market-engine/internal/sim"
	"github.com/echopolis/market-engine/internal/store"
)

func main() {
	cfgPath := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg)
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Initialize store ---
	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("store initialization failed", "driver", cfg.Storage.Driver, "err", err)
		os.Exit(1)
	}
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Session defaults ---
	start, _ := cfg.StartDate()
	defaults := sim.Config{
		Seed:         cfg.Simulation.Seed,
		StartDate:    start,
		WarmupDays:   cfg.Simulation.WarmupDays,
		Window:       cfg.Simulation.HistoryWindow,
		Limiter:      ledger.NewExposureLimiter(cfg.Simulation.MaxPerPosition, cfg.Simulation.MaxPerClass),
		UseSentiment: cfg.Simulation.UseSentiment,
	}

	registry := sim.NewRegistry()
	restoreSessions(ctx, st, registry, defaults)
	metrics.ActiveSessions.Set(float64(registry.Len()))

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	// --- Session service ---
	svc := api.NewService(registry, st, wsHub, defaults)

	// --- Scheduled advancement ---
	if spec := cfg.Schedule.AdvanceCron; spec != "" {
		auto := scheduler.New(ctx, svc)
		if err := auto.Register(spec); err != nil {
			slog.Error("scheduler registration failed", "err", err)
			os.Exit(1)
		}
		auto.Start()
		defer auto.Stop()
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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
		w.Write([]byte(`{"status":"ok","service":"market-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time session updates. Registered
		// outside the timeout group so long-lived connections survive.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			svc.Mount(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market-engine listening", "port", cfg.Server.Port, "store", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	slog.Info("shutting down market-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	cancel()
	fmt.Println("market-engine stopped")
}

// openStore builds the configured store. The returned cleanup functions
// release its connections.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, []func(), error) {
	var st store.Store
	var cleanup []func()

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

	case config.DriverSQLite:
		lite, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		cleanup = append(cleanup, func() { lite.Close() })
		st = lite
		slog.Info("using SQLite store", "path", cfg.Storage.SQLitePath)

	default:
		slog.Warn("using in-memory store (data will not persist)")
		return store.NewMemoryStore(), nil, nil
	}

	// Wrap with Redis read-through cache if configured.
	if cfg.Storage.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			for _, fn := range cleanup {
				fn()
			}
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.Storage.CacheTTL)
		slog.Info("Redis cache enabled", "ttl", cfg.Storage.CacheTTL)
	}
	return st, cleanup, nil
}

// restoreSessions loads every persisted session into the registry. Sessions
// that fail to restore are skipped.
func restoreSessions(ctx context.Context, st store.Store, registry *sim.Registry, defaults sim.Config) {
	summaries, err := st.ListSessions(ctx)
	if err != nil {
		slog.Error("failed to list persisted sessions", "err", err)
		return
	}
	for _, sum := range summaries {
		snap, err := st.LoadSnapshot(ctx, sum.ID)
		if err != nil {
			slog.Warn("failed to load session", "id", sum.ID, "err", err)
			continue
		}
		if _, err := registry.Restore(*snap, defaults); err != nil {
			slog.Warn("failed to restore session", "id", sum.ID, "err", err)
			continue
		}
	}
	if len(summaries) > 0 {
		slog.Info("restored sessions", "count", registry.Len(), "persisted", len(summaries))
	}
}
