package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/vesto/invest-engine/internal/catalog"
	kafkaevents "github.com/vesto/invest-engine/internal/events/kafka"
	"github.com/vesto/invest-engine/internal/invest"
	"github.com/vesto/invest-engine/internal/metrics"
	"github.com/vesto/invest-engine/internal/queue"
	"github.com/vesto/invest-engine/internal/store"
)

func main() {
	// Optional .env bootstrap; real deployments set the environment.
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := envOr("PORT", "8080")
	startingBalance := envDecimal("STARTING_BALANCE", decimal.NewFromInt(500))
	scanInterval := envDuration("SCAN_INTERVAL", invest.DefaultScanInterval)
	workers := envInt("WORKERS", 1)

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool, startingBalance)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("schema bootstrap failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore(startingBalance)
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Catalog and queue ---
	cat := catalog.Default()
	q := queue.New()

	// --- Notification fan-out ---
	hub := invest.NewHub()
	go hub.Run()

	notifier := invest.Notifier(hub)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		pub := kafkaevents.NewPublisher(strings.Split(brokers, ","), envOr("KAFKA_TOPIC", "investment_events"))
		cleanup = append(cleanup, func() { pub.Close() })
		notifier = invest.Fanout(hub, pub)
		slog.Info("Kafka event stream enabled", "brokers", brokers)
	}

	// --- Background loops ---
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	processor := invest.NewProcessor(st, cat, q, notifier)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor.Run(ctx)
		}()
	}

	scanner := invest.NewScanner(st, notifier, scanInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner.Run(ctx)
	}()

	// --- HTTP router ---
	svc := invest.NewService(st, cat, q)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
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
		w.Write([]byte(`{"status":"ok","service":"invest-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for per-account push notifications.
		r.Get("/ws", hub.HandleWS)

		r.Get("/options", svc.ListOptions)
		r.Get("/accounts/{accountID}", svc.GetAccount)
		r.Post("/invest", svc.Invest)
		r.Get("/queue-status", svc.QueueStatus)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("invest-engine listening", "port", port, "workers", workers, "scan_interval", scanInterval)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down invest-engine...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}

	// Stop accepting submissions, then stop the loops.
	q.Close()
	cancel()
	wg.Wait()

	fmt.Println("invest-engine stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		slog.Warn("invalid integer env value, using default", "key", key, "value", v)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration env value, using default", "key", key, "value", v)
		return fallback
	}
	return d
}

func envDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		slog.Warn("invalid decimal env value, using default", "key", key, "value", v)
		return fallback
	}
	return d
}
