package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"urbanpark/internal/billing"
	"urbanpark/internal/cache"
	"urbanpark/internal/config"
	"urbanpark/internal/httpapi"
	"urbanpark/internal/store/postgres"
	"urbanpark/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()

	shutdownTelemetry := telemetry.Setup("parking-service")

	clock, err := billing.NewClock(cfg.CanonicalTZ)
	if err != nil {
		log.Fatalf("timezone %q: %v", cfg.CanonicalTZ, err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	store := postgres.NewStore(pool, postgres.Options{
		Calculator: billing.Calculator{
			MinChargeWindow: cfg.MinChargeWindow,
			MinCharge:       cfg.MinChargeAmount,
		},
		SessionTTL: cfg.SessionTTL,
	})
	handler := httpapi.NewHandler(store, cache.New(redisClient), httpapi.Options{
		Clock:           clock,
		ListingTTL:      cfg.ListingCacheTTL,
		AdminListingTTL: cfg.AdminListingCacheTTL,
		DashboardTTL:    cfg.DashboardCacheTTL,
		JobHistoryLimit: cfg.ReportHistoryLimit,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/", httpapi.AuthMiddleware(store, handler.Routes()))

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "parking-service")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("parking-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := shutdownTelemetry(ctx); err != nil {
		log.Printf("telemetry shutdown error: %v", err)
	}
}
