package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"urbanpark/internal/billing"
	"urbanpark/internal/config"
	"urbanpark/internal/store/postgres"
	"urbanpark/internal/telemetry"
	"urbanpark/internal/worker"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg := config.Load()

	shutdownTelemetry := telemetry.Setup("worker-service")

	clock, err := billing.NewClock(cfg.CanonicalTZ)
	if err != nil {
		log.Fatalf("timezone %q: %v", cfg.CanonicalTZ, err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool, postgres.Options{
		Calculator: billing.Calculator{
			MinChargeWindow: cfg.MinChargeWindow,
			MinCharge:       cfg.MinChargeAmount,
		},
		WorkerID: cfg.WorkerID,
	})

	w := worker.New(store, worker.Config{
		Clock:                clock,
		Mailer:               worker.NewMailer(cfg.MailProvider, cfg.MailWebhookURL),
		ReminderInactiveDays: cfg.ReminderInactiveDays,
		OutboxBatchSize:      cfg.OutboxBatchSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("worker-service polling jobs every %s", cfg.JobPollInterval)
		worker.Start(ctx, cfg.JobPollInterval, cfg.OutboxPollInterval, w)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown error: %v", err)
	}
}
