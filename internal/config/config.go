package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisAddr   string

	CanonicalTZ          string
	MinChargeWindow      time.Duration
	MinChargeAmount      float64
	SessionTTL           time.Duration
	ListingCacheTTL      time.Duration
	AdminListingCacheTTL time.Duration
	DashboardCacheTTL    time.Duration
	RateLimitPerMinute   int
	RateLimitBurst       int
	JobPollInterval      time.Duration
	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	ReminderInactiveDays int
	ReportHistoryLimit   int

	WorkerID       string
	MailProvider   string
	MailWebhookURL string
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	tz := os.Getenv("CANONICAL_TZ")
	if tz == "" {
		tz = "Asia/Kolkata"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		CanonicalTZ:          tz,
		MinChargeWindow:      readDurationSeconds("MIN_CHARGE_WINDOW_SECONDS", 360),
		MinChargeAmount:      readFloat("MIN_CHARGE_AMOUNT", 1.0),
		SessionTTL:           readDurationSeconds("SESSION_TTL_SECONDS", 86400),
		ListingCacheTTL:      readDurationSeconds("LISTING_CACHE_TTL_SECONDS", 120),
		AdminListingCacheTTL: readDurationSeconds("ADMIN_LISTING_CACHE_TTL_SECONDS", 300),
		DashboardCacheTTL:    readDurationSeconds("DASHBOARD_CACHE_TTL_SECONDS", 120),
		RateLimitPerMinute:   readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:       readInt("RATE_LIMIT_BURST", 30),
		JobPollInterval:      readDurationSeconds("JOB_POLL_INTERVAL_SECONDS", 5),
		OutboxPollInterval:   readDurationSeconds("OUTBOX_POLL_INTERVAL_SECONDS", 10),
		OutboxBatchSize:      readInt("OUTBOX_BATCH_SIZE", 100),
		ReminderInactiveDays: readInt("REMINDER_INACTIVE_DAYS", 1),
		ReportHistoryLimit:   readInt("REPORT_HISTORY_LIMIT", 20),
		WorkerID:             readString("WORKER_ID", "worker-default"),
		MailProvider:         readString("MAIL_PROVIDER", "log"),
		MailWebhookURL:       os.Getenv("MAIL_WEBHOOK_URL"),
	}
}

func readString(key, fallback string) string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	return raw
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}
