package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"urbanpark/internal/billing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Store struct {
	pool       *pgxpool.Pool
	calculator billing.Calculator
	sessionTTL time.Duration
	workerID   string
}

type Options struct {
	Calculator billing.Calculator
	SessionTTL time.Duration
	// WorkerID keys the notification offset row; each worker instance tails
	// the outbox independently.
	WorkerID string
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	calc := options.Calculator
	if calc.MinChargeWindow == 0 {
		calc = billing.NewCalculator()
	}
	ttl := options.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	workerID := options.WorkerID
	if workerID == "" {
		workerID = "worker-default"
	}
	return &Store{pool: pool, calculator: calc, sessionTTL: ttl, workerID: workerID}
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nullFloatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func jsonBytes(payload map[string]interface{}) ([]byte, error) {
	return json.Marshal(payload)
}

// violatesConstraint reports whether err is a unique violation on the named
// constraint. Constraint names are how booking conflicts are told apart from
// duplicate lot names.
func violatesConstraint(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, payload map[string]interface{}) error {
	payloadJSON, err := jsonBytes(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, payloadJSON, time.Now().UTC())
	return err
}
