package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"urbanpark/internal/models"
	"urbanpark/internal/store"

	"github.com/jackc/pgx/v5"
)

func (s *Store) EnqueueJob(ctx context.Context, input store.EnqueueJobInput) (models.ExportJob, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ExportJob{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var job models.ExportJob
	row := tx.QueryRow(ctx, `
		INSERT INTO export_jobs (job_id, user_id, kind, status, broadcast, created_at)
		VALUES ($1, $2, $3, 'pending', $4, $5)
		ON CONFLICT (job_id) DO NOTHING
		RETURNING job_id, user_id, kind, status, broadcast, created_at
	`, input.JobID, input.UserID, input.Kind, input.Broadcast, createdAt)
	err = row.Scan(&job.JobID, &job.UserID, &job.Kind, &job.Status, &job.Broadcast, &job.CreatedAt)
	if err == nil {
		if err = tx.Commit(ctx); err != nil {
			return models.ExportJob{}, false, err
		}
		return job, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.ExportJob{}, false, err
	}

	// The id already exists. A live job is a duplicate; a terminal job is a
	// manual retrigger and goes back to pending.
	existing, err := getJobTx(ctx, tx, input.JobID)
	if err != nil {
		return models.ExportJob{}, false, err
	}
	if existing.Status == models.JobPending || existing.Status == models.JobProcessing {
		if err = tx.Commit(ctx); err != nil {
			return models.ExportJob{}, false, err
		}
		return existing, false, store.ErrDuplicateJob
	}

	row = tx.QueryRow(ctx, `
		UPDATE export_jobs
		SET status = 'pending', started_at = NULL, completed_at = NULL, error_detail = NULL, created_at = $2
		WHERE job_id = $1
		RETURNING job_id, user_id, kind, status, broadcast, created_at
	`, input.JobID, createdAt)
	if err = row.Scan(&job.JobID, &job.UserID, &job.Kind, &job.Status, &job.Broadcast, &job.CreatedAt); err != nil {
		return models.ExportJob{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.ExportJob{}, false, err
	}
	return job, true, nil
}

func getJobTx(ctx context.Context, tx pgx.Tx, jobID string) (models.ExportJob, error) {
	var job models.ExportJob
	var startedAtNull, completedAtNull sql.NullTime
	var errorDetailNull sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT job_id, user_id, kind, status, broadcast, created_at, started_at, completed_at, error_detail
		FROM export_jobs
		WHERE job_id = $1
		FOR UPDATE
	`, jobID)
	if err := row.Scan(&job.JobID, &job.UserID, &job.Kind, &job.Status, &job.Broadcast, &job.CreatedAt, &startedAtNull, &completedAtNull, &errorDetailNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ExportJob{}, store.ErrJobNotFound
		}
		return models.ExportJob{}, err
	}
	job.StartedAt = nullTimePtr(startedAtNull)
	job.CompletedAt = nullTimePtr(completedAtNull)
	if errorDetailNull.Valid {
		job.ErrorDetail = errorDetailNull.String
	}
	return job, nil
}

// GetJob scopes by owner: a caller can only poll their own jobs.
func (s *Store) GetJob(ctx context.Context, jobID, userID string) (models.ExportJob, error) {
	var job models.ExportJob
	var startedAtNull, completedAtNull sql.NullTime
	var errorDetailNull sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT job_id, user_id, kind, status, broadcast, created_at, started_at, completed_at, error_detail
		FROM export_jobs
		WHERE job_id = $1 AND user_id = $2
	`, jobID, userID)
	if err := row.Scan(&job.JobID, &job.UserID, &job.Kind, &job.Status, &job.Broadcast, &job.CreatedAt, &startedAtNull, &completedAtNull, &errorDetailNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ExportJob{}, store.ErrJobNotFound
		}
		return models.ExportJob{}, err
	}
	job.StartedAt = nullTimePtr(startedAtNull)
	job.CompletedAt = nullTimePtr(completedAtNull)
	if errorDetailNull.Valid {
		job.ErrorDetail = errorDetailNull.String
	}
	return job, nil
}

func (s *Store) ListUserJobs(ctx context.Context, userID string, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, user_id, kind, status, broadcast, created_at, started_at, completed_at, error_detail
		FROM export_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.ExportJob
	for rows.Next() {
		var job models.ExportJob
		var startedAtNull, completedAtNull sql.NullTime
		var errorDetailNull sql.NullString
		if err := rows.Scan(&job.JobID, &job.UserID, &job.Kind, &job.Status, &job.Broadcast, &job.CreatedAt, &startedAtNull, &completedAtNull, &errorDetailNull); err != nil {
			return nil, err
		}
		job.StartedAt = nullTimePtr(startedAtNull)
		job.CompletedAt = nullTimePtr(completedAtNull)
		if errorDetailNull.Valid {
			job.ErrorDetail = errorDetailNull.String
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimJob moves the oldest pending job to processing. SKIP LOCKED means
// concurrent workers each claim a distinct job; ok=false when the queue is
// empty.
func (s *Store) ClaimJob(ctx context.Context) (models.ExportJob, bool, error) {
	var job models.ExportJob
	row := s.pool.QueryRow(ctx, `
		UPDATE export_jobs
		SET status = 'processing', started_at = $1
		WHERE job_id = (
			SELECT job_id
			FROM export_jobs
			WHERE status = 'pending'
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING job_id, user_id, kind, status, broadcast, created_at, started_at
	`, time.Now().UTC())
	var startedAtNull sql.NullTime
	if err := row.Scan(&job.JobID, &job.UserID, &job.Kind, &job.Status, &job.Broadcast, &job.CreatedAt, &startedAtNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ExportJob{}, false, nil
		}
		return models.ExportJob{}, false, err
	}
	job.StartedAt = nullTimePtr(startedAtNull)
	return job, true, nil
}

func (s *Store) CompleteJob(ctx context.Context, jobID string) error {
	return s.finishJob(ctx, jobID, models.JobCompleted, "")
}

func (s *Store) FailJob(ctx context.Context, jobID, detail string) error {
	return s.finishJob(ctx, jobID, models.JobFailed, detail)
}

// finishJob moves a claimed job to a terminal state. A job that is missing
// or not in a finishable state looks the same to the caller: there is no job
// to finish.
func (s *Store) finishJob(ctx context.Context, jobID string, to models.JobStatus, detail string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var status models.JobStatus
	row := tx.QueryRow(ctx, `
		SELECT status FROM export_jobs WHERE job_id = $1 FOR UPDATE
	`, jobID)
	if err = row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrJobNotFound
		}
		return err
	}
	if !store.ValidJobTransition(status, to) {
		err = store.ErrJobNotFound
		return err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE export_jobs
		SET status = $1, completed_at = $2, error_detail = $3
		WHERE job_id = $4
	`, to, time.Now().UTC(), nullIfEmpty(detail), jobID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, type, payload_json, created_at
		FROM outbox_events
	`
	args := []interface{}{}
	if !after.IsZero() {
		query += " WHERE created_at > $1 ORDER BY created_at ASC LIMIT $2"
		args = append(args, after, limit)
	} else {
		query += " ORDER BY created_at ASC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetLastOffset(ctx context.Context) (time.Time, error) {
	var last time.Time
	row := s.pool.QueryRow(ctx, `
		SELECT last_seen FROM notification_offsets WHERE worker_id = $1
	`, s.workerID)
	if err := row.Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return last, nil
}

func (s *Store) UpdateOffset(ctx context.Context, value time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_offsets (worker_id, last_seen)
		VALUES ($1, $2)
		ON CONFLICT (worker_id) DO UPDATE SET last_seen = EXCLUDED.last_seen
	`, s.workerID, value)
	return err
}
