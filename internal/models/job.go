package models

import "time"

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

type JobKind string

const (
	JobCSVExport     JobKind = "csv_export"
	JobDailyReminder JobKind = "daily_reminder"
	JobMonthlyReport JobKind = "monthly_report"
)

// ExportJob is a background work item. JobID is caller-supplied and
// idempotent: enqueuing an id that is still pending or processing is rejected
// rather than queued twice.
type ExportJob struct {
	JobID       string     `json:"job_id"`
	UserID      string     `json:"user_id"`
	Kind        JobKind    `json:"kind"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ErrorDetail string     `json:"error,omitempty"`
	Broadcast   bool       `json:"broadcast,omitempty"`
}
