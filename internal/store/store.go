package store

import (
	"context"
	"encoding/json"
	"time"

	"urbanpark/internal/models"
)

type BookInput struct {
	UserID        string
	LotID         string
	VehicleNumber string
	StartTs       time.Time
}

type BookSpotInput struct {
	UserID        string
	SpotID        string
	VehicleNumber string
	StartTs       time.Time
}

type ReleaseInput struct {
	ReservationID string
	UserID        string
	EndTs         time.Time
}

type CreateLotInput struct {
	Name       string
	HourlyRate float64
	Address    string
	PinCode    string
	SpotCount  int
}

// UpdateLotInput carries optional field updates; nil pointers leave the
// current value untouched. A non-nil SpotCount resizes the lot.
type UpdateLotInput struct {
	LotID      string
	Name       *string
	HourlyRate *float64
	Address    *string
	PinCode    *string
	SpotCount  *int
}

type EnqueueJobInput struct {
	JobID     string
	UserID    string
	Kind      models.JobKind
	Broadcast bool
	CreatedAt time.Time
}

type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Phone    string
	Address  string
	PinCode  string
}

type LoginInput struct {
	Email    string
	Password string
}

type LoginResult struct {
	User    models.User
	Session models.Session
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// AllocationStore is the spot allocator: every mutating call runs in a single
// transaction so a claim and its reservation commit or roll back together.
type AllocationStore interface {
	Book(ctx context.Context, input BookInput) (models.Reservation, error)
	BookSpot(ctx context.Context, input BookSpotInput) (models.Reservation, error)
	Release(ctx context.Context, input ReleaseInput) (models.ReleaseResult, error)
	ListUserReservations(ctx context.Context, userID string) ([]models.Reservation, error)
	GetDashboardStats(ctx context.Context, userID string) (models.DashboardStats, error)
}

// LotStore is the admin capacity manager plus the derived listing reads the
// cache layer sits in front of.
type LotStore interface {
	CreateLot(ctx context.Context, input CreateLotInput) (models.ParkingLot, error)
	UpdateLot(ctx context.Context, input UpdateLotInput) (models.ParkingLot, error)
	DeleteLot(ctx context.Context, lotID string) error
	DeleteSpot(ctx context.Context, spotID string) error
	ListLots(ctx context.Context) ([]models.LotListing, error)
	SearchLots(ctx context.Context, query string) ([]models.ParkingLot, error)
	GetSpotDetail(ctx context.Context, spotID string) (models.SpotDetail, error)
	GetAdminStats(ctx context.Context) (models.AdminStats, error)
	GetLotCharts(ctx context.Context) ([]models.LotChartRow, error)
}

type JobStore interface {
	// EnqueueJob returns the job row and whether it was newly queued. An id
	// still pending or processing yields ErrDuplicateJob.
	EnqueueJob(ctx context.Context, input EnqueueJobInput) (models.ExportJob, bool, error)
	GetJob(ctx context.Context, jobID, userID string) (models.ExportJob, error)
	ListUserJobs(ctx context.Context, userID string, limit int) ([]models.ExportJob, error)
}

type UserStore interface {
	Register(ctx context.Context, input RegisterInput) (models.User, error)
	Login(ctx context.Context, input LoginInput) (LoginResult, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Store is the full surface the HTTP layer depends on.
type Store interface {
	AllocationStore
	LotStore
	JobStore
	UserStore
}

// WorkerStore is the surface the background worker depends on. Job claiming
// uses the same skip-locked discipline as spot claiming, so two workers never
// pick up the same job.
type WorkerStore interface {
	ClaimJob(ctx context.Context) (models.ExportJob, bool, error)
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID, detail string) error

	GetUser(ctx context.Context, userID string) (models.User, error)
	ListUserReservations(ctx context.Context, userID string) ([]models.Reservation, error)
	ListUserReservationsBetween(ctx context.Context, userID string, from, to time.Time) ([]models.Reservation, error)
	ListInactiveUsers(ctx context.Context, cutoff time.Time) ([]models.User, error)
	ListRegularUsers(ctx context.Context) ([]models.User, error)
	ListAvailableLots(ctx context.Context, limit int) ([]models.LotListing, error)

	ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]OutboxEvent, error)
	GetLastOffset(ctx context.Context) (time.Time, error)
	UpdateOffset(ctx context.Context, value time.Time) error
}
