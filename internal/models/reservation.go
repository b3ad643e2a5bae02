package models

import "time"

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
)

type Reservation struct {
	ReservationID string            `json:"reservation_id"`
	SpotID        string            `json:"spot_id"`
	UserID        string            `json:"user_id"`
	VehicleNumber string            `json:"vehicle_number"`
	StartTs       time.Time         `json:"start_ts"`
	EndTs         *time.Time        `json:"end_ts,omitempty"`
	Cost          *float64          `json:"cost,omitempty"`
	Status        ReservationStatus `json:"status"`

	// Joined listing fields, empty on the write path.
	LotID      string `json:"lot_id,omitempty"`
	LotName    string `json:"lot_name,omitempty"`
	SpotNumber int    `json:"spot_number,omitempty"`

	// Derived on the listing read path for active rows: elapsed time and
	// the charge accrued so far if the spot were released now.
	HoursParked   float64  `json:"hours_parked,omitempty"`
	EstimatedCost *float64 `json:"estimated_cost,omitempty"`
}

type ReleaseResult struct {
	ReservationID   string    `json:"reservation_id"`
	DurationSeconds int64     `json:"duration_seconds"`
	Cost            float64   `json:"cost"`
	StartTs         time.Time `json:"start_ts"`
	EndTs           time.Time `json:"end_ts"`
}

type DashboardStats struct {
	TotalBookings     int     `json:"total_bookings"`
	ActiveBookings    int     `json:"active_bookings"`
	CompletedBookings int     `json:"completed_bookings"`
	TotalSpent        float64 `json:"total_spent"`
}

type AdminStats struct {
	TotalLots      int `json:"total_lots"`
	TotalSpots     int `json:"total_spots"`
	AvailableSpots int `json:"available_spots"`
	OccupiedSpots  int `json:"occupied_spots"`
	TotalUsers     int `json:"total_users"`
}

// LotChartRow feeds the admin occupancy/revenue charts, one row per lot.
type LotChartRow struct {
	LotID     string  `json:"lot_id"`
	LotName   string  `json:"lot_name"`
	Available int     `json:"available"`
	Occupied  int     `json:"occupied"`
	Revenue   float64 `json:"revenue"`
}
