package models

import "time"

type SpotStatus string

const (
	SpotAvailable SpotStatus = "available"
	SpotOccupied  SpotStatus = "occupied"
)

type ParkingLot struct {
	LotID      string    `json:"lot_id"`
	Name       string    `json:"name"`
	HourlyRate float64   `json:"hourly_rate"`
	Address    string    `json:"address"`
	PinCode    string    `json:"pin_code"`
	SpotCount  int       `json:"spot_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type ParkingSpot struct {
	SpotID     string     `json:"spot_id"`
	LotID      string     `json:"lot_id"`
	SpotNumber int        `json:"spot_number"`
	Status     SpotStatus `json:"status"`
}

// LotListing is the derived read view served from cache: the lot plus its
// spots and availability counts.
type LotListing struct {
	ParkingLot
	AvailableSpots int           `json:"available_spots"`
	OccupiedSpots  int           `json:"occupied_spots"`
	Spots          []ParkingSpot `json:"spots"`
}

// SpotDetail is the admin drill-down for a single spot. Reservation is nil
// unless the spot is occupied.
type SpotDetail struct {
	ParkingSpot
	LotName     string                 `json:"lot_name"`
	Reservation *SpotDetailReservation `json:"reservation,omitempty"`
}

type SpotDetailReservation struct {
	ReservationID string    `json:"reservation_id"`
	UserID        string    `json:"user_id"`
	UserName      string    `json:"user_name"`
	UserEmail     string    `json:"user_email"`
	VehicleNumber string    `json:"vehicle_number"`
	StartTs       time.Time `json:"start_ts"`
	HoursParked   float64   `json:"hours_parked"`
	EstimatedCost float64   `json:"estimated_cost"`
}
