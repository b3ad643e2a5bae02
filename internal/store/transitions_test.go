package store

import (
	"testing"

	"urbanpark/internal/models"
)

func TestValidReservationAction(t *testing.T) {
	cases := []struct {
		action string
		from   models.ReservationStatus
		valid  bool
	}{
		{"release", models.ReservationActive, true},
		{"release", models.ReservationCompleted, false},
		{"unknown", models.ReservationActive, false},
	}

	for _, tt := range cases {
		if got := ValidReservationAction(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidReservationAction(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestValidSpotAction(t *testing.T) {
	cases := []struct {
		action string
		from   models.SpotStatus
		valid  bool
	}{
		{"claim", models.SpotAvailable, true},
		{"claim", models.SpotOccupied, false},
		{"release", models.SpotOccupied, true},
		{"release", models.SpotAvailable, false},
		{"delete", models.SpotAvailable, true},
		{"delete", models.SpotOccupied, false},
		{"unknown", models.SpotAvailable, false},
	}

	for _, tt := range cases {
		if got := ValidSpotAction(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidSpotAction(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestValidJobTransition(t *testing.T) {
	cases := []struct {
		from  models.JobStatus
		to    models.JobStatus
		valid bool
	}{
		{models.JobPending, models.JobProcessing, true},
		{models.JobPending, models.JobCompleted, false},
		{models.JobProcessing, models.JobCompleted, true},
		{models.JobProcessing, models.JobFailed, true},
		{models.JobCompleted, models.JobProcessing, false},
		{models.JobFailed, models.JobProcessing, false},
	}

	for _, tt := range cases {
		if got := ValidJobTransition(tt.from, tt.to); got != tt.valid {
			t.Fatalf("ValidJobTransition(%q, %q)=%v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}
