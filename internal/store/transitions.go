package store

import "urbanpark/internal/models"

// The reservation and spot lifecycles are tiny and terminal: a reservation is
// booked active and released exactly once, a spot flips between available and
// occupied in lockstep. Anything else is rejected, never retried silently.

var reservationTransitions = map[string][]models.ReservationStatus{
	"release": {models.ReservationActive},
}

var spotTransitions = map[string][]models.SpotStatus{
	"claim":   {models.SpotAvailable},
	"release": {models.SpotOccupied},
	"delete":  {models.SpotAvailable},
}

var jobTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobPending:    {models.JobProcessing},
	models.JobProcessing: {models.JobCompleted, models.JobFailed},
}

func ValidReservationAction(action string, from models.ReservationStatus) bool {
	allowed, ok := reservationTransitions[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}

func ValidSpotAction(action string, from models.SpotStatus) bool {
	allowed, ok := spotTransitions[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}

func ValidJobTransition(from, to models.JobStatus) bool {
	for _, status := range jobTransitions[from] {
		if status == to {
			return true
		}
	}
	return false
}
