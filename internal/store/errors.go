package store

import "errors"

var (
	ErrLotNotFound         = errors.New("parking lot not found")
	ErrSpotNotFound        = errors.New("parking spot not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrJobNotFound         = errors.New("job not found")
	ErrSessionNotFound     = errors.New("session not found")

	ErrAlreadyActiveBooking       = errors.New("user already has an active booking")
	ErrReservationNotActive       = errors.New("reservation is not active")
	ErrNoAvailableSpot            = errors.New("no available spot in lot")
	ErrSpotNotAvailable           = errors.New("parking spot is not available")
	ErrSpotOccupied               = errors.New("parking spot is occupied")
	ErrLotHasOccupiedSpots        = errors.New("parking lot has occupied spots")
	ErrInsufficientAvailableSpots = errors.New("not enough available spots to remove")
	ErrDuplicateName              = errors.New("parking lot name already exists")
	ErrDuplicateEmail             = errors.New("email already registered")
	ErrDuplicateJob               = errors.New("job id already queued")
	ErrInvalidCredentials         = errors.New("invalid credentials")
)
