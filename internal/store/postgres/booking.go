package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"urbanpark/internal/billing"
	"urbanpark/internal/models"
	"urbanpark/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Names of the partial unique indexes on active reservations. Postgres
// reports the index name on violation, which maps each race loser to the
// right conflict error.
const (
	activeUserConstraint = "reservations_active_user_idx"
	activeSpotConstraint = "reservations_active_spot_idx"
)

func (s *Store) Book(ctx context.Context, input store.BookInput) (models.Reservation, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Reservation{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var lotName string
	row := tx.QueryRow(ctx, `
		SELECT name FROM parking_lots WHERE lot_id = $1
	`, input.LotID)
	if err = row.Scan(&lotName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Reservation{}, store.ErrLotNotFound
		}
		return models.Reservation{}, err
	}

	// Claim the lowest-numbered free spot. SKIP LOCKED keeps concurrent
	// bookers from queueing on the same row; each claims a distinct spot or
	// falls through to no-availability.
	var spotID string
	var spotNumber int
	row = tx.QueryRow(ctx, `
		UPDATE parking_spots
		SET status = 'occupied'
		WHERE spot_id = (
			SELECT spot_id
			FROM parking_spots
			WHERE lot_id = $1 AND status = 'available'
			ORDER BY spot_number ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING spot_id, spot_number
	`, input.LotID)
	if err = row.Scan(&spotID, &spotNumber); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Reservation{}, store.ErrNoAvailableSpot
		}
		return models.Reservation{}, err
	}

	reservation, err := s.insertReservation(ctx, tx, input.UserID, spotID, input.VehicleNumber, input.StartTs)
	if err != nil {
		return models.Reservation{}, err
	}
	reservation.LotID = input.LotID
	reservation.LotName = lotName
	reservation.SpotNumber = spotNumber

	if err = insertOutboxEvent(ctx, tx, "reservation.created", map[string]interface{}{
		"reservation_id": reservation.ReservationID,
		"user_id":        reservation.UserID,
		"spot_id":        reservation.SpotID,
		"lot_id":         input.LotID,
		"vehicle_number": reservation.VehicleNumber,
		"start_ts":       reservation.StartTs,
	}); err != nil {
		return models.Reservation{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Reservation{}, err
	}
	return reservation, nil
}

func (s *Store) BookSpot(ctx context.Context, input store.BookSpotInput) (models.Reservation, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Reservation{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var lotID, lotName string
	var spotNumber int
	var status models.SpotStatus
	row := tx.QueryRow(ctx, `
		SELECT p.lot_id, l.name, p.spot_number, p.status
		FROM parking_spots p
		JOIN parking_lots l ON l.lot_id = p.lot_id
		WHERE p.spot_id = $1
		FOR UPDATE OF p
	`, input.SpotID)
	if err = row.Scan(&lotID, &lotName, &spotNumber, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Reservation{}, store.ErrSpotNotFound
		}
		return models.Reservation{}, err
	}
	if !store.ValidSpotAction("claim", status) {
		err = store.ErrSpotNotAvailable
		return models.Reservation{}, err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE parking_spots SET status = 'occupied' WHERE spot_id = $1
	`, input.SpotID); err != nil {
		return models.Reservation{}, err
	}

	reservation, err := s.insertReservation(ctx, tx, input.UserID, input.SpotID, input.VehicleNumber, input.StartTs)
	if err != nil {
		return models.Reservation{}, err
	}
	reservation.LotID = lotID
	reservation.LotName = lotName
	reservation.SpotNumber = spotNumber

	if err = insertOutboxEvent(ctx, tx, "reservation.created", map[string]interface{}{
		"reservation_id": reservation.ReservationID,
		"user_id":        reservation.UserID,
		"spot_id":        reservation.SpotID,
		"lot_id":         lotID,
		"vehicle_number": reservation.VehicleNumber,
		"start_ts":       reservation.StartTs,
	}); err != nil {
		return models.Reservation{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Reservation{}, err
	}
	return reservation, nil
}

func (s *Store) insertReservation(ctx context.Context, tx pgx.Tx, userID, spotID, vehicleNumber string, startTs time.Time) (models.Reservation, error) {
	if startTs.IsZero() {
		startTs = time.Now().UTC()
	}
	reservationID := uuid.NewString()

	var reservation models.Reservation
	row := tx.QueryRow(ctx, `
		INSERT INTO reservations (reservation_id, spot_id, user_id, vehicle_number, start_ts, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		RETURNING reservation_id, spot_id, user_id, vehicle_number, start_ts, status
	`, reservationID, spotID, userID, vehicleNumber, startTs)
	if err := row.Scan(&reservation.ReservationID, &reservation.SpotID, &reservation.UserID, &reservation.VehicleNumber, &reservation.StartTs, &reservation.Status); err != nil {
		if violatesConstraint(err, activeUserConstraint) {
			return models.Reservation{}, store.ErrAlreadyActiveBooking
		}
		if violatesConstraint(err, activeSpotConstraint) {
			return models.Reservation{}, store.ErrSpotNotAvailable
		}
		return models.Reservation{}, err
	}
	return reservation, nil
}

func (s *Store) Release(ctx context.Context, input store.ReleaseInput) (models.ReleaseResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ReleaseResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var spotID string
	var startTs time.Time
	var status models.ReservationStatus
	var hourlyRate float64
	row := tx.QueryRow(ctx, `
		SELECT r.spot_id, r.start_ts, r.status, l.hourly_rate
		FROM reservations r
		JOIN parking_spots p ON p.spot_id = r.spot_id
		JOIN parking_lots l ON l.lot_id = p.lot_id
		WHERE r.reservation_id = $1 AND r.user_id = $2
		FOR UPDATE OF r
	`, input.ReservationID, input.UserID)
	if err = row.Scan(&spotID, &startTs, &status, &hourlyRate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ReleaseResult{}, store.ErrReservationNotFound
		}
		return models.ReleaseResult{}, err
	}
	if !store.ValidReservationAction("release", status) {
		err = store.ErrReservationNotActive
		return models.ReleaseResult{}, err
	}

	endTs := input.EndTs
	if endTs.IsZero() {
		endTs = time.Now().UTC()
	}
	cost := s.calculator.Cost(startTs, endTs, hourlyRate)

	if _, err = tx.Exec(ctx, `
		UPDATE reservations
		SET status = 'completed', end_ts = $1, cost = $2
		WHERE reservation_id = $3
	`, endTs, cost, input.ReservationID); err != nil {
		return models.ReleaseResult{}, err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE parking_spots SET status = 'available' WHERE spot_id = $1
	`, spotID); err != nil {
		return models.ReleaseResult{}, err
	}

	duration := endTs.Sub(startTs)
	if duration < 0 {
		duration = 0
	}
	result := models.ReleaseResult{
		ReservationID:   input.ReservationID,
		DurationSeconds: int64(duration.Seconds()),
		Cost:            cost,
		StartTs:         startTs,
		EndTs:           endTs,
	}

	if err = insertOutboxEvent(ctx, tx, "reservation.released", map[string]interface{}{
		"reservation_id": input.ReservationID,
		"user_id":        input.UserID,
		"spot_id":        spotID,
		"cost":           cost,
		"start_ts":       startTs,
		"end_ts":         endTs,
	}); err != nil {
		return models.ReleaseResult{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.ReleaseResult{}, err
	}
	return result, nil
}

func (s *Store) ListUserReservations(ctx context.Context, userID string) ([]models.Reservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.reservation_id, r.spot_id, r.user_id, r.vehicle_number, r.start_ts, r.end_ts, r.cost, r.status,
			l.lot_id, l.name, l.hourly_rate, p.spot_number
		FROM reservations r
		JOIN parking_spots p ON p.spot_id = r.spot_id
		JOIN parking_lots l ON l.lot_id = p.lot_id
		WHERE r.user_id = $1
		ORDER BY r.start_ts DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows, s.calculator)
}

func (s *Store) ListUserReservationsBetween(ctx context.Context, userID string, from, to time.Time) ([]models.Reservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.reservation_id, r.spot_id, r.user_id, r.vehicle_number, r.start_ts, r.end_ts, r.cost, r.status,
			l.lot_id, l.name, l.hourly_rate, p.spot_number
		FROM reservations r
		JOIN parking_spots p ON p.spot_id = r.spot_id
		JOIN parking_lots l ON l.lot_id = p.lot_id
		WHERE r.user_id = $1 AND r.start_ts >= $2 AND r.start_ts < $3
		ORDER BY r.start_ts ASC
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows, s.calculator)
}

// scanReservations fills the derived running-cost fields for active rows so
// listings show what the stay would cost if released now.
func scanReservations(rows pgx.Rows, calc billing.Calculator) ([]models.Reservation, error) {
	now := time.Now().UTC()
	var reservations []models.Reservation
	for rows.Next() {
		var reservation models.Reservation
		var endTsNull sql.NullTime
		var costNull sql.NullFloat64
		var hourlyRate float64
		if err := rows.Scan(&reservation.ReservationID, &reservation.SpotID, &reservation.UserID, &reservation.VehicleNumber, &reservation.StartTs, &endTsNull, &costNull, &reservation.Status, &reservation.LotID, &reservation.LotName, &hourlyRate, &reservation.SpotNumber); err != nil {
			return nil, err
		}
		reservation.EndTs = nullTimePtr(endTsNull)
		reservation.Cost = nullFloatPtr(costNull)
		if reservation.Status == models.ReservationActive {
			reservation.HoursParked = calc.Hours(reservation.StartTs, now)
			estimated := calc.Cost(reservation.StartTs, now, hourlyRate)
			reservation.EstimatedCost = &estimated
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reservations, nil
}

func (s *Store) GetDashboardStats(ctx context.Context, userID string) (models.DashboardStats, error) {
	var stats models.DashboardStats
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COALESCE(SUM(cost) FILTER (WHERE status = 'completed'), 0)
		FROM reservations
		WHERE user_id = $1
	`, userID)
	if err := row.Scan(&stats.TotalBookings, &stats.ActiveBookings, &stats.CompletedBookings, &stats.TotalSpent); err != nil {
		return models.DashboardStats{}, err
	}
	return stats, nil
}
