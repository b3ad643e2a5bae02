package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"urbanpark/internal/models"
	"urbanpark/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const lotNameConstraint = "parking_lots_name_key"

func (s *Store) CreateLot(ctx context.Context, input store.CreateLotInput) (models.ParkingLot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ParkingLot{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	lotID := uuid.NewString()
	var lot models.ParkingLot
	row := tx.QueryRow(ctx, `
		INSERT INTO parking_lots (lot_id, name, hourly_rate, address, pin_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING lot_id, name, hourly_rate, address, pin_code, created_at
	`, lotID, input.Name, input.HourlyRate, input.Address, input.PinCode, time.Now().UTC())
	if err = row.Scan(&lot.LotID, &lot.Name, &lot.HourlyRate, &lot.Address, &lot.PinCode, &lot.CreatedAt); err != nil {
		if violatesConstraint(err, lotNameConstraint) {
			return models.ParkingLot{}, store.ErrDuplicateName
		}
		return models.ParkingLot{}, err
	}

	if err = addSpots(ctx, tx, lotID, 0, input.SpotCount); err != nil {
		return models.ParkingLot{}, err
	}
	lot.SpotCount = input.SpotCount

	if err = tx.Commit(ctx); err != nil {
		return models.ParkingLot{}, err
	}
	return lot, nil
}

func (s *Store) UpdateLot(ctx context.Context, input store.UpdateLotInput) (models.ParkingLot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ParkingLot{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var lot models.ParkingLot
	row := tx.QueryRow(ctx, `
		SELECT lot_id, name, hourly_rate, address, pin_code, created_at
		FROM parking_lots
		WHERE lot_id = $1
		FOR UPDATE
	`, input.LotID)
	if err = row.Scan(&lot.LotID, &lot.Name, &lot.HourlyRate, &lot.Address, &lot.PinCode, &lot.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ParkingLot{}, store.ErrLotNotFound
		}
		return models.ParkingLot{}, err
	}

	if input.Name != nil {
		lot.Name = *input.Name
	}
	if input.HourlyRate != nil {
		lot.HourlyRate = *input.HourlyRate
	}
	if input.Address != nil {
		lot.Address = *input.Address
	}
	if input.PinCode != nil {
		lot.PinCode = *input.PinCode
	}

	if _, err = tx.Exec(ctx, `
		UPDATE parking_lots
		SET name = $1, hourly_rate = $2, address = $3, pin_code = $4
		WHERE lot_id = $5
	`, lot.Name, lot.HourlyRate, lot.Address, lot.PinCode, input.LotID); err != nil {
		if violatesConstraint(err, lotNameConstraint) {
			return models.ParkingLot{}, store.ErrDuplicateName
		}
		return models.ParkingLot{}, err
	}

	if input.SpotCount != nil {
		if err = resizeLot(ctx, tx, input.LotID, *input.SpotCount); err != nil {
			return models.ParkingLot{}, err
		}
		lot.SpotCount = *input.SpotCount
	} else {
		row = tx.QueryRow(ctx, `SELECT COUNT(*) FROM parking_spots WHERE lot_id = $1`, input.LotID)
		if err = row.Scan(&lot.SpotCount); err != nil {
			return models.ParkingLot{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.ParkingLot{}, err
	}
	return lot, nil
}

// resizeLot grows by appending spots after the current highest number, and
// shrinks by deleting the highest-numbered available spots. Occupied spots
// are never removed; a target below the occupied count is rejected.
func resizeLot(ctx context.Context, tx pgx.Tx, lotID string, target int) error {
	var total, occupied, maxNumber int
	row := tx.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'occupied'),
			COALESCE(MAX(spot_number), 0)
		FROM parking_spots
		WHERE lot_id = $1
	`, lotID)
	if err := row.Scan(&total, &occupied, &maxNumber); err != nil {
		return err
	}

	switch {
	case target > total:
		return addSpots(ctx, tx, lotID, maxNumber, target-total)
	case target < total:
		if target < occupied {
			return store.ErrInsufficientAvailableSpots
		}
		rows, err := tx.Query(ctx, `
			SELECT spot_id
			FROM parking_spots
			WHERE lot_id = $1 AND status = 'available'
			ORDER BY spot_number DESC
			FOR UPDATE
			LIMIT $2
		`, lotID, total-target)
		if err != nil {
			return err
		}
		var victims []string
		for rows.Next() {
			var spotID string
			if err := rows.Scan(&spotID); err != nil {
				rows.Close()
				return err
			}
			victims = append(victims, spotID)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(victims) != total-target {
			return store.ErrInsufficientAvailableSpots
		}
		if _, err := tx.Exec(ctx, `DELETE FROM reservations WHERE spot_id = ANY($1)`, victims); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM parking_spots WHERE spot_id = ANY($1)`, victims); err != nil {
			return err
		}
	}
	return nil
}

func addSpots(ctx context.Context, tx pgx.Tx, lotID string, after, count int) error {
	for i := 1; i <= count; i++ {
		if _, err := tx.Exec(ctx, `
			INSERT INTO parking_spots (spot_id, lot_id, spot_number, status)
			VALUES ($1, $2, $3, 'available')
		`, uuid.NewString(), lotID, after+i); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteLot(ctx context.Context, lotID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var exists bool
	row := tx.QueryRow(ctx, `
		SELECT TRUE FROM parking_lots WHERE lot_id = $1 FOR UPDATE
	`, lotID)
	if err = row.Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrLotNotFound
		}
		return err
	}

	// Lock every spot row before counting, so a concurrent booking cannot
	// claim one between the occupancy check and the deletes below. Bookers
	// use SKIP LOCKED and see the lot as full until this commits.
	var occupied int
	row = tx.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'occupied')
		FROM (
			SELECT status FROM parking_spots WHERE lot_id = $1 FOR UPDATE
		) spots
	`, lotID)
	if err = row.Scan(&occupied); err != nil {
		return err
	}
	if occupied > 0 {
		err = store.ErrLotHasOccupiedSpots
		return err
	}

	// Reservations reference spots without ON DELETE, so cascade by hand.
	if _, err = tx.Exec(ctx, `
		DELETE FROM reservations
		WHERE spot_id IN (SELECT spot_id FROM parking_spots WHERE lot_id = $1)
	`, lotID); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM parking_spots WHERE lot_id = $1`, lotID); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM parking_lots WHERE lot_id = $1`, lotID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) DeleteSpot(ctx context.Context, spotID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var status models.SpotStatus
	row := tx.QueryRow(ctx, `
		SELECT status FROM parking_spots WHERE spot_id = $1 FOR UPDATE
	`, spotID)
	if err = row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrSpotNotFound
		}
		return err
	}
	if !store.ValidSpotAction("delete", status) {
		err = store.ErrSpotOccupied
		return err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM reservations WHERE spot_id = $1`, spotID); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM parking_spots WHERE spot_id = $1`, spotID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ListLots(ctx context.Context) ([]models.LotListing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.lot_id, l.name, l.hourly_rate, l.address, l.pin_code, l.created_at,
			p.spot_id, p.spot_number, p.status
		FROM parking_lots l
		LEFT JOIN parking_spots p ON p.lot_id = l.lot_id
		ORDER BY l.name ASC, p.spot_number ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.LotListing
	index := map[string]int{}
	for rows.Next() {
		var lot models.ParkingLot
		var spotIDNull, statusNull sql.NullString
		var spotNumberNull sql.NullInt32
		if err := rows.Scan(&lot.LotID, &lot.Name, &lot.HourlyRate, &lot.Address, &lot.PinCode, &lot.CreatedAt, &spotIDNull, &spotNumberNull, &statusNull); err != nil {
			return nil, err
		}
		i, ok := index[lot.LotID]
		if !ok {
			listings = append(listings, models.LotListing{ParkingLot: lot})
			i = len(listings) - 1
			index[lot.LotID] = i
		}
		if !spotIDNull.Valid {
			continue
		}
		spot := models.ParkingSpot{SpotID: spotIDNull.String, LotID: lot.LotID, SpotNumber: int(spotNumberNull.Int32), Status: models.SpotStatus(statusNull.String)}
		listings[i].Spots = append(listings[i].Spots, spot)
		listings[i].SpotCount++
		if spot.Status == models.SpotAvailable {
			listings[i].AvailableSpots++
		} else {
			listings[i].OccupiedSpots++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return listings, nil
}

func (s *Store) ListAvailableLots(ctx context.Context, limit int) ([]models.LotListing, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx, `
		SELECT l.lot_id, l.name, l.hourly_rate, l.address, l.pin_code, l.created_at,
			COUNT(p.spot_id),
			COUNT(p.spot_id) FILTER (WHERE p.status = 'available')
		FROM parking_lots l
		JOIN parking_spots p ON p.lot_id = l.lot_id
		GROUP BY l.lot_id
		HAVING COUNT(p.spot_id) FILTER (WHERE p.status = 'available') > 0
		ORDER BY l.name ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.LotListing
	for rows.Next() {
		var listing models.LotListing
		if err := rows.Scan(&listing.LotID, &listing.Name, &listing.HourlyRate, &listing.Address, &listing.PinCode, &listing.CreatedAt, &listing.SpotCount, &listing.AvailableSpots); err != nil {
			return nil, err
		}
		listing.OccupiedSpots = listing.SpotCount - listing.AvailableSpots
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return listings, nil
}

func (s *Store) SearchLots(ctx context.Context, query string) ([]models.ParkingLot, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT l.lot_id, l.name, l.hourly_rate, l.address, l.pin_code, l.created_at,
			(SELECT COUNT(*) FROM parking_spots p WHERE p.lot_id = l.lot_id)
		FROM parking_lots l
		WHERE l.name ILIKE $1 OR l.address ILIKE $1 OR l.pin_code ILIKE $1
		ORDER BY l.name ASC
	`, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []models.ParkingLot
	for rows.Next() {
		var lot models.ParkingLot
		if err := rows.Scan(&lot.LotID, &lot.Name, &lot.HourlyRate, &lot.Address, &lot.PinCode, &lot.CreatedAt, &lot.SpotCount); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lots, nil
}

func (s *Store) GetSpotDetail(ctx context.Context, spotID string) (models.SpotDetail, error) {
	var detail models.SpotDetail
	row := s.pool.QueryRow(ctx, `
		SELECT p.spot_id, p.lot_id, p.spot_number, p.status, l.name
		FROM parking_spots p
		JOIN parking_lots l ON l.lot_id = p.lot_id
		WHERE p.spot_id = $1
	`, spotID)
	if err := row.Scan(&detail.SpotID, &detail.LotID, &detail.SpotNumber, &detail.Status, &detail.LotName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SpotDetail{}, store.ErrSpotNotFound
		}
		return models.SpotDetail{}, err
	}
	if detail.Status != models.SpotOccupied {
		return detail, nil
	}

	var reservation models.SpotDetailReservation
	var hourlyRate float64
	row = s.pool.QueryRow(ctx, `
		SELECT r.reservation_id, r.user_id, u.full_name, u.email, r.vehicle_number, r.start_ts, l.hourly_rate
		FROM reservations r
		JOIN users u ON u.user_id = r.user_id
		JOIN parking_spots p ON p.spot_id = r.spot_id
		JOIN parking_lots l ON l.lot_id = p.lot_id
		WHERE r.spot_id = $1 AND r.status = 'active'
	`, spotID)
	if err := row.Scan(&reservation.ReservationID, &reservation.UserID, &reservation.UserName, &reservation.UserEmail, &reservation.VehicleNumber, &reservation.StartTs, &hourlyRate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return detail, nil
		}
		return models.SpotDetail{}, err
	}
	now := time.Now().UTC()
	reservation.HoursParked = s.calculator.Hours(reservation.StartTs, now)
	reservation.EstimatedCost = s.calculator.Cost(reservation.StartTs, now, hourlyRate)
	detail.Reservation = &reservation
	return detail, nil
}

func (s *Store) GetAdminStats(ctx context.Context) (models.AdminStats, error) {
	var stats models.AdminStats
	row := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM parking_lots),
			(SELECT COUNT(*) FROM parking_spots),
			(SELECT COUNT(*) FROM parking_spots WHERE status = 'available'),
			(SELECT COUNT(*) FROM parking_spots WHERE status = 'occupied'),
			(SELECT COUNT(*) FROM users WHERE is_admin = FALSE)
	`)
	if err := row.Scan(&stats.TotalLots, &stats.TotalSpots, &stats.AvailableSpots, &stats.OccupiedSpots, &stats.TotalUsers); err != nil {
		return models.AdminStats{}, err
	}
	return stats, nil
}

func (s *Store) GetLotCharts(ctx context.Context) ([]models.LotChartRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.lot_id, l.name,
			COUNT(p.spot_id) FILTER (WHERE p.status = 'available'),
			COUNT(p.spot_id) FILTER (WHERE p.status = 'occupied'),
			COALESCE((
				SELECT SUM(r.cost)
				FROM reservations r
				JOIN parking_spots ps ON ps.spot_id = r.spot_id
				WHERE ps.lot_id = l.lot_id AND r.status = 'completed'
			), 0)
		FROM parking_lots l
		LEFT JOIN parking_spots p ON p.lot_id = l.lot_id
		GROUP BY l.lot_id
		ORDER BY l.name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chart []models.LotChartRow
	for rows.Next() {
		var row models.LotChartRow
		if err := rows.Scan(&row.LotID, &row.LotName, &row.Available, &row.Occupied, &row.Revenue); err != nil {
			return nil, err
		}
		chart = append(chart, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chart, nil
}
