package worker

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"urbanpark/internal/billing"
	"urbanpark/internal/models"
)

const csvTimeLayout = "2006-01-02 15:04:05"

// reservationsCSV renders a user's full booking history. Timestamps are in
// the canonical zone since the file is for people, not machines.
func reservationsCSV(reservations []models.Reservation, clock billing.Clock) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"reservation_id", "lot_name", "spot_number", "vehicle_number", "start_ts", "end_ts", "cost", "status"}
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for _, reservation := range reservations {
		endTs := ""
		if reservation.EndTs != nil {
			endTs = clock.Normalize(*reservation.EndTs).Format(csvTimeLayout)
		}
		cost := ""
		if reservation.Cost != nil {
			cost = strconv.FormatFloat(*reservation.Cost, 'f', 2, 64)
		}
		record := []string{
			reservation.ReservationID,
			reservation.LotName,
			strconv.Itoa(reservation.SpotNumber),
			reservation.VehicleNumber,
			clock.Normalize(reservation.StartTs).Format(csvTimeLayout),
			endTs,
			cost,
			string(reservation.Status),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
