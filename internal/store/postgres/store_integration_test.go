package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"urbanpark/internal/models"
	"urbanpark/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestBookConcurrencyDistinctSpots(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	lot := createLot(t, ctx, st, "Central Garage", 50, 2)
	userA := createUser(t, ctx, pool)
	userB := createUser(t, ctx, pool)

	var wg sync.WaitGroup
	results := make(chan bookResult, 2)
	for _, userID := range []string{userA, userB} {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			reservation, err := st.Book(ctx, store.BookInput{
				UserID:        uid,
				LotID:         lot.LotID,
				VehicleNumber: "KA-01-" + uid[:4],
			})
			results <- bookResult{spotID: reservation.SpotID, err: err}
		}(userID)
	}
	wg.Wait()
	close(results)

	var spots []string
	for result := range results {
		if result.err != nil {
			t.Fatalf("book error: %v", result.err)
		}
		spots = append(spots, result.spotID)
	}
	if len(spots) != 2 {
		t.Fatalf("expected 2 reservations, got %d", len(spots))
	}
	if spots[0] == spots[1] {
		t.Fatalf("expected distinct spots, both got %s", spots[0])
	}
}

func TestBookSingleSpotOneWinner(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	lot := createLot(t, ctx, st, "Tiny Lot", 30, 1)
	userA := createUser(t, ctx, pool)
	userB := createUser(t, ctx, pool)

	var wg sync.WaitGroup
	results := make(chan bookResult, 2)
	for _, userID := range []string{userA, userB} {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			reservation, err := st.Book(ctx, store.BookInput{
				UserID:        uid,
				LotID:         lot.LotID,
				VehicleNumber: "KA-02-0001",
			})
			results <- bookResult{spotID: reservation.SpotID, err: err}
		}(userID)
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for result := range results {
		switch {
		case result.err == nil:
			wins++
		case errors.Is(result.err, store.ErrNoAvailableSpot):
			losses++
		default:
			t.Fatalf("unexpected book error: %v", result.err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected exactly one winner, got %d wins %d losses", wins, losses)
	}
}

func TestBookRejectsSecondActiveBooking(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	lot := createLot(t, ctx, st, "Mall Parking", 40, 3)
	userID := createUser(t, ctx, pool)

	if _, err := st.Book(ctx, store.BookInput{UserID: userID, LotID: lot.LotID, VehicleNumber: "KA-03-1111"}); err != nil {
		t.Fatalf("first book: %v", err)
	}
	_, err := st.Book(ctx, store.BookInput{UserID: userID, LotID: lot.LotID, VehicleNumber: "KA-03-1111"})
	if !errors.Is(err, store.ErrAlreadyActiveBooking) {
		t.Fatalf("expected ErrAlreadyActiveBooking, got %v", err)
	}

	var occupied int
	row := pool.QueryRow(ctx, `SELECT COUNT(*) FROM parking_spots WHERE lot_id = $1 AND status = 'occupied'`, lot.LotID)
	if err := row.Scan(&occupied); err != nil {
		t.Fatalf("count occupied: %v", err)
	}
	if occupied != 1 {
		t.Fatalf("expected 1 occupied spot after rejected booking, got %d", occupied)
	}
}

func TestReleaseComputesCostAndFreesSpot(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	lot := createLot(t, ctx, st, "Airport Lot", 60, 1)
	userID := createUser(t, ctx, pool)

	start := time.Now().UTC().Add(-2 * time.Hour)
	reservation, err := st.Book(ctx, store.BookInput{UserID: userID, LotID: lot.LotID, VehicleNumber: "KA-04-9999", StartTs: start})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	end := start.Add(2 * time.Hour)
	result, err := st.Release(ctx, store.ReleaseInput{ReservationID: reservation.ReservationID, UserID: userID, EndTs: end})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if result.Cost != 120 {
		t.Fatalf("expected cost 120, got %v", result.Cost)
	}
	if result.DurationSeconds != 7200 {
		t.Fatalf("expected duration 7200s, got %d", result.DurationSeconds)
	}

	var status models.SpotStatus
	row := pool.QueryRow(ctx, `SELECT status FROM parking_spots WHERE spot_id = $1`, reservation.SpotID)
	if err := row.Scan(&status); err != nil {
		t.Fatalf("spot status: %v", err)
	}
	if status != models.SpotAvailable {
		t.Fatalf("expected spot available after release, got %s", status)
	}

	_, err = st.Release(ctx, store.ReleaseInput{ReservationID: reservation.ReservationID, UserID: userID, EndTs: end})
	if !errors.Is(err, store.ErrReservationNotActive) {
		t.Fatalf("expected ErrReservationNotActive on double release, got %v", err)
	}
}

func TestListReservationsEstimatesRunningCost(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	lot := createLot(t, ctx, st, "Harbor Lot", 60, 1)
	userID := createUser(t, ctx, pool)

	start := time.Now().UTC().Add(-2 * time.Hour)
	if _, err := st.Book(ctx, store.BookInput{UserID: userID, LotID: lot.LotID, VehicleNumber: "KA-06-0042", StartTs: start}); err != nil {
		t.Fatalf("book: %v", err)
	}

	reservations, err := st.ListUserReservations(ctx, userID)
	if err != nil {
		t.Fatalf("list reservations: %v", err)
	}
	if len(reservations) != 1 {
		t.Fatalf("expected 1 reservation, got %d", len(reservations))
	}
	active := reservations[0]
	if active.Cost != nil {
		t.Fatalf("active reservation should have no final cost, got %v", *active.Cost)
	}
	if active.EstimatedCost == nil {
		t.Fatal("active reservation should carry a running cost estimate")
	}
	if *active.EstimatedCost < 120 || *active.EstimatedCost > 121 {
		t.Fatalf("expected roughly 2h at 60/hour, got %v", *active.EstimatedCost)
	}
	if active.HoursParked < 2 || active.HoursParked > 2.02 {
		t.Fatalf("expected about 2 hours parked, got %v", active.HoursParked)
	}
}

func TestResizeNeverRemovesOccupiedSpots(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	lot := createLot(t, ctx, st, "Stadium Lot", 25, 3)
	userA := createUser(t, ctx, pool)
	userB := createUser(t, ctx, pool)
	for _, userID := range []string{userA, userB} {
		if _, err := st.Book(ctx, store.BookInput{UserID: userID, LotID: lot.LotID, VehicleNumber: "KA-05-0005"}); err != nil {
			t.Fatalf("book: %v", err)
		}
	}

	one := 1
	_, err := st.UpdateLot(ctx, store.UpdateLotInput{LotID: lot.LotID, SpotCount: &one})
	if !errors.Is(err, store.ErrInsufficientAvailableSpots) {
		t.Fatalf("expected ErrInsufficientAvailableSpots, got %v", err)
	}

	two := 2
	updated, err := st.UpdateLot(ctx, store.UpdateLotInput{LotID: lot.LotID, SpotCount: &two})
	if err != nil {
		t.Fatalf("shrink to occupied count: %v", err)
	}
	if updated.SpotCount != 2 {
		t.Fatalf("expected 2 spots, got %d", updated.SpotCount)
	}

	var available int
	row := pool.QueryRow(ctx, `SELECT COUNT(*) FROM parking_spots WHERE lot_id = $1 AND status = 'available'`, lot.LotID)
	if err := row.Scan(&available); err != nil {
		t.Fatalf("count available: %v", err)
	}
	if available != 0 {
		t.Fatalf("expected only occupied spots to remain, got %d available", available)
	}
}

func TestDeleteLotRacesBooking(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	// Whichever side commits first, the other must see a consistent state:
	// a won booking blocks the delete, a won delete makes the booking fail
	// cleanly. The lot must never vanish under an active reservation.
	for i := 0; i < 10; i++ {
		lot := createLot(t, ctx, st, fmt.Sprintf("Transient Lot %d", i), 40, 1)
		userID := createUser(t, ctx, pool)

		var wg sync.WaitGroup
		var bookErr, deleteErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, bookErr = st.Book(ctx, store.BookInput{UserID: userID, LotID: lot.LotID, VehicleNumber: "KA-07-0001"})
		}()
		go func() {
			defer wg.Done()
			deleteErr = st.DeleteLot(ctx, lot.LotID)
		}()
		wg.Wait()

		switch {
		case bookErr == nil:
			if !errors.Is(deleteErr, store.ErrLotHasOccupiedSpots) {
				t.Fatalf("iteration %d: booking won but delete returned %v", i, deleteErr)
			}
		case errors.Is(bookErr, store.ErrLotNotFound) || errors.Is(bookErr, store.ErrNoAvailableSpot):
			if deleteErr != nil {
				t.Fatalf("iteration %d: delete won but returned %v", i, deleteErr)
			}
		default:
			t.Fatalf("iteration %d: unexpected booking error %v", i, bookErr)
		}
	}
}

func TestEnqueueJobIdempotency(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	userID := createUser(t, ctx, pool)
	jobID := uuid.NewString()

	_, queued, err := st.EnqueueJob(ctx, store.EnqueueJobInput{JobID: jobID, UserID: userID, Kind: models.JobCSVExport})
	if err != nil || !queued {
		t.Fatalf("first enqueue: queued=%v err=%v", queued, err)
	}

	_, _, err = st.EnqueueJob(ctx, store.EnqueueJobInput{JobID: jobID, UserID: userID, Kind: models.JobCSVExport})
	if !errors.Is(err, store.ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob while pending, got %v", err)
	}

	if err := st.CompleteJob(ctx, jobID); !errors.Is(err, store.ErrJobNotFound) {
		t.Fatalf("expected completing an unclaimed job to be rejected, got %v", err)
	}

	claimed, ok, err := st.ClaimJob(ctx)
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if claimed.JobID != jobID {
		t.Fatalf("claimed wrong job %s", claimed.JobID)
	}
	if err := st.CompleteJob(ctx, jobID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	job, queued, err := st.EnqueueJob(ctx, store.EnqueueJobInput{JobID: jobID, UserID: userID, Kind: models.JobCSVExport})
	if err != nil || !queued {
		t.Fatalf("re-enqueue after completion: queued=%v err=%v", queued, err)
	}
	if job.Status != models.JobPending {
		t.Fatalf("expected retriggered job pending, got %s", job.Status)
	}
}

type bookResult struct {
	spotID string
	err    error
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	st := NewStore(pool, Options{})
	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return st, pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}

func createLot(t *testing.T, ctx context.Context, st *Store, name string, rate float64, spots int) models.ParkingLot {
	t.Helper()
	lot, err := st.CreateLot(ctx, store.CreateLotInput{
		Name:       name,
		HourlyRate: rate,
		Address:    "1 Test Street",
		PinCode:    "560001",
		SpotCount:  spots,
	})
	if err != nil {
		t.Fatalf("create lot: %v", err)
	}
	return lot
}

func createUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool) string {
	t.Helper()
	userID := uuid.NewString()
	if _, err := pool.Exec(ctx, `
		INSERT INTO users (user_id, email, password_hash, full_name)
		VALUES ($1, $2, 'x', 'Test User')
	`, userID, userID+"@example.com"); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return userID
}
