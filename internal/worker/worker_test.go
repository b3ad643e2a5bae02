package worker

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"urbanpark/internal/billing"
	"urbanpark/internal/models"
	"urbanpark/internal/store"
)

type fakeWorkerStore struct {
	jobs         []models.ExportJob
	completed    []string
	failed       map[string]string
	users        map[string]models.User
	reservations map[string][]models.Reservation
	inactive     []models.User
	regular      []models.User
	lots         []models.LotListing
	events       []store.OutboxEvent
	offset       time.Time
}

func (f *fakeWorkerStore) ClaimJob(ctx context.Context) (models.ExportJob, bool, error) {
	if len(f.jobs) == 0 {
		return models.ExportJob{}, false, nil
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	job.Status = models.JobProcessing
	return job, true, nil
}

func (f *fakeWorkerStore) CompleteJob(ctx context.Context, jobID string) error {
	f.completed = append(f.completed, jobID)
	return nil
}

func (f *fakeWorkerStore) FailJob(ctx context.Context, jobID, detail string) error {
	if f.failed == nil {
		f.failed = map[string]string{}
	}
	f.failed[jobID] = detail
	return nil
}

func (f *fakeWorkerStore) GetUser(ctx context.Context, userID string) (models.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return models.User{}, store.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeWorkerStore) ListUserReservations(ctx context.Context, userID string) ([]models.Reservation, error) {
	return f.reservations[userID], nil
}

func (f *fakeWorkerStore) ListUserReservationsBetween(ctx context.Context, userID string, from, to time.Time) ([]models.Reservation, error) {
	var matched []models.Reservation
	for _, reservation := range f.reservations[userID] {
		if !reservation.StartTs.Before(from) && reservation.StartTs.Before(to) {
			matched = append(matched, reservation)
		}
	}
	return matched, nil
}

func (f *fakeWorkerStore) ListInactiveUsers(ctx context.Context, cutoff time.Time) ([]models.User, error) {
	return f.inactive, nil
}

func (f *fakeWorkerStore) ListRegularUsers(ctx context.Context) ([]models.User, error) {
	return f.regular, nil
}

func (f *fakeWorkerStore) ListAvailableLots(ctx context.Context, limit int) ([]models.LotListing, error) {
	return f.lots, nil
}

func (f *fakeWorkerStore) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	var events []store.OutboxEvent
	for _, event := range f.events {
		if event.CreatedAt.After(after) {
			events = append(events, event)
		}
	}
	return events, nil
}

func (f *fakeWorkerStore) GetLastOffset(ctx context.Context) (time.Time, error) {
	return f.offset, nil
}

func (f *fakeWorkerStore) UpdateOffset(ctx context.Context, value time.Time) error {
	f.offset = value
	return nil
}

type recordingMailer struct {
	sent []Message
}

func (m *recordingMailer) Send(ctx context.Context, msg Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func testClock(t *testing.T) billing.Clock {
	t.Helper()
	clock, err := billing.NewClock("Asia/Kolkata")
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	return clock
}

func TestRunJobsCSVExport(t *testing.T) {
	cost := 75.50
	end := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	st := &fakeWorkerStore{
		jobs: []models.ExportJob{{JobID: "job-1", UserID: "user-1", Kind: models.JobCSVExport}},
		users: map[string]models.User{
			"user-1": {UserID: "user-1", Email: "user@example.com", FullName: "Asha"},
		},
		reservations: map[string][]models.Reservation{
			"user-1": {{
				ReservationID: "res-1",
				LotName:       "Central Garage",
				SpotNumber:    4,
				VehicleNumber: "KA-01-1234",
				StartTs:       end.Add(-90 * time.Minute),
				EndTs:         &end,
				Cost:          &cost,
				Status:        models.ReservationCompleted,
			}},
		},
	}
	mailer := &recordingMailer{}
	w := New(st, Config{Clock: testClock(t), Mailer: mailer})

	if err := w.RunJobs(context.Background()); err != nil {
		t.Fatalf("run jobs: %v", err)
	}
	if len(st.completed) != 1 || st.completed[0] != "job-1" {
		t.Fatalf("expected job-1 completed, got %v", st.completed)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(mailer.sent))
	}

	msg := mailer.sent[0]
	if msg.To != "user@example.com" {
		t.Fatalf("unexpected recipient %s", msg.To)
	}
	if !strings.HasSuffix(msg.AttachmentName, ".csv") {
		t.Fatalf("expected csv attachment, got %s", msg.AttachmentName)
	}
	content := string(msg.Attachment)
	if !strings.Contains(content, "Central Garage") || !strings.Contains(content, "75.50") {
		t.Fatalf("csv missing reservation data:\n%s", content)
	}
	if !strings.HasPrefix(content, "reservation_id,lot_name,spot_number") {
		t.Fatalf("csv missing header:\n%s", content)
	}
}

func TestRunJobsFailureMarksFailed(t *testing.T) {
	st := &fakeWorkerStore{
		jobs: []models.ExportJob{{JobID: "job-2", UserID: "ghost", Kind: models.JobCSVExport}},
	}
	w := New(st, Config{Clock: testClock(t), Mailer: &recordingMailer{}})

	if err := w.RunJobs(context.Background()); err != nil {
		t.Fatalf("run jobs: %v", err)
	}
	if len(st.completed) != 0 {
		t.Fatalf("expected no completions, got %v", st.completed)
	}
	detail, ok := st.failed["job-2"]
	if !ok {
		t.Fatal("expected job-2 marked failed")
	}
	if !strings.Contains(detail, "user not found") {
		t.Fatalf("unexpected failure detail %q", detail)
	}
}

func TestDailyReminderMailsInactiveUsers(t *testing.T) {
	st := &fakeWorkerStore{
		jobs: []models.ExportJob{{JobID: "job-3", UserID: "admin-1", Kind: models.JobDailyReminder, Broadcast: true}},
		inactive: []models.User{
			{UserID: "user-1", Email: "a@example.com", FullName: "Asha"},
			{UserID: "user-2", Email: "b@example.com", FullName: "Binod"},
		},
		lots: []models.LotListing{
			{ParkingLot: models.ParkingLot{Name: "Central Garage", Address: "1 Main St", HourlyRate: 50}, AvailableSpots: 3},
		},
	}
	mailer := &recordingMailer{}
	w := New(st, Config{Clock: testClock(t), Mailer: mailer})

	if err := w.RunJobs(context.Background()); err != nil {
		t.Fatalf("run jobs: %v", err)
	}
	if len(mailer.sent) != 2 {
		t.Fatalf("expected 2 reminders, got %d", len(mailer.sent))
	}
	if !strings.Contains(mailer.sent[0].Body, "Central Garage") {
		t.Fatalf("reminder missing lot listing:\n%s", mailer.sent[0].Body)
	}
}

func TestMonthlyReportBroadcast(t *testing.T) {
	// Fix the booking inside the previous canonical-zone month relative to now.
	clock := testClock(t)
	now := clock.Normalize(time.Now())
	lastMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, clock.Location()).AddDate(0, -1, 0).Add(10 * 24 * time.Hour).UTC()
	cost := 120.0
	st := &fakeWorkerStore{
		jobs: []models.ExportJob{{JobID: "job-4", UserID: "admin-1", Kind: models.JobMonthlyReport, Broadcast: true}},
		regular: []models.User{
			{UserID: "user-1", Email: "a@example.com", FullName: "Asha"},
		},
		reservations: map[string][]models.Reservation{
			"user-1": {{
				ReservationID: "res-1",
				LotName:       "Airport Lot",
				SpotNumber:    2,
				StartTs:       lastMonth,
				Cost:          &cost,
				Status:        models.ReservationCompleted,
			}},
		},
	}
	mailer := &recordingMailer{}
	w := New(st, Config{Clock: clock, Mailer: mailer})

	if err := w.RunJobs(context.Background()); err != nil {
		t.Fatalf("run jobs: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 report, got %d", len(mailer.sent))
	}
	body := mailer.sent[0].Body
	if !strings.Contains(body, "Total spent: 120.00") {
		t.Fatalf("report missing total:\n%s", body)
	}
	if !strings.Contains(body, "Airport Lot") {
		t.Fatalf("report missing lot:\n%s", body)
	}
}

func TestRunOutboxSendsConfirmationsAndAdvancesOffset(t *testing.T) {
	created, _ := json.Marshal(map[string]interface{}{
		"user_id":        "user-1",
		"vehicle_number": "KA-01-1234",
	})
	released, _ := json.Marshal(map[string]interface{}{
		"user_id": "user-1",
		"cost":    42.5,
	})
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	st := &fakeWorkerStore{
		users: map[string]models.User{
			"user-1": {UserID: "user-1", Email: "a@example.com", FullName: "Asha"},
		},
		events: []store.OutboxEvent{
			{EventID: "e-1", Type: "reservation.created", Payload: created, CreatedAt: base},
			{EventID: "e-2", Type: "reservation.released", Payload: released, CreatedAt: base.Add(time.Minute)},
		},
	}
	mailer := &recordingMailer{}
	w := New(st, Config{Clock: testClock(t), Mailer: mailer})

	if err := w.RunOutbox(context.Background()); err != nil {
		t.Fatalf("run outbox: %v", err)
	}
	if len(mailer.sent) != 2 {
		t.Fatalf("expected 2 mails, got %d", len(mailer.sent))
	}
	if !strings.Contains(mailer.sent[1].Body, "42.50") {
		t.Fatalf("receipt missing cost:\n%s", mailer.sent[1].Body)
	}
	if !st.offset.Equal(base.Add(time.Minute)) {
		t.Fatalf("expected offset advanced to last event, got %v", st.offset)
	}

	// A second pass sees nothing new.
	if err := w.RunOutbox(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(mailer.sent) != 2 {
		t.Fatalf("expected no duplicate mails, got %d", len(mailer.sent))
	}
}

func TestRunOutboxSkipsFailedEvents(t *testing.T) {
	ghost, _ := json.Marshal(map[string]interface{}{
		"user_id":        "ghost",
		"vehicle_number": "KA-05-1111",
	})
	released, _ := json.Marshal(map[string]interface{}{
		"user_id": "user-1",
		"cost":    18.0,
	})
	base := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	st := &fakeWorkerStore{
		users: map[string]models.User{
			"user-1": {UserID: "user-1", Email: "a@example.com", FullName: "Asha"},
		},
		events: []store.OutboxEvent{
			{EventID: "e-1", Type: "reservation.created", Payload: ghost, CreatedAt: base},
			{EventID: "e-2", Type: "reservation.released", Payload: released, CreatedAt: base.Add(time.Minute)},
		},
	}
	mailer := &recordingMailer{}
	w := New(st, Config{Clock: testClock(t), Mailer: mailer})

	if err := w.RunOutbox(context.Background()); err != nil {
		t.Fatalf("run outbox: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected only the deliverable event to mail, got %d", len(mailer.sent))
	}
	if mailer.sent[0].To != "a@example.com" {
		t.Fatalf("unexpected recipient %s", mailer.sent[0].To)
	}
	if !st.offset.Equal(base.Add(time.Minute)) {
		t.Fatalf("offset should advance past the undeliverable event, got %v", st.offset)
	}

	// The bad event is not retried on the next pass.
	if err := w.RunOutbox(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected no retries, got %d mails", len(mailer.sent))
	}
}
