// Package worker runs the background side of the system: it drains the
// export job queue and tails the outbox for notification events. Jobs are
// claimed with the same skip-locked discipline the allocator uses, so any
// number of worker processes can run against one database.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"urbanpark/internal/billing"
	"urbanpark/internal/models"
	"urbanpark/internal/store"
)

type Worker struct {
	store  store.WorkerStore
	clock  billing.Clock
	mailer Mailer

	reminderInactiveDays int
	reminderLotLimit     int
	outboxBatchSize      int
}

type Config struct {
	Clock                billing.Clock
	Mailer               Mailer
	ReminderInactiveDays int
	ReminderLotLimit     int
	OutboxBatchSize      int
}

func New(st store.WorkerStore, cfg Config) *Worker {
	days := cfg.ReminderInactiveDays
	if days <= 0 {
		days = 1
	}
	lotLimit := cfg.ReminderLotLimit
	if lotLimit <= 0 {
		lotLimit = 5
	}
	batch := cfg.OutboxBatchSize
	if batch <= 0 {
		batch = 100
	}
	mailer := cfg.Mailer
	if mailer == nil {
		mailer = logMailer{}
	}
	return &Worker{
		store:                st,
		clock:                cfg.Clock,
		mailer:               mailer,
		reminderInactiveDays: days,
		reminderLotLimit:     lotLimit,
		outboxBatchSize:      batch,
	}
}

// RunJobs drains the pending queue: claim, process, mark terminal. A failed
// job stays failed until an operator retriggers it.
func (w *Worker) RunJobs(ctx context.Context) error {
	for {
		job, ok, err := w.store.ClaimJob(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if err := w.process(ctx, job); err != nil {
			log.Printf("job %s (%s) failed: %v", job.JobID, job.Kind, err)
			if failErr := w.store.FailJob(ctx, job.JobID, err.Error()); failErr != nil {
				return failErr
			}
			continue
		}
		if err := w.store.CompleteJob(ctx, job.JobID); err != nil {
			return err
		}
	}
}

func (w *Worker) process(ctx context.Context, job models.ExportJob) error {
	switch job.Kind {
	case models.JobCSVExport:
		return w.runCSVExport(ctx, job)
	case models.JobDailyReminder:
		return w.runDailyReminder(ctx)
	case models.JobMonthlyReport:
		return w.runMonthlyReport(ctx, job)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (w *Worker) runCSVExport(ctx context.Context, job models.ExportJob) error {
	user, err := w.store.GetUser(ctx, job.UserID)
	if err != nil {
		return err
	}
	reservations, err := w.store.ListUserReservations(ctx, job.UserID)
	if err != nil {
		return err
	}

	payload, err := reservationsCSV(reservations, w.clock)
	if err != nil {
		return err
	}

	return w.mailer.Send(ctx, Message{
		To:             user.Email,
		Subject:        "Your parking history export",
		Body:           fmt.Sprintf("Hi %s,\n\nYour parking history export is attached. It covers %d reservations.\n", user.FullName, len(reservations)),
		AttachmentName: fmt.Sprintf("parking-history-%s.csv", w.clock.Normalize(w.clock.Now()).Format("2006-01-02")),
		Attachment:     payload,
	})
}

func (w *Worker) runDailyReminder(ctx context.Context) error {
	cutoff := w.clock.Now().Add(-time.Duration(w.reminderInactiveDays) * 24 * time.Hour)
	users, err := w.store.ListInactiveUsers(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}

	lots, err := w.store.ListAvailableLots(ctx, w.reminderLotLimit)
	if err != nil {
		return err
	}

	body := composeReminder(lots)
	for _, user := range users {
		if err := w.mailer.Send(ctx, Message{
			To:      user.Email,
			Subject: "Parking spots are waiting for you",
			Body:    fmt.Sprintf("Hi %s,\n\n%s", user.FullName, body),
		}); err != nil {
			log.Printf("reminder to %s failed: %v", user.Email, err)
		}
	}
	return nil
}

// runMonthlyReport covers the previous calendar month in the canonical zone.
// Broadcast jobs report to every regular user; otherwise only to the job
// owner.
func (w *Worker) runMonthlyReport(ctx context.Context, job models.ExportJob) error {
	now := w.clock.Normalize(w.clock.Now())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, w.clock.Location())
	from := monthStart.AddDate(0, -1, 0)

	var users []models.User
	if job.Broadcast {
		all, err := w.store.ListRegularUsers(ctx)
		if err != nil {
			return err
		}
		users = all
	} else {
		user, err := w.store.GetUser(ctx, job.UserID)
		if err != nil {
			return err
		}
		users = []models.User{user}
	}

	for _, user := range users {
		reservations, err := w.store.ListUserReservationsBetween(ctx, user.UserID, from.UTC(), monthStart.UTC())
		if err != nil {
			return err
		}
		body := composeMonthlyReport(user, reservations, from, w.clock)
		if err := w.mailer.Send(ctx, Message{
			To:      user.Email,
			Subject: fmt.Sprintf("Your parking report for %s", from.Format("January 2006")),
			Body:    body,
		}); err != nil {
			log.Printf("monthly report to %s failed: %v", user.Email, err)
		}
	}
	return nil
}

func composeReminder(lots []models.LotListing) string {
	if len(lots) == 0 {
		return "We have not seen you in a while. Book a spot the next time you head out."
	}
	body := "We have not seen you in a while. These lots have spots available right now:\n\n"
	for _, lot := range lots {
		body += fmt.Sprintf("  - %s (%s): %d spots free at %.2f/hour\n", lot.Name, lot.Address, lot.AvailableSpots, lot.HourlyRate)
	}
	return body
}

func composeMonthlyReport(user models.User, reservations []models.Reservation, month time.Time, clock billing.Clock) string {
	total := 0.0
	completed := 0
	lotCounts := map[string]int{}
	for _, reservation := range reservations {
		if reservation.Cost != nil {
			total += *reservation.Cost
			completed++
		}
		if reservation.LotName != "" {
			lotCounts[reservation.LotName]++
		}
	}
	mostUsed := ""
	for name, count := range lotCounts {
		if mostUsed == "" || count > lotCounts[mostUsed] {
			mostUsed = name
		}
	}

	body := fmt.Sprintf("Hi %s,\n\nHere is your parking summary for %s:\n\n", user.FullName, month.Format("January 2006"))
	body += fmt.Sprintf("  Bookings: %d\n  Completed: %d\n  Total spent: %.2f\n", len(reservations), completed, total)
	if mostUsed != "" {
		body += fmt.Sprintf("  Most used lot: %s\n", mostUsed)
	}
	if len(reservations) > 0 {
		body += "\nBookings:\n"
		for _, reservation := range reservations {
			line := fmt.Sprintf("  - %s at %s, spot %d", clock.Normalize(reservation.StartTs).Format("Jan 2 15:04"), reservation.LotName, reservation.SpotNumber)
			if reservation.Cost != nil {
				line += fmt.Sprintf(", cost %.2f", *reservation.Cost)
			}
			body += line + "\n"
		}
	}
	return body
}

// RunOutbox tails reservation events and sends booking confirmations. Sends
// are best effort: a failed event is logged and skipped, and the offset
// advances past it so one bad payload cannot wedge the tail.
func (w *Worker) RunOutbox(ctx context.Context) error {
	last, err := w.store.GetLastOffset(ctx)
	if err != nil {
		return err
	}

	events, err := w.store.ListOutboxEvents(ctx, last, w.outboxBatchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := w.processEvent(ctx, event); err != nil {
			log.Printf("outbox event %s: %v", event.EventID, err)
		}
		last = event.CreatedAt
	}

	if !last.IsZero() {
		if err := w.store.UpdateOffset(ctx, last); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) processEvent(ctx context.Context, event store.OutboxEvent) error {
	var payload map[string]interface{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}
	userID, _ := payload["user_id"].(string)
	if userID == "" {
		return nil
	}
	user, err := w.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	switch event.Type {
	case "reservation.created":
		vehicle, _ := payload["vehicle_number"].(string)
		return w.mailer.Send(ctx, Message{
			To:      user.Email,
			Subject: "Booking confirmed",
			Body:    fmt.Sprintf("Hi %s,\n\nYour spot is booked for vehicle %s.\n", user.FullName, vehicle),
		})
	case "reservation.released":
		cost, _ := payload["cost"].(float64)
		return w.mailer.Send(ctx, Message{
			To:      user.Email,
			Subject: "Parking receipt",
			Body:    fmt.Sprintf("Hi %s,\n\nYour spot was released. Total charge: %.2f.\n", user.FullName, cost),
		})
	default:
		return nil
	}
}

// Start runs both loops on their own tickers until the context is cancelled.
func Start(ctx context.Context, jobInterval, outboxInterval time.Duration, w *Worker) {
	if jobInterval <= 0 {
		jobInterval = 5 * time.Second
	}
	if outboxInterval <= 0 {
		outboxInterval = 10 * time.Second
	}
	jobTicker := time.NewTicker(jobInterval)
	defer jobTicker.Stop()
	outboxTicker := time.NewTicker(outboxInterval)
	defer outboxTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-jobTicker.C:
			if err := w.RunJobs(ctx); err != nil {
				log.Printf("job worker error: %v", err)
			}
		case <-outboxTicker.C:
			if err := w.RunOutbox(ctx); err != nil {
				log.Printf("outbox worker error: %v", err)
			}
		}
	}
}
