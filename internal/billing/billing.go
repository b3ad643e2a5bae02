// Package billing computes reservation charges. Calculations are pure so the
// store and the HTTP layer can share one calculator without caring about
// wall-clock time; Clock owns the canonical timezone used for anything
// user-facing (reminder schedules, report windows, display timestamps).
package billing

import (
	"math"
	"time"
)

const (
	// DefaultMinChargeWindow is the stay length under which MinCharge applies.
	DefaultMinChargeWindow = 6 * time.Minute
	// DefaultMinCharge is the floor amount for very short stays.
	DefaultMinCharge = 1.0
)

type Calculator struct {
	MinChargeWindow time.Duration
	MinCharge       float64
}

func NewCalculator() Calculator {
	return Calculator{MinChargeWindow: DefaultMinChargeWindow, MinCharge: DefaultMinCharge}
}

// Cost returns the rounded charge for a stay from start to end at the given
// hourly rate. End-before-start is clamped to a zero-length stay rather than
// producing a negative charge.
func (c Calculator) Cost(start, end time.Time, hourlyRate float64) float64 {
	elapsed := end.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	amount := elapsed.Hours() * hourlyRate
	if elapsed < c.MinChargeWindow && amount < c.MinCharge {
		amount = c.MinCharge
	}
	return Round2(amount)
}

// Hours returns the stay length in hours, clamped at zero, rounded to two
// decimals for display.
func (c Calculator) Hours(start, end time.Time) float64 {
	elapsed := end.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	return Round2(elapsed.Hours())
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Clock pairs now() with the canonical zone. Stored timestamps stay UTC;
// Normalize converts an instant for presentation and scheduling decisions.
type Clock struct {
	loc *time.Location
}

func NewClock(tz string) (Clock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Clock{}, err
	}
	return Clock{loc: loc}, nil
}

func (c Clock) Now() time.Time {
	return time.Now().UTC()
}

func (c Clock) Normalize(t time.Time) time.Time {
	return t.In(c.loc)
}

func (c Clock) Location() *time.Location {
	return c.loc
}
