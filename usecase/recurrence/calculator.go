package recurrence

import (
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/taskstream/domain"
	"github.com/fastygo/taskstream/pkg/clock"
)

const secondsPerDay = 24 * 60 * 60

// Calculator computes the next occurrence of a recurring task.
type Calculator struct {
	clock  clock.Clock
	logger *zap.Logger
}

func NewCalculator(c clock.Clock, logger *zap.Logger) *Calculator {
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{clock: c, logger: logger}
}

// NextDue returns the first occurrence strictly after now, anchored on
// previousDue, else completedAt, else now. It returns nil for RecurrenceNone
// and for patterns it does not know.
func (c *Calculator) NextDue(previousDue *time.Time, pattern domain.Recurrence, completedAt *time.Time) *time.Time {
	if !pattern.Recurring() {
		return nil
	}
	if !pattern.Valid() {
		c.logger.Warn("unknown recurrence pattern", zap.String("pattern", string(pattern)))
		return nil
	}

	now := c.clock.Now().UTC()
	anchor := now
	switch {
	case previousDue != nil:
		anchor = previousDue.UTC()
	case completedAt != nil:
		anchor = completedAt.UTC()
	}

	// Skip whole intervals instead of walking a long-overdue task one step at
	// a time. The estimate never overshoots, the loop below finishes the job.
	k := 1
	if anchor.Before(now) {
		if skip := intervalsBetween(anchor, now, pattern); skip > k {
			k = skip
		}
	}

	next := occurrence(anchor, pattern, k)
	for !next.After(now) {
		k++
		next = occurrence(anchor, pattern, k)
	}

	c.logger.Debug("calculated next due",
		zap.Timep("previous_due", previousDue),
		zap.String("recurrence", string(pattern)),
		zap.Time("next_due", next))
	return &next
}

// occurrence returns the k-th repetition after anchor. Monthly repetitions are
// always derived from the anchor so a clamped short month does not shift the
// day-of-month of later ones.
func occurrence(anchor time.Time, pattern domain.Recurrence, k int) time.Time {
	switch pattern {
	case domain.RecurrenceMonthly:
		return AddMonths(anchor, k)
	default:
		return anchor.AddDate(0, 0, k*intervalDays(pattern))
	}
}

// intervalsBetween counts whole intervals from anchor to now in calendar
// units. time.Duration saturates near 292 years, so seconds and months are
// counted directly.
func intervalsBetween(anchor, now time.Time, pattern domain.Recurrence) int {
	if pattern == domain.RecurrenceMonthly {
		months := (now.Year()-anchor.Year())*12 + int(now.Month()) - int(anchor.Month())
		return months - 1
	}
	seconds := now.Unix() - anchor.Unix()
	return int(seconds / (int64(intervalDays(pattern)) * secondsPerDay))
}

func intervalDays(pattern domain.Recurrence) int {
	if pattern == domain.RecurrenceWeekly {
		return 7
	}
	return 1
}

// AddMonths advances t by n calendar months, clamping the day to the last day
// of the target month (Jan 31 + 1 month = Feb 28 or 29).
func AddMonths(t time.Time, n int) time.Time {
	year, month, dayOfMonth := t.Date()
	hour, minute, sec := t.Clock()

	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := daysIn(first.Year(), first.Month(), t.Location())
	if dayOfMonth > last {
		dayOfMonth = last
	}
	return time.Date(first.Year(), first.Month(), dayOfMonth, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
