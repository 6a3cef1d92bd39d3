package schedule

import (
	"fmt"
	"time"

	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/strategy"
)

// maxDayAdvances bounds the search for the next open slot. A week plus one
// day always reaches an allowed day when the window itself is valid.
const maxDayAdvances = 8

// Calendar is the set of rules every scheduled instant must satisfy.
// Open and Close are wall-clock offsets from midnight in Location; the
// window is inclusive at both ends.
type Calendar struct {
	RestDay  time.Weekday
	Open     time.Duration
	Close    time.Duration
	Interval time.Duration
	Location *time.Location
}

// Assignment pairs a matchup with its scheduled instant.
type Assignment struct {
	Pairing strategy.Pairing
	At      time.Time
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Validate rejects calendars that would place fixtures on the same instant.
// Windows that can never be satisfied are reported by Next as a deadlock.
func (c Calendar) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: match interval must be positive, got %s", league.ErrInvalidInput, c.Interval)
	}
	return nil
}

// Allows reports whether t is a valid fixture instant.
func (c Calendar) Allows(t time.Time) bool {
	local := t.In(c.location())
	if local.Weekday() == c.RestDay {
		return false
	}
	tod := clockOf(local)
	return tod >= c.Open && tod <= c.Close
}

// Next returns the first allowed instant at or after t.
func (c Calendar) Next(t time.Time) (time.Time, error) {
	local := t.In(c.location())
	for i := 0; i <= maxDayAdvances; i++ {
		if local.Weekday() != c.RestDay && c.Open <= c.Close {
			open := at(local, c.Open)
			if local.Before(open) {
				return open, nil
			}
			if !local.After(at(local, c.Close)) {
				return local, nil
			}
		}
		local = c.DayAfter(local)
	}
	return time.Time{}, fmt.Errorf("%w: no slot within %d days of %s", league.ErrSchedulingDeadlock,
		maxDayAdvances, t.Format(time.RFC3339))
}

// DayAfter returns midnight, in the calendar's location, of the day after t.
func (c Calendar) DayAfter(t time.Time) time.Time {
	y, m, d := t.In(c.location()).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, c.location())
}

// Allocate assigns each pairing, in order, the next allowed instant. The
// cursor starts at the first allowed instant at or after startAfter and moves
// forward by the calendar interval after every placement. The result is a
// pure function of its inputs.
func Allocate(pairings []strategy.Pairing, startAfter time.Time, cal Calendar) ([]Assignment, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}

	assignments := make([]Assignment, 0, len(pairings))
	cursor := startAfter
	for i, p := range pairings {
		slot, err := cal.Next(cursor)
		if err != nil {
			return nil, fmt.Errorf("placing fixture %d (%s vs %s): %w", i+1, p.Home, p.Away, err)
		}
		assignments = append(assignments, Assignment{Pairing: p, At: slot})
		cursor = slot.Add(cal.Interval)
	}
	return assignments, nil
}

func clockOf(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// at returns the wall-clock instant offset from midnight on t's day.
func at(t time.Time, offset time.Duration) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, int(offset/time.Hour), int(offset%time.Hour/time.Minute),
		int(offset%time.Minute/time.Second), int(offset%time.Second), t.Location())
}
