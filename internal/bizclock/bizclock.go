package bizclock

import (
	"fmt"
	"time"
)

// Clock fixes the business timezone for the lifetime of the process. Every
// conversion between the stored business-local date/time-of-day columns and
// real timestamps goes through it, so the reporting window arithmetic is
// consistent everywhere.
type Clock struct {
	loc *time.Location
}

func New(tzName string) (*Clock, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("load business timezone %q: %w", tzName, err)
	}
	return &Clock{loc: loc}, nil
}

func (c *Clock) Location() *time.Location {
	return c.loc
}

func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// OrderTime builds the authoritative timestamp of an order from its stored
// business-local date and "HH:MM:SS" time of day. Rejects impossible calendar
// dates instead of letting time.Date roll them over.
func (c *Clock) OrderTime(year, month, day int, timeOfDay string) (time.Time, error) {
	parsed, err := time.Parse("15:04:05", timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time of day %q: %w", timeOfDay, err)
	}

	ts := time.Date(year, time.Month(month), day, parsed.Hour(), parsed.Minute(), parsed.Second(), 0, c.loc)
	if ts.Year() != year || ts.Month() != time.Month(month) || ts.Day() != day {
		return time.Time{}, fmt.Errorf("invalid calendar date %04d-%02d-%02d", year, month, day)
	}
	return ts, nil
}

// Midnight returns the start of t's business-local calendar day.
func (c *Clock) Midnight(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

func (c *Clock) SameBusinessDay(a, b time.Time) bool {
	ay, am, ad := a.In(c.loc).Date()
	by, bm, bd := b.In(c.loc).Date()
	return ay == by && am == bm && ad == bd
}

func (c *Clock) DateString(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

func (c *Clock) HourOfDay(t time.Time) int {
	return t.In(c.loc).Hour()
}
