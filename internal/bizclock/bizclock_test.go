package bizclock

import (
	"testing"
	"time"
)

func newTestClock(t *testing.T) *Clock {
	t.Helper()
	clock, err := New("America/Chicago")
	if err != nil {
		t.Fatalf("load clock: %v", err)
	}
	return clock
}

func TestNewRejectsUnknownZone(t *testing.T) {
	if _, err := New("Nowhere/Atlantis"); err == nil {
		t.Fatalf("expected unknown timezone to be rejected")
	}
}

func TestOrderTimeBuildsBusinessLocalTimestamp(t *testing.T) {
	clock := newTestClock(t)

	ts, err := clock.OrderTime(2025, 8, 25, "14:30:05")
	if err != nil {
		t.Fatalf("order time: %v", err)
	}
	if ts.Hour() != 14 || ts.Minute() != 30 || ts.Second() != 5 {
		t.Fatalf("unexpected wall clock: %v", ts)
	}
	if ts.Location() != clock.Location() {
		t.Fatalf("expected business location, got %v", ts.Location())
	}
}

func TestOrderTimeRejectsRolloverDates(t *testing.T) {
	clock := newTestClock(t)

	if _, err := clock.OrderTime(2025, 2, 30, "10:00:00"); err == nil {
		t.Fatalf("expected Feb 30 to be rejected")
	}
	if _, err := clock.OrderTime(2025, 13, 1, "10:00:00"); err == nil {
		t.Fatalf("expected month 13 to be rejected")
	}
	if _, err := clock.OrderTime(2025, 8, 25, "25:00:00"); err == nil {
		t.Fatalf("expected hour 25 to be rejected")
	}
}

func TestAdjacentBusinessDaysSplitAtLocalMidnight(t *testing.T) {
	clock := newTestClock(t)

	late, err := clock.OrderTime(2025, 8, 25, "23:59:00")
	if err != nil {
		t.Fatalf("order time: %v", err)
	}
	early, err := clock.OrderTime(2025, 8, 26, "00:01:00")
	if err != nil {
		t.Fatalf("order time: %v", err)
	}

	if early.Sub(late) != 2*time.Minute {
		t.Fatalf("expected two minutes apart, got %v", early.Sub(late))
	}
	if clock.SameBusinessDay(late, early) {
		t.Fatalf("expected 23:59 and next-day 00:01 to land on different business days")
	}
	if !clock.Midnight(early).After(late) {
		t.Fatalf("expected 00:01's midnight to be after 23:59")
	}
}

func TestSameBusinessDayUsesBusinessZoneNotUTC(t *testing.T) {
	clock := newTestClock(t)

	// 03:00 UTC is still the previous evening in Chicago, so both instants
	// share a business day even though their UTC dates differ.
	a := time.Date(2025, 8, 25, 22, 0, 0, 0, clock.Location())
	b := a.Add(1 * time.Hour).UTC()

	if a.UTC().Day() == b.Day() {
		t.Fatalf("test setup expects differing UTC dates")
	}
	if !clock.SameBusinessDay(a, b) {
		t.Fatalf("expected same business day across the UTC date line")
	}
}

func TestMidnightIsStartOfDay(t *testing.T) {
	clock := newTestClock(t)

	ts, err := clock.OrderTime(2025, 8, 25, "18:45:12")
	if err != nil {
		t.Fatalf("order time: %v", err)
	}
	midnight := clock.Midnight(ts)
	if midnight.Hour() != 0 || midnight.Minute() != 0 || midnight.Second() != 0 {
		t.Fatalf("expected midnight, got %v", midnight)
	}
	if !clock.SameBusinessDay(midnight, ts) {
		t.Fatalf("expected midnight to stay on the same business day")
	}
	if clock.DateString(midnight) != "2025-08-25" {
		t.Fatalf("unexpected date string %s", clock.DateString(midnight))
	}
}
