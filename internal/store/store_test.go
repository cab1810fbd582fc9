package store

import (
	"errors"
	"testing"
	"time"

	"teaflow/backend/internal/bizclock"
)

func chicago(t *testing.T) *bizclock.Clock {
	t.Helper()
	clock, err := bizclock.New("America/Chicago")
	if err != nil {
		t.Fatalf("load clock: %v", err)
	}
	return clock
}

func TestResolveWindowStartNoPriorClose(t *testing.T) {
	clock := chicago(t)
	now := time.Date(2025, 8, 25, 18, 0, 0, 0, clock.Location())

	start, err := ResolveWindowStart(clock, now, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !start.Equal(clock.Midnight(now)) {
		t.Fatalf("expected midnight start, got %v", start)
	}
	if start.After(now) {
		t.Fatalf("start must not exceed now")
	}
}

func TestResolveWindowStartAfterSameDayClose(t *testing.T) {
	clock := chicago(t)
	now := time.Date(2025, 8, 25, 21, 0, 0, 0, clock.Location())
	lastClose := time.Date(2025, 8, 25, 18, 0, 0, 0, clock.Location())

	start, err := ResolveWindowStart(clock, now, &lastClose)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !start.Equal(lastClose) {
		t.Fatalf("expected window to start at the last close, got %v", start)
	}
}

func TestResolveWindowStartIgnoresYesterdaysClose(t *testing.T) {
	clock := chicago(t)
	now := time.Date(2025, 8, 26, 9, 0, 0, 0, clock.Location())
	lastClose := time.Date(2025, 8, 25, 18, 0, 0, 0, clock.Location())

	start, err := ResolveWindowStart(clock, now, &lastClose)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !start.Equal(clock.Midnight(now)) {
		t.Fatalf("expected midnight start after an earlier-day close, got %v", start)
	}
}

func TestResolveWindowStartRefusesFutureBoundary(t *testing.T) {
	clock := chicago(t)
	now := time.Date(2025, 8, 25, 18, 0, 0, 0, clock.Location())
	lastClose := now.Add(2 * time.Hour)

	_, err := ResolveWindowStart(clock, now, &lastClose)
	if !errors.Is(err, ErrClockSkew) {
		t.Fatalf("expected ErrClockSkew, got %v", err)
	}
}
