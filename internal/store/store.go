package store

import (
	"context"
	"errors"
	"time"

	"teaflow/backend/internal/bizclock"
	"teaflow/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks client-caused validation failures: missing order
	// fields, empty item lists, malformed values. No state was touched.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyClosed is the terminal-for-the-day close conflict. Retrying
	// without waiting for the next business day will keep returning it.
	ErrAlreadyClosed = errors.New("day already closed")

	// ErrClockSkew is an integrity fault: the persisted period boundary sits
	// ahead of the current clock, so no sane window can be computed.
	ErrClockSkew = errors.New("period boundary is in the future")
)

type Repository interface {
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	ListOrders(ctx context.Context, limit int) ([]domain.Order, error)
	ListItems(ctx context.Context, limit int) ([]domain.Item, error)
	LastCloseAt(ctx context.Context) (*time.Time, error)
	AggregateWindow(ctx context.Context, from time.Time, to time.Time) (*domain.WindowAggregate, error)
	CloseDay(ctx context.Context, now time.Time) (*domain.CloseResult, error)
	DashboardStats(ctx context.Context, now time.Time) (*domain.DashboardStats, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// ResolveWindowStart derives the start of the currently open reporting
// window: the last close if it happened earlier today (business-local),
// otherwise today's business-local midnight. The result never exceeds now;
// a boundary ahead of now is refused as ErrClockSkew rather than clamped.
//
// Store implementations call this inside their close transaction so the
// decision and the boundary advance observe the same snapshot.
func ResolveWindowStart(clock *bizclock.Clock, now time.Time, lastClose *time.Time) (time.Time, error) {
	if lastClose != nil {
		if lastClose.After(now) {
			return time.Time{}, ErrClockSkew
		}
		if clock.SameBusinessDay(*lastClose, now) {
			return lastClose.In(clock.Location()), nil
		}
	}
	return clock.Midnight(now), nil
}
