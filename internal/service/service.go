package service

import (
	"context"
	"log"
	"strings"
	"time"

	"teaflow/backend/internal/bizclock"
	"teaflow/backend/internal/cache"
	"teaflow/backend/internal/domain"
	"teaflow/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	cacheKeyXReport   = "reports:x"
	cacheKeyDashboard = "dashboard:stats"
)

// Service holds the reporting and order admission logic on top of the
// repository. The cache only ever fronts advisory reads (X report,
// dashboard); close decisions always go to the store.
type Service struct {
	repo     store.Repository
	clock    *bizclock.Clock
	cache    cache.ReportCache
	cacheTTL time.Duration

	// now is swapped in tests to pin the reporting instant.
	now func() time.Time
}

func New(repo store.Repository, clock *bizclock.Clock, reportCache cache.ReportCache, cacheTTL time.Duration) *Service {
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}

	return &Service{
		repo:     repo,
		clock:    clock,
		cache:    reportCache,
		cacheTTL: cacheTTL,
		now:      clock.Now,
	}
}

// SetNow replaces the service's time source. Tests use it to pin the
// reporting instant; passing nil restores the business clock.
func (s *Service) SetNow(now func() time.Time) {
	if now == nil {
		now = s.clock.Now
	}
	s.now = now
}

// XReport is the mid-shift snapshot over the open window. Read-only: calling
// it never moves the boundary, so it can be polled all day.
func (s *Service) XReport(ctx context.Context) (domain.XReport, error) {
	var cached domain.XReport
	if hit, err := s.cache.Get(ctx, cacheKeyXReport, &cached); err == nil && hit {
		return cached, nil
	}

	now := s.now()
	agg, err := s.openWindowAggregate(ctx, now)
	if err != nil {
		return domain.XReport{}, err
	}

	report := domain.XReport{
		Summary:   agg.Summary,
		ByPayment: agg.ByPayment,
		ByHour:    agg.ByHour,
	}
	if err := s.cache.Set(ctx, cacheKeyXReport, report, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: cache x report: %v", err)
	}
	return report, nil
}

// ZPreview shows what a close would capture right now, without committing
// anything. Never cached: its whole point is a live answer.
func (s *Service) ZPreview(ctx context.Context) (domain.ZPreview, error) {
	now := s.now()

	lastClose, err := s.repo.LastCloseAt(ctx)
	if err != nil {
		return domain.ZPreview{}, err
	}

	start, err := store.ResolveWindowStart(s.clock, now, lastClose)
	if err != nil {
		return domain.ZPreview{}, err
	}

	agg, err := s.repo.AggregateWindow(ctx, start, now)
	if err != nil {
		return domain.ZPreview{}, err
	}

	return domain.ZPreview{
		LastCloseAt: lastClose,
		Summary:     agg.Summary,
		ByPayment:   agg.ByPayment,
	}, nil
}

func (s *Service) CloseStatus(ctx context.Context) (domain.CloseStatus, error) {
	now := s.now()

	lastClose, err := s.repo.LastCloseAt(ctx)
	if err != nil {
		return domain.CloseStatus{}, err
	}
	if lastClose == nil {
		return domain.CloseStatus{}, nil
	}

	status := domain.CloseStatus{ClosedAt: lastClose}
	status.ClosedToday = s.clock.SameBusinessDay(*lastClose, now)
	return status, nil
}

// CloseDay commits the once-per-business-day Z close. The store does the
// atomic check-aggregate-advance; on success the advisory caches are dropped
// so the next X report starts from the fresh window.
func (s *Service) CloseDay(ctx context.Context) (domain.CloseResult, error) {
	now := s.now()

	result, err := s.repo.CloseDay(ctx, now)
	if err != nil {
		return domain.CloseResult{}, err
	}

	if err := s.cache.Delete(ctx, cacheKeyXReport); err != nil {
		log.Printf("[service] WARN: invalidate x report cache: %v", err)
	}
	if err := s.cache.Delete(ctx, cacheKeyDashboard); err != nil {
		log.Printf("[service] WARN: invalidate dashboard cache: %v", err)
	}

	if actor, ok := ActorFromContext(ctx); ok {
		log.Printf("[service] day closed at %s by %s (%d orders)", result.ClosedAt.Format(time.RFC3339), actor.Username, result.Summary.TotalOrders)
	}

	return *result, nil
}

func (s *Service) PlaceOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.PaymentMethod == "" || len(req.Items) == 0 {
		return domain.Order{}, store.ErrInvalidInput
	}
	if req.TotalPrice.IsNegative() || req.Tip.IsNegative() {
		return domain.Order{}, store.ErrInvalidInput
	}
	if _, err := s.clock.OrderTime(req.Year, req.Month, req.Day, req.Time); err != nil {
		return domain.Order{}, store.ErrInvalidInput
	}

	items := make([]domain.Item, 0, len(req.Items))
	for _, line := range req.Items {
		if line.ProductID < 1 || line.Price.IsNegative() {
			return domain.Order{}, store.ErrInvalidInput
		}
		items = append(items, domain.Item{
			ProductID:  line.ProductID,
			Size:       line.Size,
			SugarLevel: line.SugarLevel,
			IceLevel:   line.IceLevel,
			Toppings:   line.Toppings,
			Price:      line.Price,
		})
	}

	created, err := s.repo.CreateOrder(ctx, domain.Order{
		Year:          req.Year,
		Month:         req.Month,
		Day:           req.Day,
		TimeOfDay:     req.Time,
		TotalPrice:    req.TotalPrice,
		Tip:           req.Tip,
		PaymentMethod: req.PaymentMethod,
		SpecialNotes:  strings.TrimSpace(req.SpecialNotes),
		Items:         items,
	})
	if err != nil {
		return domain.Order{}, err
	}
	return *created, nil
}

func (s *Service) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx, limit)
}

func (s *Service) ListItems(ctx context.Context, limit int) ([]domain.Item, error) {
	return s.repo.ListItems(ctx, limit)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Price.IsNegative() {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:     req.Name,
		Category: req.Category,
		Price:    req.Price,
	})
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	var cached domain.DashboardStats
	if hit, err := s.cache.Get(ctx, cacheKeyDashboard, &cached); err == nil && hit {
		return cached, nil
	}

	stats, err := s.repo.DashboardStats(ctx, s.now())
	if err != nil {
		return domain.DashboardStats{}, err
	}

	if err := s.cache.Set(ctx, cacheKeyDashboard, *stats, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: cache dashboard stats: %v", err)
	}
	return *stats, nil
}

func (s *Service) openWindowAggregate(ctx context.Context, now time.Time) (*domain.WindowAggregate, error) {
	lastClose, err := s.repo.LastCloseAt(ctx)
	if err != nil {
		return nil, err
	}

	start, err := store.ResolveWindowStart(s.clock, now, lastClose)
	if err != nil {
		return nil, err
	}

	return s.repo.AggregateWindow(ctx, start, now)
}
