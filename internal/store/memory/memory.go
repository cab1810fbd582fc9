package memory

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"teaflow/backend/internal/bizclock"
	"teaflow/backend/internal/domain"
	"teaflow/backend/internal/store"
)

// Store is the in-memory repository used in dev mode and by the test suite.
// The mutex is the transactional boundary: CloseDay holds the write lock
// across its check-then-advance so concurrent closes serialize exactly like
// the row lock in the postgres store.
type Store struct {
	mu              sync.RWMutex
	clock           *bizclock.Clock
	orders          []storedOrder
	nextOrderID     int64
	nextItemID      int64
	lastCloseAt     *time.Time
	products        map[int64]domain.Product
	nextProductID   int64
	usersByUsername map[string]domain.UserAccount
}

type storedOrder struct {
	order domain.Order
	ts    time.Time
}

func New(clock *bizclock.Clock) *Store {
	return &Store{
		clock:           clock,
		orders:          make([]storedOrder, 0, 256),
		nextOrderID:     1,
		nextItemID:      1,
		products:        make(map[int64]domain.Product),
		nextProductID:   1,
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store pre-loaded with a small drink catalog and dev
// user accounts, mirroring what the postgres migrations set up.
func NewSeeded(clock *bizclock.Clock) *Store {
	s := New(clock)

	for _, p := range []domain.Product{
		{Name: "Classic Milk Tea", Category: "Milk Tea", Price: decimal.RequireFromString("5.25")},
		{Name: "Taro Milk Tea", Category: "Milk Tea", Price: decimal.RequireFromString("5.75")},
		{Name: "Thai Tea", Category: "Milk Tea", Price: decimal.RequireFromString("5.50")},
		{Name: "Mango Green Tea", Category: "Fruit Tea", Price: decimal.RequireFromString("5.95")},
		{Name: "Strawberry Lemonade", Category: "Fruit Tea", Price: decimal.RequireFromString("5.45")},
		{Name: "Matcha Latte", Category: "Specialty", Price: decimal.RequireFromString("6.25")},
		{Name: "Brown Sugar Boba", Category: "Specialty", Price: decimal.RequireFromString("6.50")},
	} {
		p.ID = s.nextProductID
		s.nextProductID++
		s.products[p.ID] = p
	}

	if err := store.SeedStaffAccounts(context.Background(), s); err != nil {
		log.Fatalf("[memory-store] failed to seed staff accounts: %v", err)
	}
	return s
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if strings.TrimSpace(order.PaymentMethod) == "" {
		return nil, store.ErrInvalidInput
	}
	if len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if order.TotalPrice.IsNegative() || order.Tip.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	ts, err := s.clock.OrderTime(order.Year, order.Month, order.Day, order.TimeOfDay)
	if err != nil {
		return nil, store.ErrInvalidInput
	}
	for _, item := range order.Items {
		if item.ProductID < 1 || item.Price.IsNegative() {
			return nil, store.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order.ID = s.nextOrderID
	s.nextOrderID++
	for i := range order.Items {
		order.Items[i].ID = s.nextItemID
		s.nextItemID++
		order.Items[i].OrderID = order.ID
	}

	s.orders = append(s.orders, storedOrder{order: order, ts: ts})
	saved := order
	return &saved, nil
}

func (s *Store) ListOrders(_ context.Context, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 1000
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, limit)
	for i := len(s.orders) - 1; i >= 0 && len(orders) < limit; i-- {
		orders = append(orders, s.orders[i].order)
	}
	return orders, nil
}

func (s *Store) ListItems(_ context.Context, limit int) ([]domain.Item, error) {
	if limit < 1 {
		limit = 1000
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, limit)
	for i := len(s.orders) - 1; i >= 0 && len(items) < limit; i-- {
		lines := s.orders[i].order.Items
		for j := len(lines) - 1; j >= 0 && len(items) < limit; j-- {
			items = append(items, lines[j])
		}
	}
	return items, nil
}

func (s *Store) LastCloseAt(_ context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastCloseAt == nil {
		return nil, nil
	}
	at := *s.lastCloseAt
	return &at, nil
}

func (s *Store) AggregateWindow(_ context.Context, from time.Time, to time.Time) (*domain.WindowAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.aggregateLocked(from, to), nil
}

// aggregateLocked computes the window breakdown over [from, to).
// Callers must hold at least the read lock.
func (s *Store) aggregateLocked(from time.Time, to time.Time) *domain.WindowAggregate {
	agg := &domain.WindowAggregate{
		Summary: domain.ReportSummary{
			TotalRevenue: decimal.Zero,
			TotalTips:    decimal.Zero,
		},
		ByPayment: make([]domain.PaymentBreakdown, 0, 4),
		ByHour:    make([]domain.HourBreakdown, 0, 16),
	}

	byPayment := make(map[string]*domain.PaymentBreakdown)
	byHour := make(map[string]*domain.HourBreakdown)

	for _, stored := range s.orders {
		if stored.ts.Before(from) || !stored.ts.Before(to) {
			continue
		}
		order := stored.order

		agg.Summary.TotalOrders++
		agg.Summary.TotalRevenue = agg.Summary.TotalRevenue.Add(order.TotalPrice)
		agg.Summary.TotalTips = agg.Summary.TotalTips.Add(order.Tip)

		payment, ok := byPayment[order.PaymentMethod]
		if !ok {
			payment = &domain.PaymentBreakdown{PaymentMethod: order.PaymentMethod, Revenue: decimal.Zero}
			byPayment[order.PaymentMethod] = payment
		}
		payment.Orders++
		payment.Revenue = payment.Revenue.Add(order.TotalPrice)

		hourKey := order.TimeOfDay[:2] + ":00"
		hour, ok := byHour[hourKey]
		if !ok {
			hour = &domain.HourBreakdown{Hour: hourKey, Revenue: decimal.Zero, Tips: decimal.Zero}
			byHour[hourKey] = hour
		}
		hour.Orders++
		hour.Revenue = hour.Revenue.Add(order.TotalPrice)
		hour.Tips = hour.Tips.Add(order.Tip)
	}

	for _, payment := range byPayment {
		agg.ByPayment = append(agg.ByPayment, *payment)
	}
	sort.Slice(agg.ByPayment, func(i, j int) bool {
		cmp := agg.ByPayment[i].Revenue.Cmp(agg.ByPayment[j].Revenue)
		if cmp == 0 {
			return agg.ByPayment[i].PaymentMethod < agg.ByPayment[j].PaymentMethod
		}
		return cmp > 0
	})

	for _, hour := range byHour {
		agg.ByHour = append(agg.ByHour, *hour)
	}
	sort.Slice(agg.ByHour, func(i, j int) bool {
		return agg.ByHour[i].Hour < agg.ByHour[j].Hour
	})

	return agg
}

func (s *Store) CloseDay(_ context.Context, now time.Time) (*domain.CloseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastCloseAt != nil {
		if s.lastCloseAt.After(now) {
			return nil, store.ErrClockSkew
		}
		if s.clock.SameBusinessDay(*s.lastCloseAt, now) {
			return nil, store.ErrAlreadyClosed
		}
	}

	start, err := store.ResolveWindowStart(s.clock, now, s.lastCloseAt)
	if err != nil {
		return nil, err
	}

	agg := s.aggregateLocked(start, now)

	var previous *time.Time
	if s.lastCloseAt != nil {
		prev := *s.lastCloseAt
		previous = &prev
	}

	closedAt := now
	s.lastCloseAt = &closedAt

	return &domain.CloseResult{
		ClosedAt:       closedAt,
		SinceLastClose: previous,
		Summary:        agg.Summary,
		ByPayment:      agg.ByPayment,
	}, nil
}

func (s *Store) DashboardStats(_ context.Context, now time.Time) (*domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.DashboardStats{
		Today: domain.TodaySummary{
			Revenue:  decimal.Zero,
			AvgOrder: decimal.Zero,
		},
		RevenueOverTime: make([]domain.DailyRevenuePoint, 0, 30),
		HourlyOrders:    make([]domain.HourlyOrderCount, 0, 24),
		TipBehavior:     make([]domain.TipBehavior, 0, 4),
	}

	revenueCutoff := s.clock.Midnight(now).AddDate(0, 0, -30)
	hourlyCutoff := s.clock.Midnight(now).AddDate(0, 0, -7)

	revenueByDate := make(map[string]decimal.Decimal)
	countByHour := make(map[int]int64)

	type tipAccumulator struct {
		orders     int64
		tipPctSum  decimal.Decimal
		grandTotal decimal.Decimal
	}
	tipsByPayment := make(map[string]*tipAccumulator)

	hundred := decimal.NewFromInt(100)
	for _, stored := range s.orders {
		order := stored.order
		grand := order.TotalPrice.Add(order.Tip)

		if s.clock.SameBusinessDay(stored.ts, now) {
			stats.Today.Orders++
			stats.Today.Revenue = stats.Today.Revenue.Add(grand)
		}
		if !stored.ts.Before(revenueCutoff) {
			date := s.clock.DateString(stored.ts)
			revenueByDate[date] = revenueByDate[date].Add(grand)
		}
		if !stored.ts.Before(hourlyCutoff) {
			countByHour[s.clock.HourOfDay(stored.ts)]++
		}
		if order.TotalPrice.IsPositive() {
			acc, ok := tipsByPayment[order.PaymentMethod]
			if !ok {
				acc = &tipAccumulator{tipPctSum: decimal.Zero, grandTotal: decimal.Zero}
				tipsByPayment[order.PaymentMethod] = acc
			}
			acc.orders++
			acc.tipPctSum = acc.tipPctSum.Add(hundred.Mul(order.Tip).Div(order.TotalPrice))
			acc.grandTotal = acc.grandTotal.Add(grand)
		}
	}

	if stats.Today.Orders > 0 {
		stats.Today.AvgOrder = stats.Today.Revenue.Div(decimal.NewFromInt(stats.Today.Orders)).Round(2)
	}

	for date, revenue := range revenueByDate {
		stats.RevenueOverTime = append(stats.RevenueOverTime, domain.DailyRevenuePoint{Date: date, Revenue: revenue})
	}
	sort.Slice(stats.RevenueOverTime, func(i, j int) bool {
		return stats.RevenueOverTime[i].Date < stats.RevenueOverTime[j].Date
	})

	for hour, count := range countByHour {
		stats.HourlyOrders = append(stats.HourlyOrders, domain.HourlyOrderCount{Hour: hour, Count: count})
	}
	sort.Slice(stats.HourlyOrders, func(i, j int) bool {
		return stats.HourlyOrders[i].Hour < stats.HourlyOrders[j].Hour
	})

	for method, acc := range tipsByPayment {
		orders := decimal.NewFromInt(acc.orders)
		stats.TipBehavior = append(stats.TipBehavior, domain.TipBehavior{
			PaymentMethod: method,
			Orders:        acc.orders,
			AvgTipPercent: acc.tipPctSum.Div(orders).Round(2),
			AvgOrderValue: acc.grandTotal.Div(orders).Round(2),
		})
	}
	sort.Slice(stats.TipBehavior, func(i, j int) bool {
		cmp := stats.TipBehavior[i].AvgTipPercent.Cmp(stats.TipBehavior[j].AvgTipPercent)
		if cmp == 0 {
			return stats.TipBehavior[i].PaymentMethod < stats.TipBehavior[j].PaymentMethod
		}
		return cmp > 0
	})

	return stats, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Category == products[j].Category {
			return products[i].Name < products[j].Name
		}
		return products[i].Category < products[j].Category
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product.ID = s.nextProductID
	s.nextProductID++
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
