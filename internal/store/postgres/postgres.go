package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"teaflow/backend/internal/bizclock"
	"teaflow/backend/internal/domain"
	"teaflow/backend/internal/store"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// tsExpr reconstructs the authoritative timestamptz of an order from its
// stored wall-clock components, interpreted in the business timezone. The
// timezone name is always bound as a query parameter next to it.
const tsExpr = `(make_date(year, month, day) + time_of_day) AT TIME ZONE `

type Store struct {
	db     *sql.DB
	clock  *bizclock.Clock
	tzName string
}

func New(ctx context.Context, databaseURL string, clock *bizclock.Clock) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, clock: clock, tzName: clock.Location().String()}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	order.PaymentMethod = strings.TrimSpace(order.PaymentMethod)
	if order.PaymentMethod == "" {
		return nil, store.ErrInvalidInput
	}
	if len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if order.TotalPrice.IsNegative() || order.Tip.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if _, err := s.clock.OrderTime(order.Year, order.Month, order.Day, order.TimeOfDay); err != nil {
		return nil, store.ErrInvalidInput
	}
	for _, item := range order.Items {
		if item.ProductID < 1 || item.Price.IsNegative() {
			return nil, store.ErrInvalidInput
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (year, month, day, time_of_day, total_price, tip, payment_method, special_notes)
		VALUES ($1,$2,$3,$4::time,$5,$6,$7,$8)
		RETURNING order_id
	`, order.Year, order.Month, order.Day, order.TimeOfDay, order.TotalPrice, order.Tip, order.PaymentMethod, order.SpecialNotes).Scan(&order.ID)
	if err != nil {
		return nil, err
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO items (order_id, product_id, size, sugar_level, ice_level, toppings, price)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING item_id
		`, item.OrderID, item.ProductID, item.Size, item.SugarLevel, item.IceLevel, item.Toppings, item.Price).Scan(&item.ID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	saved := order
	return &saved, nil
}

func (s *Store) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, year, month, day, time_of_day::text, total_price, tip, payment_method, special_notes
		FROM orders
		ORDER BY order_id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.Year, &o.Month, &o.Day, &o.TimeOfDay, &o.TotalPrice, &o.Tip, &o.PaymentMethod, &o.SpecialNotes); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) ListItems(ctx context.Context, limit int) ([]domain.Item, error) {
	if limit < 1 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, order_id, product_id, size, sugar_level, ice_level, toppings, price
		FROM items
		ORDER BY item_id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, limit)
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Size, &item.SugarLevel, &item.IceLevel, &item.Toppings, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) LastCloseAt(ctx context.Context) (*time.Time, error) {
	var at sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT last_close_at FROM period_boundary WHERE id
	`).Scan(&at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !at.Valid {
		return nil, nil
	}
	utc := at.Time.UTC()
	return &utc, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx so the window aggregation
// can run standalone for X reports and inside the close transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) AggregateWindow(ctx context.Context, from time.Time, to time.Time) (*domain.WindowAggregate, error) {
	return s.aggregateWindow(ctx, s.db, from, to)
}

func (s *Store) aggregateWindow(ctx context.Context, q querier, from time.Time, to time.Time) (*domain.WindowAggregate, error) {
	agg := &domain.WindowAggregate{
		Summary: domain.ReportSummary{
			TotalRevenue: decimal.Zero,
			TotalTips:    decimal.Zero,
		},
		ByPayment: make([]domain.PaymentBreakdown, 0, 4),
		ByHour:    make([]domain.HourBreakdown, 0, 16),
	}

	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint, COALESCE(SUM(total_price), 0), COALESCE(SUM(tip), 0)
		FROM orders
		WHERE `+tsExpr+`$1 >= $2
			AND `+tsExpr+`$1 < $3
	`, s.tzName, from, to).Scan(&agg.Summary.TotalOrders, &agg.Summary.TotalRevenue, &agg.Summary.TotalTips)
	if err != nil {
		return nil, err
	}

	paymentRows, err := q.QueryContext(ctx, `
		SELECT payment_method, COUNT(*)::bigint, SUM(total_price)
		FROM orders
		WHERE `+tsExpr+`$1 >= $2
			AND `+tsExpr+`$1 < $3
		GROUP BY payment_method
		ORDER BY SUM(total_price) DESC, payment_method
	`, s.tzName, from, to)
	if err != nil {
		return nil, err
	}
	for paymentRows.Next() {
		var row domain.PaymentBreakdown
		if err := paymentRows.Scan(&row.PaymentMethod, &row.Orders, &row.Revenue); err != nil {
			_ = paymentRows.Close()
			return nil, err
		}
		agg.ByPayment = append(agg.ByPayment, row)
	}
	if err := paymentRows.Err(); err != nil {
		_ = paymentRows.Close()
		return nil, err
	}
	_ = paymentRows.Close()

	hourRows, err := q.QueryContext(ctx, `
		SELECT to_char(time_of_day, 'HH24') || ':00' AS hour,
			COUNT(*)::bigint, SUM(total_price), SUM(tip)
		FROM orders
		WHERE `+tsExpr+`$1 >= $2
			AND `+tsExpr+`$1 < $3
		GROUP BY 1
		ORDER BY 1
	`, s.tzName, from, to)
	if err != nil {
		return nil, err
	}
	for hourRows.Next() {
		var row domain.HourBreakdown
		if err := hourRows.Scan(&row.Hour, &row.Orders, &row.Revenue, &row.Tips); err != nil {
			_ = hourRows.Close()
			return nil, err
		}
		agg.ByHour = append(agg.ByHour, row)
	}
	if err := hourRows.Err(); err != nil {
		_ = hourRows.Close()
		return nil, err
	}
	_ = hourRows.Close()

	return agg, nil
}

// CloseDay performs the once-per-business-day close. The whole
// check-aggregate-advance sequence runs in one transaction holding a row
// lock on the boundary singleton. Read committed on purpose: a loser that
// blocked on the row lock re-reads the winner's committed boundary after
// the wait and fails the same-day check with ErrAlreadyClosed, instead of
// aborting on a serialization failure.
func (s *Store) CloseDay(ctx context.Context, now time.Time) (*domain.CloseResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var lockedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT last_close_at FROM period_boundary WHERE id FOR UPDATE
	`).Scan(&lockedAt)
	if err != nil {
		return nil, err
	}

	var previous *time.Time
	if lockedAt.Valid {
		at := lockedAt.Time.UTC()
		previous = &at

		if at.After(now) {
			return nil, store.ErrClockSkew
		}
		if s.clock.SameBusinessDay(at, now) {
			return nil, store.ErrAlreadyClosed
		}
	}

	start, err := store.ResolveWindowStart(s.clock, now, previous)
	if err != nil {
		return nil, err
	}

	agg, err := s.aggregateWindow(ctx, tx, start, now)
	if err != nil {
		return nil, err
	}

	// Guarded advance. The row lock already serializes writers; the WHERE
	// clause additionally keeps the boundary monotonic no matter what.
	res, err := tx.ExecContext(ctx, `
		UPDATE period_boundary
		SET last_close_at = $1
		WHERE id AND (last_close_at IS NULL OR last_close_at < $1)
	`, now)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrAlreadyClosed
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.CloseResult{
		ClosedAt:       now,
		SinceLastClose: previous,
		Summary:        agg.Summary,
		ByPayment:      agg.ByPayment,
	}, nil
}

func (s *Store) DashboardStats(ctx context.Context, now time.Time) (*domain.DashboardStats, error) {
	stats := &domain.DashboardStats{
		Today: domain.TodaySummary{
			Revenue:  decimal.Zero,
			AvgOrder: decimal.Zero,
		},
		RevenueOverTime: make([]domain.DailyRevenuePoint, 0, 30),
		HourlyOrders:    make([]domain.HourlyOrderCount, 0, 24),
		TipBehavior:     make([]domain.TipBehavior, 0, 4),
	}

	local := now.In(s.clock.Location())
	year, month, day := local.Date()

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint, COALESCE(SUM(total_price + tip), 0)
		FROM orders
		WHERE year = $1 AND month = $2 AND day = $3
	`, year, int(month), day).Scan(&stats.Today.Orders, &stats.Today.Revenue)
	if err != nil {
		return nil, err
	}
	if stats.Today.Orders > 0 {
		stats.Today.AvgOrder = stats.Today.Revenue.Div(decimal.NewFromInt(stats.Today.Orders)).Round(2)
	}

	today := s.clock.DateString(now)

	revenueRows, err := s.db.QueryContext(ctx, `
		SELECT to_char(make_date(year, month, day), 'YYYY-MM-DD'), SUM(total_price + tip)
		FROM orders
		WHERE make_date(year, month, day) >= $1::date - 30
		GROUP BY 1
		ORDER BY 1
	`, today)
	if err != nil {
		return nil, err
	}
	for revenueRows.Next() {
		var point domain.DailyRevenuePoint
		if err := revenueRows.Scan(&point.Date, &point.Revenue); err != nil {
			_ = revenueRows.Close()
			return nil, err
		}
		stats.RevenueOverTime = append(stats.RevenueOverTime, point)
	}
	if err := revenueRows.Err(); err != nil {
		_ = revenueRows.Close()
		return nil, err
	}
	_ = revenueRows.Close()

	hourRows, err := s.db.QueryContext(ctx, `
		SELECT EXTRACT(HOUR FROM time_of_day)::int, COUNT(*)::bigint
		FROM orders
		WHERE make_date(year, month, day) >= $1::date - 7
		GROUP BY 1
		ORDER BY 1
	`, today)
	if err != nil {
		return nil, err
	}
	for hourRows.Next() {
		var row domain.HourlyOrderCount
		if err := hourRows.Scan(&row.Hour, &row.Count); err != nil {
			_ = hourRows.Close()
			return nil, err
		}
		stats.HourlyOrders = append(stats.HourlyOrders, row)
	}
	if err := hourRows.Err(); err != nil {
		_ = hourRows.Close()
		return nil, err
	}
	_ = hourRows.Close()

	tipRows, err := s.db.QueryContext(ctx, `
		SELECT payment_method,
			COUNT(*)::bigint,
			ROUND(AVG(tip / total_price * 100), 2),
			ROUND(AVG(total_price + tip), 2)
		FROM orders
		WHERE total_price > 0
		GROUP BY payment_method
		ORDER BY 3 DESC, payment_method
	`)
	if err != nil {
		return nil, err
	}
	for tipRows.Next() {
		var row domain.TipBehavior
		if err := tipRows.Scan(&row.PaymentMethod, &row.Orders, &row.AvgTipPercent, &row.AvgOrderValue); err != nil {
			_ = tipRows.Close()
			return nil, err
		}
		stats.TipBehavior = append(stats.TipBehavior, row)
	}
	if err := tipRows.Err(); err != nil {
		_ = tipRows.Close()
		return nil, err
	}
	_ = tipRows.Close()

	return stats, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, category, price
		FROM products
		ORDER BY category, product_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Price); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" || product.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (product_name, category, price)
		VALUES ($1,$2,$3)
		RETURNING product_id
	`, product.Name, product.Category, product.Price).Scan(&product.ID)
	if err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
