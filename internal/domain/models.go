package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Canonical payment methods. The column is an open string: whatever the
// register sends is stored as-is after trimming, these are just the values
// the registers actually send today.
const (
	PaymentCash       = "Cash"
	PaymentMobilePay  = "Mobile Pay"
	PaymentCreditCard = "Credit Card"
)

const (
	RoleManager = "manager"
	RoleBarista = "barista"
)

// Order is immutable once admitted. Date and time of day are the
// business-local wall clock captured at the register; the authoritative
// timestamp is derived from them in the business timezone.
type Order struct {
	ID            int64           `json:"order_id"`
	Year          int             `json:"year"`
	Month         int             `json:"month"`
	Day           int             `json:"day"`
	TimeOfDay     string          `json:"time"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Tip           decimal.Decimal `json:"tip"`
	PaymentMethod string          `json:"payment_method"`
	SpecialNotes  string          `json:"special_notes"`
	Items         []Item          `json:"items,omitempty"`
}

// Item is an immutable line entry. Price is the unit price actually charged
// at sale time, size and topping adjustments included; it is never recomputed
// from the product catalog afterwards.
type Item struct {
	ID         int64           `json:"item_id"`
	OrderID    int64           `json:"order_id"`
	ProductID  int64           `json:"product_id"`
	Size       string          `json:"size"`
	SugarLevel string          `json:"sugar_level"`
	IceLevel   string          `json:"ice_level"`
	Toppings   string          `json:"toppings"`
	Price      decimal.Decimal `json:"price"`
}

type OrderItemRequest struct {
	ProductID  int64           `json:"product_id"`
	Size       string          `json:"size"`
	SugarLevel string          `json:"sugar_level"`
	IceLevel   string          `json:"ice_level"`
	Toppings   string          `json:"toppings"`
	Price      decimal.Decimal `json:"price"`
}

type OrderCreateRequest struct {
	Time          string             `json:"time"`
	Day           int                `json:"day"`
	Month         int                `json:"month"`
	Year          int                `json:"year"`
	TotalPrice    decimal.Decimal    `json:"total_price"`
	Tip           decimal.Decimal    `json:"tip"`
	SpecialNotes  string             `json:"special_notes"`
	PaymentMethod string             `json:"payment_method"`
	Items         []OrderItemRequest `json:"items"`
}

type ReportSummary struct {
	TotalOrders  int64           `json:"total_orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalTips    decimal.Decimal `json:"total_tips"`
}

type PaymentBreakdown struct {
	PaymentMethod string          `json:"payment_method"`
	Orders        int64           `json:"orders"`
	Revenue       decimal.Decimal `json:"revenue"`
}

type HourBreakdown struct {
	Hour    string          `json:"hour"`
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
	Tips    decimal.Decimal `json:"tips"`
}

// WindowAggregate is the full breakdown over a half-open window [from, to).
// Groups with no orders are omitted, never zero-filled.
type WindowAggregate struct {
	Summary   ReportSummary
	ByPayment []PaymentBreakdown
	ByHour    []HourBreakdown
}

type XReport struct {
	Summary   ReportSummary      `json:"summary"`
	ByPayment []PaymentBreakdown `json:"by_payment"`
	ByHour    []HourBreakdown    `json:"by_hour"`
}

type ZPreview struct {
	LastCloseAt *time.Time         `json:"last_close_at"`
	Summary     ReportSummary      `json:"summary"`
	ByPayment   []PaymentBreakdown `json:"by_payment"`
}

type CloseStatus struct {
	ClosedToday bool       `json:"closed_today"`
	ClosedAt    *time.Time `json:"closed_at"`
}

type CloseResult struct {
	ClosedAt       time.Time          `json:"closed_at"`
	SinceLastClose *time.Time         `json:"since_last_close"`
	Summary        ReportSummary      `json:"summary"`
	ByPayment      []PaymentBreakdown `json:"by_payment"`
}

type Product struct {
	ID       int64           `json:"product_id"`
	Name     string          `json:"product_name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
}

type ProductCreateRequest struct {
	Name     string          `json:"product_name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
}

type TodaySummary struct {
	Orders   int64           `json:"orders"`
	Revenue  decimal.Decimal `json:"revenue"`
	AvgOrder decimal.Decimal `json:"avg_order"`
}

type DailyRevenuePoint struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
}

type HourlyOrderCount struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

type TipBehavior struct {
	PaymentMethod string          `json:"payment_method"`
	Orders        int64           `json:"orders"`
	AvgTipPercent decimal.Decimal `json:"avg_tip_pct"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
}

type DashboardStats struct {
	Today           TodaySummary        `json:"today"`
	RevenueOverTime []DailyRevenuePoint `json:"revenue_over_time"`
	HourlyOrders    []HourlyOrderCount  `json:"hourly_orders"`
	TipBehavior     []TipBehavior       `json:"tip_behavior"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
