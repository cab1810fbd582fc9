package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"teaflow/backend/internal/bizclock"
	"teaflow/backend/internal/domain"
	"teaflow/backend/internal/service"
	"teaflow/backend/internal/store/memory"
)

const testPassword = "secret123"

func newTestAPI(t *testing.T) (*API, *bizclock.Clock) {
	t.Helper()

	clock, err := bizclock.New("America/Chicago")
	if err != nil {
		t.Fatalf("load clock: %v", err)
	}
	repo := memory.New(clock)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	for _, account := range []struct {
		username string
		role     string
	}{
		{"manager", domain.RoleManager},
		{"barista", domain.RoleBarista},
	} {
		err := repo.CreateUser(context.Background(), domain.UserAccount{
			Username: account.username,
			Password: string(hash),
			Role:     account.role,
			Active:   true,
		})
		if err != nil {
			t.Fatalf("seed user %s: %v", account.username, err)
		}
	}

	svc := service.New(repo, clock, nil, 5*time.Second)
	// Pin the reporting instant so order timestamps never straddle a
	// business-day boundary mid-test.
	svc.SetNow(func() time.Time {
		return time.Date(2026, time.March, 14, 18, 0, 0, 0, clock.Location())
	})
	auth := NewAuthManager("test-secret-that-is-long-enough!", time.Hour, repo)
	return New(svc, auth, "http://localhost:5173"), clock
}

func doRequest(t *testing.T, handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, handler http.Handler, username string) string {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, testPassword)
	rec := doRequest(t, handler, http.MethodPost, "/api/auth/login", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

// orderBody rings up an order two hours before the pinned reporting instant,
// safely inside the same business day.
func orderBody(total, tip, payment string) string {
	return fmt.Sprintf(`{
		"year": 2026, "month": 3, "day": 14, "time": "16:00:00",
		"total_price": %s, "tip": %s, "payment_method": %q,
		"items": [{"product_id": 1, "size": "Large", "price": %s}]
	}`, total, tip, payment, total)
}

func TestHealthIsOpen(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doRequest(t, api.Handler(), http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestReportsRequireAuth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	for _, path := range []string{
		"/api/reports/x",
		"/api/reports/z/preview",
		"/api/reports/z/status",
		"/api/orders",
		"/api/products",
		"/api/dashboard/stats",
	} {
		rec := doRequest(t, handler, http.MethodGet, path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 without token, got %d", path, rec.Code)
		}
	}

	rec := doRequest(t, handler, http.MethodGet, "/api/reports/x", "not-a-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token must be rejected, got %d", rec.Code)
	}
}

func TestCloseRequiresManagerRole(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	baristaToken := login(t, handler, "barista")
	rec := doRequest(t, handler, http.MethodPost, "/api/reports/z/close", baristaToken, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("barista close must be forbidden, got %d", rec.Code)
	}

	// Reads stay open to baristas.
	rec = doRequest(t, handler, http.MethodGet, "/api/reports/x", baristaToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("barista x report: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOrderAndCloseFlow(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "manager")

	rec := doRequest(t, handler, http.MethodPost, "/api/orders", token, orderBody("12.50", "2.00", domain.PaymentCash))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if created.ID == 0 || len(created.Items) != 1 {
		t.Fatalf("created order incomplete: %+v", created)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/reports/x", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("x report: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var x domain.XReport
	if err := json.Unmarshal(rec.Body.Bytes(), &x); err != nil {
		t.Fatalf("decode x report: %v", err)
	}
	if x.Summary.TotalOrders != 1 {
		t.Fatalf("expected 1 order in open window, got %d", x.Summary.TotalOrders)
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/reports/z/close", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/reports/z/close", token, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second close: expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "already run today") {
		t.Fatalf("conflict body must carry the register message, got %s", rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/reports/z/status", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	var status domain.CloseStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.ClosedToday {
		t.Fatalf("status must report closed today after close")
	}
}

func TestCreateOrderRejectsMalformedBody(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "barista")

	rec := doRequest(t, handler, http.MethodPost, "/api/orders", token, `{"unexpected": true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown fields must 400, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/orders", token, `{"year": 2026, "month": 2, "day": 30, "time": "08:00:00", "total_price": 5, "payment_method": "Cash", "items": [{"product_id": 1, "price": 5}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("impossible date must 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProductsEndpoints(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	managerToken := login(t, handler, "manager")
	baristaToken := login(t, handler, "barista")

	rec := doRequest(t, handler, http.MethodPost, "/api/products", baristaToken, `{"product_name": "Oolong", "category": "Milk Tea", "price": 5.65}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("barista product create must be forbidden, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/products", managerToken, `{"product_name": "Oolong", "category": "Milk Tea", "price": 5.65}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("manager product create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/products", baristaToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list products: expected 200, got %d", rec.Code)
	}
	var products []domain.Product
	if err := json.Unmarshal(rec.Body.Bytes(), &products); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
}

func TestParsePositiveLimit(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 1000},
		{"junk", 1000},
		{"-5", 1000},
		{"0", 1000},
		{"50", 50},
		{"1000", 1000},
		{"5000", 1000},
	}
	for _, tc := range cases {
		if got := parsePositiveLimit(tc.raw, 1000, 1000); got != tc.want {
			t.Errorf("parsePositiveLimit(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestLoginRateLimit(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	body := `{"username":"manager","password":"wrong"}`
	var last int
	for i := 0; i < 6; i++ {
		rec := doRequest(t, handler, http.MethodPost, "/api/auth/login", "", body)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", last)
	}
}
