package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/susu3304/tabiwari/internal/config"
	"github.com/susu3304/tabiwari/internal/ledger"
	"github.com/susu3304/tabiwari/internal/telegram"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeLedger struct {
	trips map[int64]ledger.Trip
	txns  map[int64][]ledger.Transaction
}

func (f *fakeLedger) AllTrips(ctx context.Context) ([]ledger.Trip, error) {
	out := make([]ledger.Trip, 0, len(f.trips))
	for _, t := range f.trips {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeLedger) TripByID(ctx context.Context, id int64) (*ledger.Trip, error) {
	t, ok := f.trips[id]
	if !ok {
		return nil, ledger.ErrTripNotFound
	}
	return &t, nil
}

func (f *fakeLedger) TripTransactions(ctx context.Context, tripID int64) ([]ledger.Transaction, error) {
	return f.txns[tripID], nil
}

func (f *fakeLedger) TripSummary(ctx context.Context, tripID int64) (*ledger.Summary, error) {
	sum := &ledger.Summary{
		ByCategory: make(map[string]decimal.Decimal),
		ByPayer:    make(map[string]decimal.Decimal),
	}
	for _, t := range f.txns[tripID] {
		sum.TotalSpent = sum.TotalSpent.Add(t.Total)
		sum.Count++
		sum.ByCategory[t.Category] = sum.ByCategory[t.Category].Add(t.Total)
		if sp, ok := t.Split(); ok {
			sum.ByPayer[sp.Payer] = sum.ByPayer[sp.Payer].Add(t.Total)
		}
	}
	return sum, nil
}

type fakeUpdates struct {
	received chan telegram.Update
}

func (f *fakeUpdates) HandleUpdate(upd telegram.Update) {
	f.received <- upd
}

func seededLedger() *fakeLedger {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	trip := ledger.Trip{
		ID:             1,
		UserID:         "100",
		ChatID:         "100",
		ChatType:       "private",
		Name:           "Tokyo 2025",
		Location:       "Tokyo, Japan",
		Participants:   []string{"Alice", "Bob", "Carol"},
		Status:         "active",
		CreatedAt:      created,
		LastActivityAt: created,
	}

	dinner := ledger.Transaction{
		ID:          1,
		TripID:      1,
		Description: "Dinner",
		Total:       dec("90"),
		Category:    "food",
		Date:        created,
		CreatedAt:   created,
	}
	dinner = dinner.WithSplit(ledger.Split{
		Payer:        "Alice",
		Participants: []string{"Alice", "Bob", "Carol"},
		Policy:       ledger.PolicyEven,
		Amounts: map[string]decimal.Decimal{
			"Alice": dec("30"), "Bob": dec("30"), "Carol": dec("30"),
		},
	})

	return &fakeLedger{
		trips: map[int64]ledger.Trip{1: trip},
		txns:  map[int64][]ledger.Transaction{1: {dinner}},
	}
}

func newTestAPI(ldg *fakeLedger) (*API, *fakeUpdates) {
	upd := &fakeUpdates{received: make(chan telegram.Update, 1)}
	cfg := &config.Config{
		TelegramWebhookSecret: "hook-secret",
		WebBind:               "127.0.0.1:0",
		AllowedOrigins:        "*",
		JWTSecret:             "test-jwt-secret",
		DashboardPassword:     "opensesame",
	}
	return New(cfg, ldg, upd), upd
}

func loginToken(t *testing.T, api *API) string {
	t.Helper()

	req := httptest.NewRequest("POST", "/api/login", strings.NewReader(`{"password":"opensesame"}`))
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login returned an empty token")
	}
	return resp.Token
}

func authedGet(t *testing.T, api *API, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set("Authorization", "Bearer "+loginToken(t, api))
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(seededLedger())

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status OK, got %v", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("Expected health body to contain status ok, got %s", w.Body.String())
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	api, _ := newTestAPI(seededLedger())

	req := httptest.NewRequest("POST", "/api/login", strings.NewReader(`{"password":"wrong"}`))
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %v", w.Code)
	}
}

func TestLoginRejectsBadBody(t *testing.T) {
	api, _ := newTestAPI(seededLedger())

	req := httptest.NewRequest("POST", "/api/login", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %v", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api, _ := newTestAPI(seededLedger())

	req := httptest.NewRequest("GET", "/api/trips", nil)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without header, got %v", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/trips", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 with garbage token, got %v", w.Code)
	}
}

func TestListTrips(t *testing.T) {
	api, _ := newTestAPI(seededLedger())

	w := authedGet(t, api, "/api/trips")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	expectedStrings := []string{
		`"name":"Tokyo 2025"`,
		`"location":"Tokyo, Japan"`,
		`"participants":["Alice","Bob","Carol"]`,
		`"status":"active"`,
	}
	for _, expected := range expectedStrings {
		if !strings.Contains(body, expected) {
			t.Errorf("Expected response to contain '%s', got %s", expected, body)
		}
	}
}

func TestTripExpenses(t *testing.T) {
	api, _ := newTestAPI(seededLedger())

	w := authedGet(t, api, "/api/trips/1/expenses")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	expectedStrings := []string{
		`"description":"Dinner"`,
		`"total":"90.00"`,
		`"finalized":true`,
		`"payer":"Alice"`,
		`"Bob":"30.00"`,
	}
	for _, expected := range expectedStrings {
		if !strings.Contains(body, expected) {
			t.Errorf("Expected response to contain '%s', got %s", expected, body)
		}
	}
}

func TestTripExpensesNotFound(t *testing.T) {
	api, _ := newTestAPI(seededLedger())

	w := authedGet(t, api, "/api/trips/42/expenses")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %v", w.Code)
	}
}

func TestTripSettlement(t *testing.T) {
	api, _ := newTestAPI(seededLedger())

	w := authedGet(t, api, "/api/trips/1/settlement")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	expectedStrings := []string{
		`"status":"ok"`,
		`"debtor":"Bob"`,
		`"creditor":"Alice"`,
		`"amount":"30.00"`,
	}
	for _, expected := range expectedStrings {
		if !strings.Contains(body, expected) {
			t.Errorf("Expected response to contain '%s', got %s", expected, body)
		}
	}
}

func TestTripSettlementNoExpenses(t *testing.T) {
	ldg := seededLedger()
	ldg.txns[1] = nil
	api, _ := newTestAPI(ldg)

	w := authedGet(t, api, "/api/trips/1/settlement")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"no_expenses"`) {
		t.Errorf("Expected no_expenses status, got %s", w.Body.String())
	}
}

func TestTripSummary(t *testing.T) {
	api, _ := newTestAPI(seededLedger())

	w := authedGet(t, api, "/api/trips/1/summary")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	expectedStrings := []string{
		`"total_spent":"90.00"`,
		`"count":1`,
		`"food":"90.00"`,
		`"Alice":"90.00"`,
	}
	for _, expected := range expectedStrings {
		if !strings.Contains(body, expected) {
			t.Errorf("Expected response to contain '%s', got %s", expected, body)
		}
	}
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	api, updates := newTestAPI(seededLedger())

	req := httptest.NewRequest("POST", "/webhook/telegram", strings.NewReader(`{"update_id":7}`))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %v", w.Code)
	}
	select {
	case <-updates.received:
		t.Error("Expected update to be dropped on bad secret")
	default:
	}
}

func TestWebhookDispatchesUpdate(t *testing.T) {
	api, updates := newTestAPI(seededLedger())

	payload := `{"update_id":7,"message":{"message_id":1,` +
		`"from":{"id":100,"is_bot":false,"first_name":"Alice"},` +
		`"chat":{"id":100,"type":"private"},"text":"/balance"}}`
	req := httptest.NewRequest("POST", "/webhook/telegram", strings.NewReader(payload))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "hook-secret")
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body.String())
	}

	select {
	case upd := <-updates.received:
		if upd.Message == nil || upd.Message.Text != "/balance" {
			t.Errorf("Expected dispatched update to carry the message text, got %+v", upd)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected update to reach the handler")
	}
}
