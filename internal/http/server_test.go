package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/services"
	"fintrack/internal/storage"
)

const (
	alice int64 = 1
	bob   int64 = 2
)

type testServer struct {
	t      *testing.T
	server *Server
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	svc := Services{
		Projection:   services.NewProjectionService(repo),
		Payments:     services.NewPaymentService(repo, nil),
		Installments: services.NewInstallmentService(repo, nil),
		Catalog:      services.NewCatalogService(repo, nil),
	}
	s := NewServer(":0", svc, repo, opts)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return &testServer{t: t, server: s}
}

// do sends a request as user; user 0 sends no identity header.
func (ts *testServer) do(method, path string, user int64, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(ts.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != 0 {
		req.Header.Set(UserIDHeader, strconv.FormatInt(user, 10))
	}
	rec := httptest.NewRecorder()
	ts.server.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) createCategory(user int64, name string) int64 {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/v1/categories", user, map[string]any{"name": name})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[categoryView](ts.t, rec).ID
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(http.MethodGet, "/healthz", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/readyz", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

func TestReadyReportsStoreFailure(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.server.pinger = failingPinger{}

	rec := ts.do(http.MethodGet, "/readyz", 0, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPIRequiresUser(t *testing.T) {
	ts := newTestServer(t, Options{})

	for _, header := range []string{"", "abc", "0", "-4"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil)
		if header != "" {
			req.Header.Set(UserIDHeader, header)
		}
		rec := httptest.NewRecorder()
		ts.server.Handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestProjectValidatesMonth(t *testing.T) {
	ts := newTestServer(t, Options{})

	tests := []struct {
		name  string
		query string
		field string
	}{
		{"missing both", "", "year"},
		{"missing month", "?year=2025", "month"},
		{"month out of range", "?year=2025&month=13", "month"},
		{"not a number", "?year=abc&month=4", "year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodGet, "/api/v1/expenses"+tt.query, alice, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode[errorBody](t, rec)
			assert.Contains(t, body.Errors, tt.field)
		})
	}
}

func TestExpenseLifecycle(t *testing.T) {
	ts := newTestServer(t, Options{})
	food := ts.createCategory(alice, "Food")

	rec := ts.do(http.MethodPost, "/api/v1/expenses", alice, map[string]any{
		"name":        "Groceries",
		"amount":      "12.30",
		"due_date":    "2025-04-10",
		"category_id": food,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	assert.Equal(t, "12.30", created["amount"])
	assert.Equal(t, "2025-04-10", created["due_date"])
	id := int64(created["id"].(float64))

	rec = ts.do(http.MethodGet, "/api/v1/expenses?year=2025&month=4", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]map[string]any](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, false, rows[0]["paid"])
	assert.Equal(t, false, rows[0]["is_recurring"])
	assert.Equal(t, map[string]any{"type": "e", "id": float64(id)}, rows[0]["ref"])

	rec = ts.do(http.MethodPost, "/api/v1/expenses/mark-paid", alice, map[string]any{
		"ids": []map[string]any{{"type": "e", "id": id}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[reconcileView](t, rec)
	assert.Equal(t, "marked", result.Status)
	assert.Equal(t, 1, result.ExpensesUpdated)

	rec = ts.do(http.MethodGet, "/api/v1/expenses?year=2025&month=4", alice, nil)
	rows = decode[[]map[string]any](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, true, rows[0]["paid"])

	path := "/api/v1/expenses/" + strconv.FormatInt(id, 10)
	rec = ts.do(http.MethodPut, path, alice, map[string]any{
		"name":     "Groceries",
		"amount":   20,
		"due_date": "2025-05-02",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[map[string]any](t, rec)
	assert.Equal(t, "20.00", updated["amount"])
	assert.Equal(t, true, updated["paid"], "omitted paid keeps the stored flag")
	assert.Nil(t, updated["category_id"])

	rec = ts.do(http.MethodGet, "/api/v1/expenses/months", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []periodView{{Year: 2025, Month: 5}}, decode[[]periodView](t, rec))

	rec = ts.do(http.MethodDelete, path, alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodGet, path, alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecurringOccurrencesAndMarkers(t *testing.T) {
	ts := newTestServer(t, Options{})
	home := ts.createCategory(alice, "Home")

	rec := ts.do(http.MethodPost, "/api/v1/recurring-expenses", alice, map[string]any{
		"name":        "Rent",
		"amount":      "800",
		"due_day":     31,
		"category_id": home,
		"start_date":  "2025-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decode[map[string]any](t, rec)
	ruleID := int64(rule["id"].(float64))
	assert.Equal(t, true, rule["active"])
	assert.Nil(t, rule["end_date"])

	rec = ts.do(http.MethodGet, "/api/v1/expenses?year=2025&month=2", alice, nil)
	rows := decode[[]map[string]any](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(ruleID), rows[0]["id"])
	assert.Equal(t, true, rows[0]["is_recurring"])
	assert.Equal(t, float64(-ruleID), rows[0]["legacy_id"])
	assert.Equal(t, "r:"+strconv.FormatInt(ruleID, 10), rows[0]["key"])
	assert.Equal(t, "2025-02-28", rows[0]["due_date"])

	rec = ts.do(http.MethodPost, "/api/v1/expenses/mark-paid", alice, map[string]any{
		"ids":   []map[string]any{{"type": "r", "id": ruleID}},
		"month": 2,
		"year":  2025,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[reconcileView](t, rec).MarkersChanged)

	rec = ts.do(http.MethodGet, "/api/v1/expenses/summary?year=2025&month=2", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[map[string]any](t, rec)
	assert.Equal(t, "800.00", summary["paid"])
	assert.Equal(t, "0.00", summary["outstanding"])

	rec = ts.do(http.MethodPost, "/api/v1/recurring-expenses/"+strconv.FormatInt(ruleID, 10)+"/deactivate", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["active"])

	rec = ts.do(http.MethodGet, "/api/v1/expenses?year=2025&month=3", alice, nil)
	assert.Empty(t, decode[[]map[string]any](t, rec))
}

func TestMarkPaidValidation(t *testing.T) {
	ts := newTestServer(t, Options{})

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{
			name:  "empty batch",
			body:  map[string]any{"ids": []any{}},
			field: "ids",
		},
		{
			name:  "recurring without period",
			body:  map[string]any{"ids": []map[string]any{{"type": "r", "id": 1}}},
			field: "month",
		},
		{
			name:  "malformed item",
			body:  map[string]any{"ids": []map[string]any{{"type": "e", "id": 1}, {"type": "x", "id": 2}}},
			field: "ids[1]",
		},
		{
			name:  "missing id",
			body:  map[string]any{"ids": []map[string]any{{"type": "i"}}},
			field: "ids[0]",
		},
		{
			name:  "unknown field",
			body:  `{"items": []}`,
			field: "body",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/v1/expenses/mark-paid", alice, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, decode[errorBody](t, rec).Errors, tt.field)
		})
	}
}

func TestMarkPaidIgnoresPeriodWithoutRecurringItems(t *testing.T) {
	ts := newTestServer(t, Options{})
	rec := ts.do(http.MethodPost, "/api/v1/expenses", alice, map[string]any{
		"name":     "Dinner",
		"amount":   "30",
		"due_date": "2025-04-10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := int64(decode[map[string]any](t, rec)["id"].(float64))

	rec = ts.do(http.MethodPost, "/api/v1/expenses/mark-paid", alice, map[string]any{
		"ids":   []map[string]any{{"type": "e", "id": id}},
		"month": 13,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[reconcileView](t, rec).ExpensesUpdated)
}

func TestInstallmentExpansion(t *testing.T) {
	ts := newTestServer(t, Options{})
	tech := ts.createCategory(alice, "Tech")

	rec := ts.do(http.MethodPost, "/api/v1/installment-expenses", alice, map[string]any{
		"name":                  "Laptop",
		"total_amount":          "100.00",
		"installments_quantity": 3,
		"first_due_date":        "2025-01-31",
		"category_id":           tech,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	plan := decode[struct {
		ID       int64  `json:"id"`
		Drift    string `json:"drift"`
		Expenses []struct {
			Name    string `json:"name"`
			Amount  string `json:"amount"`
			DueDate string `json:"due_date"`
		} `json:"expenses"`
	}](t, rec)
	assert.Equal(t, "-0.01", plan.Drift)
	require.Len(t, plan.Expenses, 3)
	assert.Equal(t, "Laptop (2/3)", plan.Expenses[1].Name)
	assert.Equal(t, "33.33", plan.Expenses[1].Amount)
	assert.Equal(t, "2025-02-28", plan.Expenses[1].DueDate)

	rec = ts.do(http.MethodGet, "/api/v1/expenses?year=2025&month=2", alice, nil)
	rows := decode[[]map[string]any](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, true, rows[0]["is_installment"])
	assert.Equal(t, "i", rows[0]["ref"].(map[string]any)["type"])

	path := "/api/v1/installment-expenses/" + strconv.FormatInt(plan.ID, 10)
	rec = ts.do(http.MethodDelete, path, alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/expenses?year=2025&month=2", alice, nil)
	assert.Empty(t, decode[[]map[string]any](t, rec))
}

func TestInstallmentValidation(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(http.MethodPost, "/api/v1/installment-expenses", alice, map[string]any{
		"name":                  "",
		"total_amount":          "abc",
		"installments_quantity": 0,
		"first_due_date":        "31/01/2025",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode[errorBody](t, rec).Errors
	assert.Equal(t, "A valid number is required.", fields["total_amount"])
	assert.Equal(t, "Date has wrong format. Use YYYY-MM-DD.", fields["first_due_date"])
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "installments_quantity")
	assert.Contains(t, fields, "category_id")
}

func TestUsersAreIsolated(t *testing.T) {
	ts := newTestServer(t, Options{})
	aliceCategory := ts.createCategory(alice, "Food")

	rec := ts.do(http.MethodPost, "/api/v1/expenses", alice, map[string]any{
		"name": "Dinner", "amount": "30", "due_date": "2025-04-03",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	path := "/api/v1/expenses/" + strconv.FormatInt(int64(decode[map[string]any](t, rec)["id"].(float64)), 10)

	rec = ts.do(http.MethodGet, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodDelete, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/installment-expenses", bob, map[string]any{
		"name":                  "Phone",
		"total_amount":          "300",
		"installments_quantity": 3,
		"first_due_date":        "2025-04-01",
		"category_id":           aliceCategory,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Category not found.", decode[errorBody](t, rec).Errors["category_id"])

	rec = ts.do(http.MethodGet, "/api/v1/expenses?year=2025&month=4", bob, nil)
	assert.Empty(t, decode[[]map[string]any](t, rec))
}

func TestDuplicateCategoryConflicts(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.createCategory(alice, "Food")

	rec := ts.do(http.MethodPost, "/api/v1/categories", alice, map[string]any{"name": "Food"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Names are unique per user only.
	ts.createCategory(bob, "Food")
}

func TestCategoryRenameAndDelete(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createCategory(alice, "Fod")
	path := "/api/v1/categories/" + strconv.FormatInt(id, 10)

	rec := ts.do(http.MethodPut, path, alice, map[string]any{"name": "Food"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Food", decode[categoryView](t, rec).Name)

	rec = ts.do(http.MethodPut, path, bob, map[string]any{"name": "Mine"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodDelete, path, alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/categories", alice, nil)
	assert.Empty(t, decode[[]categoryView](t, rec))
}

func TestProjectionReflectsWrites(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(http.MethodGet, "/api/v1/expenses?year=2025&month=6", alice, nil)
	require.Empty(t, decode[[]map[string]any](t, rec))

	rec = ts.do(http.MethodPost, "/api/v1/expenses", alice, map[string]any{
		"name": "Gym", "amount": "40", "due_date": "2025-06-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/expenses?year=2025&month=6", alice, nil)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)
}

func TestRateLimitIsPerUser(t *testing.T) {
	ts := newTestServer(t, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		rec := ts.do(http.MethodGet, "/api/v1/categories", alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := ts.do(http.MethodGet, "/api/v1/categories", alice, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	rec = ts.do(http.MethodGet, "/api/v1/categories", bob, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRejectsNonJSONBodies(t *testing.T) {
	ts := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/categories", bytes.NewBufferString("name=Food"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(UserIDHeader, "1")
	rec := httptest.NewRecorder()
	ts.server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestSuspiciousRequestsAreRejected(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(http.MethodGet, "/api/v1/../.env", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(http.MethodGet, "/api/v1/incomes", alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{RateLimitPerMinute: 1})

	ts.do(http.MethodGet, "/api/v1/expenses?year=2025&month=4", alice, nil)
	rec := ts.do(http.MethodGet, "/api/v1/expenses?year=2025&month=4", alice, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = ts.do(http.MethodGet, "/metrics", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[metricsView](t, rec)
	assert.Equal(t, int64(3), m.Requests.TotalRequests)
	assert.Equal(t, int64(1), m.RateLimit.Rejected)
	assert.Equal(t, 1, m.CacheEntries)
}
