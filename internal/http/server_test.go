package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetchat/internal/core"
	"budgetchat/internal/extract"
	"budgetchat/internal/log"
	"budgetchat/internal/services"
	"budgetchat/internal/store/memory"
	"budgetchat/internal/timeline"
)

type fakeParser struct {
	mu      sync.Mutex
	entries []core.ExpenseEntry
	err     error
	texts   []string
}

func (f *fakeParser) Extract(_ context.Context, text string) ([]core.ExpenseEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.entries, f.err
}

type countingService struct {
	*services.ExpenseService
	lists int
}

func (c *countingService) ListExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	c.lists++
	return c.ExpenseService.ListExpenses(ctx, limit)
}

func newTestServer(t *testing.T, p extract.Parser, opts ...Option) (*Server, *countingService) {
	t.Helper()
	svc := &countingService{ExpenseService: services.NewExpenseService(memory.New(), nil, log.Discard())}
	srv, err := NewServer(Config{Addr: ":0", RateLimitPerMinute: 100, AllowedOrigins: []string{"http://localhost:5173"}},
		p, svc, log.Discard(), opts...)
	require.NoError(t, err)
	return srv, svc
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, &fakeParser{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	}
}

func TestReadyFailure(t *testing.T) {
	srv, _ := newTestServer(t, &fakeParser{}, WithReadiness(func(context.Context) error {
		return errors.New("database is locked")
	}))

	rec := do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", decodeError(t, rec).Error)
}

func TestParse_Success(t *testing.T) {
	p := &fakeParser{entries: []core.ExpenseEntry{{
		ID: "e1", Amount: decimal.NewFromInt(45), Currency: "USD", Category: "Dining", Date: "2025-01-14",
	}}}
	srv, _ := newTestServer(t, p)

	rec := do(t, srv, http.MethodPost, "/parse", `{"text":"dinner 45 USD"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{"id":"e1","amount":45,"currency":"USD","category":"Dining","date":"2025-01-14"}]`, rec.Body.String())
	assert.Equal(t, []string{"dinner 45 USD"}, p.texts)
}

func TestParse_EmptyResultIsArray(t *testing.T) {
	srv, _ := newTestServer(t, &fakeParser{})
	rec := do(t, srv, http.MethodPost, "/parse", `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestParse_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid input", &extract.Error{Kind: extract.KindInvalidInput, Message: "text must not be empty"}, http.StatusBadRequest, "invalid_input"},
		{"upstream", &extract.Error{Kind: extract.KindUpstream, Status: 502, Message: "overloaded"}, http.StatusBadGateway, "upstream_error"},
		{"upstream timeout", &extract.Error{Kind: extract.KindUpstream, Timeout: true, Message: "timed out"}, http.StatusGatewayTimeout, "upstream_error"},
		{"malformed", &extract.Error{Kind: extract.KindMalformedOutput, Preview: "Sure!"}, http.StatusBadGateway, "malformed_output"},
		{"schema", &extract.Error{Kind: extract.KindSchemaViolation, Schema: &extract.SchemaError{Index: -1, Problem: extract.ProblemNotArray}}, http.StatusBadGateway, "schema_violation"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &fakeParser{err: tt.err})
			rec := do(t, srv, http.MethodPost, "/parse", `{"text":"x"}`)

			assert.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.Error)
			assert.Equal(t, tt.err.Error(), body.Message)
		})
	}
}

func TestParse_BadBodies(t *testing.T) {
	srv, _ := newTestServer(t, &fakeParser{})

	rec := do(t, srv, http.MethodPost, "/parse", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/parse", `{"text":"a"} {"text":"b"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	big := `{"text":"` + strings.Repeat("a", DefaultMaxBodyBytes) + `"}`
	rec = do(t, srv, http.MethodPost, "/parse", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "request_too_large", decodeError(t, rec).Error)
}

func TestParse_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, &fakeParser{})
	rec := do(t, srv, http.MethodGet, "/parse", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCreateAndListExpenses(t *testing.T) {
	srv, svc := newTestServer(t, &fakeParser{})

	rec := do(t, srv, http.MethodPost, "/expenses",
		`{"id":"from-parse","amount":12.5,"currency":"EUR","category":"Coffee","date":"2025-01-15","note":"  latte  "}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/expenses/from-parse", rec.Header().Get("Location"))

	var saved map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, "from-parse", saved["id"])
	assert.Equal(t, 12.5, saved["amount"])
	assert.Equal(t, "latte", saved["note"])
	assert.NotEmpty(t, saved["createdAt"])

	rec = do(t, srv, http.MethodGet, "/expenses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Coffee", list[0]["category"])

	rec = do(t, srv, http.MethodGet, "/expenses/from-parse", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/expenses/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Error)

	assert.Equal(t, 1, svc.lists)
}

func TestListExpenses_CacheInvalidatedOnCreate(t *testing.T) {
	srv, svc := newTestServer(t, &fakeParser{})

	do(t, srv, http.MethodGet, "/expenses", "")
	do(t, srv, http.MethodGet, "/expenses", "")
	assert.Equal(t, 1, svc.lists, "second read served from cache")

	rec := do(t, srv, http.MethodPost, "/expenses", `{"amount":1,"currency":"EUR","category":"x","date":"2025-01-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, srv, http.MethodGet, "/expenses", "")
	assert.Equal(t, 2, svc.lists)
	assert.Contains(t, rec.Body.String(), `"category":"x"`)
}

func TestListExpenses_Limit(t *testing.T) {
	srv, _ := newTestServer(t, &fakeParser{})

	for _, bad := range []string{"0", "-1", "abc"} {
		rec := do(t, srv, http.MethodGet, "/expenses?limit="+bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
	rec := do(t, srv, http.MethodGet, "/expenses?limit=500", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestCreateExpense_Validation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeParser{})

	bodies := map[string]string{
		"missing amount":   `{"currency":"EUR","category":"x","date":"2025-01-01"}`,
		"null amount":      `{"amount":null,"currency":"EUR","category":"x","date":"2025-01-01"}`,
		"missing currency": `{"amount":1,"category":"x","date":"2025-01-01"}`,
		"blank category":   `{"amount":1,"currency":"EUR","category":"  ","date":"2025-01-01"}`,
		"impossible date":  `{"amount":1,"currency":"EUR","category":"x","date":"2025-02-30"}`,
		"long note":        `{"amount":1,"currency":"EUR","category":"x","date":"2025-01-01","note":"` + strings.Repeat("n", 501) + `"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/expenses", body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			assert.Equal(t, "validation_error", decodeError(t, rec).Error)
		})
	}
}

func TestTimeline(t *testing.T) {
	now := time.Date(2025, 1, 15, 20, 0, 0, 0, time.UTC)
	srv, _ := newTestServer(t, &fakeParser{}, WithClock(func() time.Time { return now }))

	for _, body := range []string{
		`{"amount":3,"currency":"EUR","category":"Coffee","date":"2025-01-14"}`,
		`{"amount":40,"currency":"EUR","category":"Groceries","date":"2025-01-15","time":"18:00"}`,
	} {
		require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/expenses", body).Code)
	}

	rec := do(t, srv, http.MethodGet, "/expenses/timeline", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var days []timeline.Day
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &days))
	require.Len(t, days, 2)
	assert.Equal(t, "Today", days[0].Label)
	assert.Equal(t, timeline.IconCart, days[0].Items[0].Icon)
	assert.Equal(t, "Yesterday", days[1].Label)
}

func TestRateLimitAppliesToPostOnly(t *testing.T) {
	svc := services.NewExpenseService(memory.New(), nil, log.Discard())
	srv, err := NewServer(Config{RateLimitPerMinute: 1}, &fakeParser{}, svc, log.Discard())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/parse", `{"text":"a"}`).Code)
	rec := do(t, srv, http.MethodPost, "/parse", `{"text":"b"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeError(t, rec).Error)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/expenses", "").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/expenses", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &fakeParser{})

	req := httptest.NewRequest(http.MethodOptions, "/parse", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunShutsDownOnCancel(t *testing.T) {
	svc := services.NewExpenseService(memory.New(), nil, log.Discard())
	srv, err := NewServer(Config{Addr: "127.0.0.1:0"}, &fakeParser{}, svc, log.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
