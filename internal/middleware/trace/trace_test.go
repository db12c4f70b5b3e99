package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"budgetchat/internal/log"
)

func TestMiddleware_GeneratesRequestID(t *testing.T) {
	var seen string
	h := NewMiddleware(log.Discard(), nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("expected generated request id, got %q", seen)
	}
	if got := rec.Header().Get(HeaderRequestID); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
}

func TestMiddleware_HonorsIncomingRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"valid", "abc-123", true},
		{"with spaces", "abc 123", false},
		{"too long", strings.Repeat("a", 65), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := NewMiddleware(log.Discard(), nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(HeaderRequestID, tt.incoming)
			h.ServeHTTP(httptest.NewRecorder(), req)

			if (seen == tt.incoming) != tt.keep {
				t.Errorf("request id = %q, incoming %q, keep=%v", seen, tt.incoming, tt.keep)
			}
		})
	}
}

func TestMiddleware_LogsCompletionWithRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Format: "text", Output: &buf, Component: log.ComponentApp})

	m := NewMiddleware(logger, func(*http.Request) string { return "10.1.2.3" })
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusBadGateway)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/parse", nil)
	req.Header.Set(HeaderRequestID, "trace-me")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, "inside handler") || !strings.Contains(out, "request_id=trace-me") {
		t.Errorf("handler log line missing request id:\n%s", out)
	}
	if !strings.Contains(out, "HTTP request completed") || !strings.Contains(out, "status_code=502") {
		t.Errorf("completion line missing or wrong status:\n%s", out)
	}
	if !strings.Contains(out, "client_ip=10.1.2.3") {
		t.Errorf("client ip missing:\n%s", out)
	}

	snap := m.Snapshot()
	if snap.TotalRequests != 1 || snap.ServerErrors != 1 {
		t.Errorf("unexpected metrics %+v", snap)
	}
}

func TestRequestID_EmptyContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := RequestID(req.Context()); got != "" {
		t.Errorf("RequestID = %q, want empty", got)
	}
}
