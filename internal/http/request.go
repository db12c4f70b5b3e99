package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"budgetchat/internal/core"
	"budgetchat/internal/store"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 16 << 10

var errBodyTooLarge = errors.New("request body too large")

type (
	parseRequest struct {
		Text string `json:"text"`
	}

	// createExpenseRequest is a confirmed entry. An id is accepted and kept so
	// that entries returned by /parse can be saved as they are.
	createExpenseRequest struct {
		ID       string              `json:"id"`
		Amount   decimal.NullDecimal `json:"amount"`
		Currency string              `json:"currency"`
		Category string              `json:"category"`
		Date     string              `json:"date"`
		Time     string              `json:"time"`
		Note     string              `json:"note"`
	}
)

// decodeJSONBody reads at most maxBytes of r's body into dst. Trailing data
// after the JSON value is rejected.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return errors.New("invalid JSON body: unexpected data after value")
	}
	return nil
}

func (req createExpenseRequest) entry() (core.ExpenseEntry, error) {
	if !req.Amount.Valid {
		return core.ExpenseEntry{}, core.ErrInvalidAmount
	}
	return core.ExpenseEntry{
		ID:       strings.TrimSpace(req.ID),
		Amount:   req.Amount.Decimal,
		Currency: sanitizeInput(req.Currency),
		Category: sanitizeInput(req.Category),
		Date:     strings.TrimSpace(req.Date),
		Time:     strings.TrimSpace(req.Time),
		Note:     sanitizeInput(req.Note),
	}, nil
}

// parseLimit reads the limit query parameter. Missing means the default,
// anything else must be a positive integer; values above the maximum are clamped.
func parseLimit(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return store.DefaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", v)
	}
	return store.NormalizeLimit(n), nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
