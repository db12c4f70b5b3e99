package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used by entries and storage.
const DateLayout = "2006-01-02"

const maxNoteLength = 500

type (
	// ExpenseEntry is a single expense extracted from free text, before it is saved.
	ExpenseEntry struct {
		ID       string          `json:"id"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		Category string          `json:"category"`
		Date     string          `json:"date"`
		Time     string          `json:"time,omitempty"`
		Note     string          `json:"note,omitempty"`
	}

	// Expense is a saved expense record.
	Expense struct {
		ID        string          `json:"id"`
		Amount    decimal.Decimal `json:"amount"`
		Currency  string          `json:"currency"`
		Category  string          `json:"category"`
		Date      string          `json:"date"`
		Time      string          `json:"time,omitempty"`
		Note      string          `json:"note,omitempty"`
		CreatedAt time.Time       `json:"createdAt"`
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyCurrency = errors.New("empty currency")
	ErrEmptyCategory = errors.New("empty category")
	ErrInvalidDate   = errors.New("invalid date")
	ErrNoteTooLong   = errors.New("note too long (max 500 characters)")
	ErrNotFound      = errors.New("expense not found")
)

// MarshalJSON encodes the amount as a JSON number rather than a quoted string.
func (e ExpenseEntry) MarshalJSON() ([]byte, error) {
	type alias ExpenseEntry
	return json.Marshal(struct {
		alias
		Amount json.Number `json:"amount"`
	}{alias: alias(e), Amount: json.Number(e.Amount.String())})
}

// MarshalJSON encodes the amount as a JSON number rather than a quoted string.
func (e Expense) MarshalJSON() ([]byte, error) {
	type alias Expense
	return json.Marshal(struct {
		alias
		Amount json.Number `json:"amount"`
	}{alias: alias(e), Amount: json.Number(e.Amount.String())})
}

// NewExpense builds a record from an entry. The entry ID is kept when present.
func NewExpense(e ExpenseEntry, createdAt time.Time) Expense {
	return Expense{
		ID:        e.ID,
		Amount:    e.Amount,
		Currency:  strings.TrimSpace(e.Currency),
		Category:  strings.TrimSpace(e.Category),
		Date:      strings.TrimSpace(e.Date),
		Time:      strings.TrimSpace(e.Time),
		Note:      strings.TrimSpace(e.Note),
		CreatedAt: createdAt,
	}
}

// Entry returns the entry view of a saved record.
func (e Expense) Entry() ExpenseEntry {
	return ExpenseEntry{
		ID:       e.ID,
		Amount:   e.Amount,
		Currency: e.Currency,
		Category: e.Category,
		Date:     e.Date,
		Time:     e.Time,
		Note:     e.Note,
	}
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// Validate applies the rules for saving an expense. Unlike extraction, the
// date has to be a real calendar day.
func (e Expense) Validate() error {
	if strings.TrimSpace(e.Currency) == "" {
		return ErrEmptyCurrency
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if _, err := ParseDate(e.Date); err != nil {
		return err
	}
	if len([]rune(e.Note)) > maxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}
