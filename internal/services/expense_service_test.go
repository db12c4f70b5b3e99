package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"budgetchat/internal/core"
	"budgetchat/internal/store/memory"
)

type fakePublisher struct {
	ids    []string
	err    error
	closed bool
}

func (f *fakePublisher) PublishExpenseCreated(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return f.err
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func entry() core.ExpenseEntry {
	return core.ExpenseEntry{
		ID:       "from-parse",
		Amount:   decimal.RequireFromString("45"),
		Currency: " USD ",
		Category: "Dining",
		Date:     "2025-01-14",
	}
}

func TestExpenseService_CreateExpense(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewExpenseService(memory.New(), pub, nil)

	saved, err := svc.CreateExpense(context.Background(), entry())
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if saved.ID != "from-parse" {
		t.Errorf("ID = %q, want the entry id to be kept", saved.ID)
	}
	if saved.Currency != "USD" {
		t.Errorf("Currency = %q, want trimmed USD", saved.Currency)
	}
	if saved.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if len(pub.ids) != 1 || pub.ids[0] != saved.ID {
		t.Errorf("published %v, want [%s]", pub.ids, saved.ID)
	}
}

func TestExpenseService_PublishFailureDoesNotFailSave(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	st := memory.New()
	svc := NewExpenseService(st, pub, nil)

	saved, err := svc.CreateExpense(context.Background(), entry())
	if err != nil {
		t.Fatalf("CreateExpense should succeed when publish fails: %v", err)
	}
	if _, err := st.Get(context.Background(), saved.ID); err != nil {
		t.Errorf("expense not stored: %v", err)
	}
}

func TestExpenseService_ValidationError(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewExpenseService(memory.New(), pub, nil)

	e := entry()
	e.Category = "   "
	if _, err := svc.CreateExpense(context.Background(), e); !errors.Is(err, core.ErrEmptyCategory) {
		t.Fatalf("err = %v, want ErrEmptyCategory", err)
	}
	if len(pub.ids) != 0 {
		t.Error("nothing should be published for an invalid expense")
	}
}

func TestExpenseService_NilPublisher(t *testing.T) {
	svc := NewExpenseService(memory.New(), nil, nil)
	if _, err := svc.CreateExpense(context.Background(), entry()); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	list, err := svc.ListExpenses(context.Background(), 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListExpenses = %v, %v", list, err)
	}
}

func TestExpenseService_Close(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewExpenseService(memory.New(), pub, nil)

	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !pub.closed {
		t.Error("publisher should be closed")
	}
}
