package store

import (
	"context"

	"budgetchat/internal/core"
)

// DefaultListLimit is both the default and the maximum page size of List.
const DefaultListLimit = 100

// Ports for expense persistence.
type (
	ExpenseWriter interface {
		// Create persists e and returns the stored record. A blank ID is
		// replaced with a new UUID and a zero CreatedAt with the current time.
		Create(ctx context.Context, e core.Expense) (core.Expense, error)
	}

	ExpenseReader interface {
		// Get returns core.ErrNotFound when no expense has the given ID.
		Get(ctx context.Context, id string) (core.Expense, error)
	}

	// ExpenseLister returns stored expenses, newest first.
	ExpenseLister interface {
		List(ctx context.Context, limit int) ([]core.Expense, error)
	}

	// ExpenseStore is the full set of operations a backend provides.
	ExpenseStore interface {
		ExpenseWriter
		ExpenseReader
		ExpenseLister
		Close() error
	}
)

// NormalizeLimit clamps limit to the range 1..DefaultListLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}
