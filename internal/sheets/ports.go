package sheets

import (
	"context"

	"budgetchat/internal/core"
)

// Ports for the spreadsheet mirror.
type (
	// ExpenseAppender writes one saved expense as a spreadsheet row.
	ExpenseAppender interface {
		AppendExpense(ctx context.Context, e core.Expense) (rowRef string, err error)
	}

	// ExpenseIndex reports whether an expense already has a row, so
	// redelivered messages do not produce duplicates.
	ExpenseIndex interface {
		HasExpense(ctx context.Context, e core.Expense) (bool, error)
	}

	Mirror interface {
		ExpenseAppender
		ExpenseIndex
	}
)

// Columns is the header row of the mirror sheet.
var Columns = []string{"Date", "Time", "Category", "Amount", "Currency", "Note", "ID"}

// Row returns the cell values for e in Columns order.
func Row(e core.Expense) []any {
	return []any{e.Date, e.Time, e.Category, e.Amount.String(), e.Currency, e.Note, e.ID}
}
