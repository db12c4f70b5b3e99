package memory

import (
	"context"
	"fmt"
	"sync"

	"budgetchat/internal/core"
	ports "budgetchat/internal/sheets"
)

// Mirror records appended rows in memory. Used when no spreadsheet is
// configured and by tests.
type Mirror struct {
	mu   sync.Mutex
	rows [][]any
	ids  map[string]struct{}
	// FailNext makes the next AppendExpense call return this error once.
	FailNext error
}

var _ ports.Mirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{ids: map[string]struct{}{}}
}

// AppendExpense stores the row and returns a synthetic row reference.
func (m *Mirror) AppendExpense(_ context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailNext; err != nil {
		m.FailNext = nil
		return "", err
	}
	m.rows = append(m.rows, ports.Row(e))
	m.ids[e.ID] = struct{}{}
	return fmt.Sprintf("mem:%d", len(m.rows)), nil
}

func (m *Mirror) HasExpense(_ context.Context, e core.Expense) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[e.ID]
	return ok, nil
}

// Rows returns a copy of the recorded rows.
func (m *Mirror) Rows() [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]any, len(m.rows))
	copy(out, m.rows)
	return out
}
