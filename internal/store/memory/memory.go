package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"budgetchat/internal/core"
	"budgetchat/internal/store"
)

// Store keeps expenses in process memory. Used for local development and tests.
type Store struct {
	mu    sync.RWMutex
	items []core.Expense
	byID  map[string]int
	now   func() time.Time
}

var _ store.ExpenseStore = (*Store)(nil)

func New() *Store {
	return &Store{byID: map[string]int{}, now: time.Now}
}

// Create validates and stores the expense.
func (s *Store) Create(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byID[e.ID]; ok {
		s.items[i] = e
		return e, nil
	}
	s.byID[e.ID] = len(s.items)
	s.items = append(s.items, e)
	return e, nil
}

func (s *Store) Get(_ context.Context, id string) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return core.Expense{}, core.ErrNotFound
	}
	return s.items[i], nil
}

// List returns up to limit expenses ordered by creation time, newest first.
func (s *Store) List(_ context.Context, limit int) ([]core.Expense, error) {
	limit = store.NormalizeLimit(limit)

	s.mu.RLock()
	out := append([]core.Expense(nil), s.items...)
	s.mu.RUnlock()

	// Stable on insertion order so equal timestamps still list newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
