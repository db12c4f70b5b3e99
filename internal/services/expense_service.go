package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetchat/internal/core"
	"budgetchat/internal/log"
	"budgetchat/internal/store"
)

// Publisher announces saved expenses to downstream consumers.
type Publisher interface {
	PublishExpenseCreated(ctx context.Context, id string) error
}

// ExpenseService saves expenses and announces them for the sheet mirror.
type ExpenseService struct {
	storage   store.ExpenseStore
	publisher Publisher
	logger    *log.Logger
	events    *log.StructuredLogger
	now       func() time.Time
}

// NewExpenseService wires a store and an optional publisher. A nil publisher
// disables announcements.
func NewExpenseService(storage store.ExpenseStore, publisher Publisher, logger *log.Logger) *ExpenseService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExpenseService{
		storage:   storage,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentExpense),
		events:    log.NewStructuredLogger(logger),
		now:       time.Now,
	}
}

// CreateExpense validates and saves a confirmed entry, then publishes an
// expense.created message. Publish failures are logged and never fail the save.
func (s *ExpenseService) CreateExpense(ctx context.Context, entry core.ExpenseEntry) (core.Expense, error) {
	e := core.NewExpense(entry, s.now().UTC())
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	saved, err := s.storage.Create(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	s.events.LogExpenseCreated(ctx, saved.ID, saved.Amount.String(), saved.Currency, saved.Category, saved.Date)

	if err := s.publishCreated(ctx, saved.ID); err != nil {
		s.events.LogError(ctx, "Failed to publish expense created message", err,
			log.ComponentAMQP, log.OpCreate,
			log.LogFields{log.FieldExpenseID: saved.ID})
	}

	return saved, nil
}

// ListExpenses returns up to limit saved expenses, newest first.
func (s *ExpenseService) ListExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	list, err := s.storage.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return list, nil
}

// GetExpense returns one saved expense.
func (s *ExpenseService) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	return s.storage.Get(ctx, id)
}

func (s *ExpenseService) publishCreated(ctx context.Context, id string) error {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No publisher configured, skipping expense created message")
		return nil
	}
	return s.publisher.PublishExpenseCreated(ctx, id)
}

// Close closes the store and, when it supports closing, the publisher.
func (s *ExpenseService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	return errors.Join(errs...)
}
