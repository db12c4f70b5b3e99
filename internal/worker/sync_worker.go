package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetchat/internal/amqp"
	"budgetchat/internal/core"
	"budgetchat/internal/log"
	"budgetchat/internal/sheets"
)

// Repository is the slice of the SQLite store the worker needs.
type Repository interface {
	Get(ctx context.Context, id string) (core.Expense, error)
	PendingSync(ctx context.Context, limit int) ([]core.Expense, error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string) error
}

// SyncWorker mirrors saved expenses to the spreadsheet.
type SyncWorker struct {
	storage   Repository
	mirror    sheets.Mirror
	batchSize int
	logger    *log.Logger
}

func NewSyncWorker(storage Repository, mirror sheets.Mirror, batchSize int, logger *log.Logger) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		storage:   storage,
		mirror:    mirror,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleMessage processes one expense.created message from AMQP. Unknown IDs
// are dropped; any other failure is returned so the message is requeued.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.ExpenseCreatedMessage) error {
	w.logger.InfoContext(ctx, "Processing expense message", log.FieldExpenseID, msg.ID)

	expense, err := w.storage.Get(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "Expense from message not found, dropping", log.FieldExpenseID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}

	if err := w.syncExpense(ctx, expense); err != nil {
		return fmt.Errorf("sync expense to sheets: %w", err)
	}
	return nil
}

// ProcessPending syncs expenses that have not been mirrored yet. It backs up
// the message path in case AMQP messages are lost. Returns the number synced.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.storage.PendingSync(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending expenses: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending expenses", log.FieldOperation, log.OpSync, log.FieldEntryCount, len(pending))

	synced := 0
	for _, e := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if err := w.syncExpense(ctx, e); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync expense",
				log.FieldExpenseID, e.ID,
				log.FieldError, err.Error())
			continue
		}
		synced++
	}
	return synced, nil
}

// RunSweeper calls ProcessPending once immediately and then every interval
// until ctx is done.
func (w *SyncWorker) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "Periodic sync failed", log.FieldError, err.Error())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *SyncWorker) syncExpense(ctx context.Context, e core.Expense) error {
	exists, err := w.mirror.HasExpense(ctx, e)
	if err != nil {
		w.markError(ctx, e.ID)
		return fmt.Errorf("check existing row: %w", err)
	}

	if !exists {
		ref, err := w.mirror.AppendExpense(ctx, e)
		if err != nil {
			w.markError(ctx, e.ID)
			return err
		}
		w.logger.InfoContext(ctx, "Expense appended to sheet",
			log.FieldExpenseID, e.ID,
			log.FieldSheetsRef, ref)
	}

	if err := w.storage.MarkSynced(ctx, e.ID); err != nil {
		return err
	}
	return nil
}

func (w *SyncWorker) markError(ctx context.Context, id string) {
	if err := w.storage.MarkSyncError(ctx, id); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark sync error",
			log.FieldExpenseID, id,
			log.FieldError, err.Error())
	}
}
