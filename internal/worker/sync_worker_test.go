package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"budgetchat/internal/amqp"
	"budgetchat/internal/core"
	"budgetchat/internal/sheets/memory"
	"budgetchat/internal/storage"
)

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seed(t *testing.T, repo *storage.SQLiteRepository, category string, at time.Time) core.Expense {
	t.Helper()
	e, err := repo.Create(context.Background(), core.Expense{
		Amount:    decimal.RequireFromString("12"),
		Currency:  "USD",
		Category:  category,
		Date:      "2025-01-15",
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return e
}

func TestSyncWorker_HandleMessage(t *testing.T) {
	repo := newRepo(t)
	mirror := memory.New()
	w := NewSyncWorker(repo, mirror, 10, nil)
	e := seed(t, repo, "Coffee", time.Now())

	if err := w.HandleMessage(context.Background(), amqp.NewExpenseCreatedMessage(e.ID)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(mirror.Rows()) != 1 {
		t.Fatalf("rows = %d, want 1", len(mirror.Rows()))
	}
	status, _ := repo.SyncStatusOf(context.Background(), e.ID)
	if status != storage.SyncSynced {
		t.Errorf("status = %q, want synced", status)
	}

	// Redelivery must not duplicate the row.
	if err := w.HandleMessage(context.Background(), amqp.NewExpenseCreatedMessage(e.ID)); err != nil {
		t.Fatalf("HandleMessage (redelivery): %v", err)
	}
	if len(mirror.Rows()) != 1 {
		t.Errorf("rows after redelivery = %d, want 1", len(mirror.Rows()))
	}
}

func TestSyncWorker_HandleMessageUnknownID(t *testing.T) {
	w := NewSyncWorker(newRepo(t), memory.New(), 10, nil)
	if err := w.HandleMessage(context.Background(), amqp.NewExpenseCreatedMessage("missing")); err != nil {
		t.Fatalf("unknown ids should be dropped, got %v", err)
	}
}

func TestSyncWorker_HandleMessageAppendFailure(t *testing.T) {
	repo := newRepo(t)
	mirror := memory.New()
	mirror.FailNext = errors.New("quota exceeded")
	w := NewSyncWorker(repo, mirror, 10, nil)
	e := seed(t, repo, "Coffee", time.Now())

	if err := w.HandleMessage(context.Background(), amqp.NewExpenseCreatedMessage(e.ID)); err == nil {
		t.Fatal("expected error so the message is requeued")
	}
	status, _ := repo.SyncStatusOf(context.Background(), e.ID)
	if status != storage.SyncError {
		t.Errorf("status = %q, want error", status)
	}
}

func TestSyncWorker_ProcessPending(t *testing.T) {
	repo := newRepo(t)
	mirror := memory.New()
	w := NewSyncWorker(repo, mirror, 10, nil)
	base := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	first := seed(t, repo, "first", base)
	seed(t, repo, "second", base.Add(time.Minute))
	if err := repo.MarkSynced(context.Background(), first.ID); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	n, err := w.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if n != 1 {
		t.Errorf("synced = %d, want 1", n)
	}
	rows := mirror.Rows()
	if len(rows) != 1 || rows[0][2] != "second" {
		t.Errorf("rows = %v", rows)
	}

	n, _ = w.ProcessPending(context.Background())
	if n != 0 {
		t.Errorf("second sweep synced %d, want 0", n)
	}
}

func TestSyncWorker_RunSweeperStopsOnCancel(t *testing.T) {
	repo := newRepo(t)
	mirror := memory.New()
	w := NewSyncWorker(repo, mirror, 10, nil)
	seed(t, repo, "Coffee", time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.RunSweeper(ctx, time.Hour) }()

	deadline := time.After(2 * time.Second)
	for len(mirror.Rows()) == 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper did not run its first pass")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("RunSweeper = %v, want context.Canceled", err)
	}
}
