package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"budgetchat/internal/core"
	"budgetchat/internal/store"

	_ "modernc.org/sqlite"
)

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// SyncStatus tracks the Google Sheets mirror state of a row.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

const table = "expenses"

var expenseColumns = []string{"id", "amount", "currency", "category", "date", "time", "note", "created_at"}

// Saving an existing ID replaces the row and queues it for sync again.
const upsertClause = `ON CONFLICT(id) DO UPDATE SET
	amount = excluded.amount, currency = excluded.currency, category = excluded.category,
	date = excluded.date, time = excluded.time, note = excluded.note,
	created_at = excluded.created_at, sync_status = excluded.sync_status, synced_at = NULL`

// builder emits "?" placeholders, which modernc.org/sqlite understands.
var builder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.ExpenseStore = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create implements store.ExpenseWriter. Rows start as pending sync; an
// existing ID is overwritten.
func (r *SQLiteRepository) Create(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	query, args, err := builder.Insert(table).
		Columns(append(expenseColumns, "sync_status")...).
		Values(e.ID, e.Amount.String(), e.Currency, e.Category, e.Date, e.Time, e.Note,
			e.CreatedAt.Format(timestampLayout), string(SyncPending)).
		Suffix(upsertClause).
		ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"amount", e.Amount.String(),
		"currency", e.Currency,
		"category", e.Category,
		"date", e.Date)

	return e, nil
}

// Get implements store.ExpenseReader.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.Expense, error) {
	query, args, err := selectExpenses().Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build select: %w", err)
	}
	e, err := scanExpense(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	return e, nil
}

// List implements store.ExpenseLister.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]core.Expense, error) {
	return r.query(ctx, "list expenses", selectExpenses().
		OrderBy("created_at DESC", "rowid DESC").
		Limit(uint64(store.NormalizeLimit(limit))))
}

// PendingSync returns up to limit expenses not yet mirrored, oldest first.
// Rows in the error state are retried as well.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]core.Expense, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	return r.query(ctx, "get pending sync expenses", selectExpenses().
		Where(squirrel.Eq{"sync_status": []string{string(SyncPending), string(SyncError)}}).
		OrderBy("created_at ASC", "rowid ASC").
		Limit(uint64(limit)))
}

// MarkSynced marks an expense as successfully synced
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if err := r.setSyncStatus(ctx, id, SyncSynced); err != nil {
		return fmt.Errorf("mark expense synced: %w", err)
	}
	slog.InfoContext(ctx, "Expense marked as synced", "id", id)
	return nil
}

// MarkSyncError marks an expense as having sync errors
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if err := r.setSyncStatus(ctx, id, SyncError); err != nil {
		return fmt.Errorf("mark expense sync error: %w", err)
	}
	slog.WarnContext(ctx, "Expense marked with sync error", "id", id)
	return nil
}

// SyncStatusOf returns the mirror state of an expense.
func (r *SQLiteRepository) SyncStatusOf(ctx context.Context, id string) (SyncStatus, error) {
	query, args, err := builder.Select("sync_status").From(table).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return "", fmt.Errorf("build select: %w", err)
	}
	var status string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", core.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get sync status: %w", err)
	}
	return SyncStatus(status), nil
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id string, status SyncStatus) error {
	var syncedAt any
	if status == SyncSynced {
		syncedAt = r.now().UTC().Format(timestampLayout)
	}
	query, args, err := builder.Update(table).
		Set("sync_status", string(status)).
		Set("synced_at", syncedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func selectExpenses() squirrel.SelectBuilder {
	return builder.Select(expenseColumns...).From(table)
}

func (r *SQLiteRepository) query(ctx context.Context, op string, q squirrel.SelectBuilder) ([]core.Expense, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e                 core.Expense
		amount, createdAt string
	)
	if err := s.Scan(&e.ID, &amount, &e.Currency, &e.Category, &e.Date, &e.Time, &e.Note, &createdAt); err != nil {
		return core.Expense{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	e.Amount = d
	t, err := time.Parse(timestampLayout, createdAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse stored timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}

func collect(rows *sql.Rows) ([]core.Expense, error) {
	defer rows.Close()
	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}
