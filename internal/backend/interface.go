package backend

import (
	"context"

	"budgetchat/internal/services"
)

// CleanupFunc releases resources held by a backend
type CleanupFunc func() error

// Result is a ready expense service plus the hooks the server needs.
type Result struct {
	Service *services.ExpenseService
	// Ready reports whether the storage can serve requests.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Config holds configuration for backend creation
type Config struct {
	Type Type

	// SQLite specific
	SQLiteDBPath string

	// Optional publisher for the sheet mirror
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// Type names a storage backend
type Type string

const (
	SQLite Type = "sqlite"
	Memory Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is known
func (t Type) IsValid() bool {
	switch t {
	case SQLite, Memory:
		return true
	default:
		return false
	}
}
