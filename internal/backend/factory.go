package backend

import (
	"context"
	"fmt"

	"budgetchat/internal/amqp"
	"budgetchat/internal/log"
	"budgetchat/internal/services"
	"budgetchat/internal/storage"
	"budgetchat/internal/store/memory"
)

// Factory builds the expense service for the configured backend
type Factory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Create builds the backend described by config.
func (f *Factory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLite:
		return f.createSQLite(ctx, config)
	case Memory:
		return f.createMemory(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *Factory) createSQLite(ctx context.Context, config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// The broker is optional: without it rows stay pending and the worker's
	// sweep picks them up.
	var publisher services.Publisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, amqp.WithLogger(f.logger))
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without publishing",
				log.FieldError, err.Error())
		} else {
			publisher = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	svc := services.NewExpenseService(repo, publisher, f.logger)

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)

	return &Result{
		Service: svc,
		Ready:   repo.Ping,
		Cleanup: svc.Close,
	}, nil
}

func (f *Factory) createMemory(config Config) (*Result, error) {
	if config.AMQPURL != "" {
		f.logger.Warn("AMQP is ignored by the memory backend")
	}

	svc := services.NewExpenseService(memory.New(), nil, f.logger)
	f.logger.Info("Initialized memory backend")

	return &Result{
		Service: svc,
		Cleanup: svc.Close,
	}, nil
}
