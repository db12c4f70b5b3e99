package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"budgetchat/internal/amqp"
	"budgetchat/internal/cli"
	"budgetchat/internal/config"
	"budgetchat/internal/log"
	"budgetchat/internal/sheets"
	gsheet "budgetchat/internal/sheets/google"
	"budgetchat/internal/sheets/memory"
	"budgetchat/internal/storage"
	"budgetchat/internal/worker"
)

func main() {
	cfg, logger, err := cli.Bootstrap(log.ComponentWorker, (*config.Config).ValidateWorker)
	if err != nil {
		cli.Exit(logger, "Configuration validation failed", err)
	}

	logger.Info("Starting budgetchat-worker", log.FieldOperation, log.OpStartup)
	if err := run(cfg, logger); err != nil {
		cli.Exit(logger, "Worker exited with error", err)
	}
	logger.Info("Worker stopped", log.FieldOperation, log.OpShutdown)
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("initialize SQLite repository at %s: %w", cfg.SQLiteDBPath, err)
	}
	defer repo.Close()

	var mirror sheets.Mirror
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			return fmt.Errorf("initialize Google Sheets client: %w", err)
		}
		mirror = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		mirror = memory.New()
		logger.Warn("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqp.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(repo, mirror, cfg.SyncBatchSize, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.Consume(gctx, syncWorker.HandleMessage)
	})
	g.Go(func() error {
		return syncWorker.RunSweeper(gctx, cfg.SyncInterval)
	})

	logger.Info("Sync worker running",
		"queue", cfg.AMQPQueue,
		"batch_size", cfg.SyncBatchSize,
		"interval", cfg.SyncInterval.String())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
