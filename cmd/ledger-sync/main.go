package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"coown/internal/amqp"
	"coown/internal/cache"
	"coown/internal/config"
	"coown/internal/log"
	"coown/internal/sheets"
	"coown/internal/sheets/google"
	"coown/internal/sheets/memory"
	"coown/internal/storage"
	"coown/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := log.New(log.Config{
		Level:     log.DefaultConfig().Level,
		Component: log.ComponentWorker,
		Format:    cfg.LogFormat,
	})
	log.SetDefault(logger)

	logger.Info("Starting ledger-sync")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for ledger-sync")
		os.Exit(1)
	}

	store, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err, "backend", cfg.StorageBackend)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var statement sheets.StatementAppender
	if cfg.SheetsEnabled() {
		client, err := google.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName,
			cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		statement = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		// Messages are still drained so the queue does not grow unbounded.
		statement = memory.New()
		logger.Info("Google Sheets disabled - exporting to in-memory statement")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	seen := cache.NewLRUCache[struct{}](1024, worker.SeenTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(seen)
	cacheManager.StartCleanup(worker.SeenTTL)
	defer cacheManager.Stop()

	exportWorker := worker.NewExportWorker(store, statement, seen)

	err = amqpClient.ConsumeExpenseCreated(ctx, func(msg *amqp.ExpenseCreatedMessage) error {
		return exportWorker.HandleExpenseCreated(ctx, msg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Ledger-sync shutdown complete")
}
