package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"coown/internal/amqp"
	"coown/internal/config"
	"coown/internal/core"
	"coown/internal/log"
	"coown/internal/ops"
	"coown/internal/services"
	"coown/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "run a single materialization pass and exit")
	flag.Parse()

	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := log.New(log.Config{
		Level:     log.DefaultConfig().Level,
		Component: log.ComponentMaterializer,
		Format:    cfg.LogFormat,
	})
	log.SetDefault(logger)

	logger.Info("Starting materializer")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	store, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err, "backend", cfg.StorageBackend)
		os.Exit(1)
	}
	defer store.Close()

	// Event publishing is optional; without it expenses stay local.
	var events services.EventPublisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			defer client.Close()
			events = client
			logger.Info("AMQP client initialized")
		}
	} else {
		logger.Info("AMQP disabled - expense events will not be published")
	}

	materializer := services.NewMaterializer(store, store, store, events)

	registry := prometheus.NewRegistry()
	metrics := ops.NewMetrics(registry)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runPass := func(now time.Time) {
		start := time.Now()
		asOf := core.NewDate(now.Year(), int(now.Month()), now.Day())
		summary, err := materializer.RunPass(ctx, asOf)
		if err != nil {
			logger.Error("Materialization pass failed", "error", err)
			return
		}
		metrics.PassesTotal.Inc()
		metrics.ProcessedTotal.Add(float64(summary.Processed))
		metrics.ErrorsTotal.Add(float64(summary.Errors))
		metrics.ExpensesCreated.Add(float64(summary.Created))
		metrics.TemplatesRetired.Add(float64(summary.Retired))
		metrics.PassDurationSecond.Observe(time.Since(start).Seconds())
	}

	if *once {
		runPass(time.Now())
		return
	}

	opsServer := ops.NewServer(cfg.OpsAddr, registry)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("Ops server listening", "addr", cfg.OpsAddr)
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return opsServer.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		ticker := time.NewTicker(cfg.PassInterval)
		defer ticker.Stop()

		logger.Info("Materializer configured",
			"interval", cfg.PassInterval,
			"backend", cfg.StorageBackend)

		// Run once on startup rather than waiting a full interval.
		runPass(time.Now())

		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				runPass(now)
			}
		}
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Materializer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Materializer shutdown complete")
}
