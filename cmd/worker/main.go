package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockline-erp/stockline/internal/app"
	"github.com/stockline-erp/stockline/internal/components"
	"github.com/stockline-erp/stockline/internal/counter"
	"github.com/stockline-erp/stockline/internal/disposal"
	"github.com/stockline-erp/stockline/internal/inventory"
	"github.com/stockline-erp/stockline/internal/platform/db"
	"github.com/stockline-erp/stockline/internal/sales"
	"github.com/stockline-erp/stockline/internal/shared"
	"github.com/stockline-erp/stockline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)

	counterRepo := counter.NewRepository(pool)
	counterService := counter.NewService(counterRepo, logger)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, logger, inventory.ServiceConfig{
		ShelfLifeMonths: cfg.BatchShelfLifeMonths,
	})

	componentRepo := components.NewRepository(pool)
	componentService := components.NewService(componentRepo, logger)

	disposalRepo := disposal.NewRepository(pool)
	disposalService := disposal.NewService(disposalRepo, componentService, inventoryService, counterService, auditLogger, logger)
	cleaner := disposal.NewCleaner(disposalService, inventoryService, logger, disposal.CleanupConfig{
		DormantMonths:   cfg.CleanupDormantMonths,
		ExpiryGraceDays: cfg.CleanupExpiryGraceDays,
	})

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, sales.ServiceConfig{
		SalesEarnCap: cfg.LoyaltySalesCap,
	}, logger)

	cleanupTask, err := jobs.NewInventoryCleanupTask(time.Now())
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}
	promoTask, err := jobs.NewPromoSweepTask(time.Now())
	if err != nil {
		logger.Error("build promo sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInventoryCleanup, Handler: jobs.NewInventoryCleanupHandler(cleaner, logger)},
			{Type: jobs.TaskPromoSweep, Handler: jobs.NewPromoSweepHandler(salesService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: promoTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
