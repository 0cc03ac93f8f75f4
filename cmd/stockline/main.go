package main

import (
	"context"
	"log/slog"
	"net/http"
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
	"github.com/stockline-erp/stockline/internal/invoicing"
	"github.com/stockline-erp/stockline/internal/platform/cache"
	"github.com/stockline-erp/stockline/internal/platform/db"
	"github.com/stockline-erp/stockline/internal/procurement"
	"github.com/stockline-erp/stockline/internal/sales"
	"github.com/stockline-erp/stockline/internal/shared"
	"github.com/stockline-erp/stockline/internal/workorders"
	"github.com/stockline-erp/stockline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(redisClient, 24*time.Hour)

	counterRepo := counter.NewRepository(pool)
	counterService := counter.NewService(counterRepo, logger)
	counterHandler := counter.NewHandler(logger, counterService)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, logger, inventory.ServiceConfig{
		ShelfLifeMonths: cfg.BatchShelfLifeMonths,
	})
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	componentRepo := components.NewRepository(pool)
	componentService := components.NewService(componentRepo, logger)
	componentHandler := components.NewHandler(logger, componentService)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, sales.ServiceConfig{
		SalesEarnCap: cfg.LoyaltySalesCap,
	}, logger)
	salesHandler := sales.NewHandler(logger, salesService)

	disposalRepo := disposal.NewRepository(pool)
	disposalService := disposal.NewService(disposalRepo, componentService, inventoryService, counterService, auditLogger, logger)
	cleaner := disposal.NewCleaner(disposalService, inventoryService, logger, disposal.CleanupConfig{
		DormantMonths:   cfg.CleanupDormantMonths,
		ExpiryGraceDays: cfg.CleanupExpiryGraceDays,
	})
	disposalHandler := disposal.NewHandler(logger, disposalService, cleaner)

	invoiceRepo := invoicing.NewRepository(pool)
	invoiceService := invoicing.NewService(invoiceRepo, inventoryService, counterService, logger,
		salesService, salesService, auditLogger, idempotencyStore)
	invoiceHandler := invoicing.NewHandler(logger, invoiceService)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo, componentService, counterService, auditLogger, logger)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	workOrderRepo := workorders.NewRepository(pool)
	workOrderService := workorders.NewService(workOrderRepo, componentService, counterService, auditLogger, logger)
	workOrderHandler := workorders.NewHandler(logger, workOrderService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		CounterHandler:     counterHandler,
		ComponentHandler:   componentHandler,
		InventoryHandler:   inventoryHandler,
		DisposalHandler:    disposalHandler,
		InvoiceHandler:     invoiceHandler,
		ProcurementHandler: procurementHandler,
		WorkOrderHandler:   workOrderHandler,
		SalesHandler:       salesHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
