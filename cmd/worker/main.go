package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-gl/meridian-gl/internal/app"
	jobmetrics "github.com/meridian-gl/meridian-gl/internal/jobs"
	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
	"github.com/meridian-gl/meridian-gl/internal/ledger/journal"
	"github.com/meridian-gl/meridian-gl/internal/ledger/periods"
	"github.com/meridian-gl/meridian-gl/internal/ledger/projection"
	"github.com/meridian-gl/meridian-gl/internal/ledger/reconcile"
	"github.com/meridian-gl/meridian-gl/internal/ledger/reports"
	"github.com/meridian-gl/meridian-gl/internal/observability"
	"github.com/meridian-gl/meridian-gl/internal/platform/cache"
	"github.com/meridian-gl/meridian-gl/internal/platform/db"
	"github.com/meridian-gl/meridian-gl/internal/shared"
	"github.com/meridian-gl/meridian-gl/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	taskMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	auditLogger := shared.NewAuditLogger(pool)
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)

	accountsSvc := accounts.NewService(accounts.NewRepository(pool), auditLogger)
	journalSvc := journal.NewService(journal.NewRepository(pool), auditLogger, reportCache)
	projectionSvc := projection.NewService(projection.NewRepository(pool), auditLogger)
	reportsSvc := reports.NewService(reports.NewRepository(pool), reportCache, nil)
	periodsSvc := periods.NewService(periods.NewRepository(pool), journalSvc, reportsSvc, accountsSvc, auditLogger, reportCache)
	reconcileSvc := reconcile.NewService(reconcile.NewRepository(pool), projectionSvc, auditLogger)

	scanJob := jobs.NewReconcileScanJob(reconcileSvc, pool, logger, taskMetrics, cfg.ReconAutoFix)
	rebuildJob := jobs.NewLedgerRebuildJob(projectionSvc, logger, taskMetrics)
	warmupJob := jobs.NewReportsWarmupJob(reportsSvc, pool, logger, taskMetrics)
	reminderJob := jobs.NewCloseReminderJob(periodsSvc, journalSvc, pool, logger, taskMetrics)

	scanTask, err := jobs.NewReconcileScanTask(jobs.ReconcileScanPayload{AutoFix: cfg.ReconAutoFix})
	if err != nil {
		logger.Error("build reconcile scan task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewReportsWarmupTask(jobs.ReportsWarmupPayload{})
	if err != nil {
		logger.Error("build reports warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	reminderTask, err := jobs.NewCloseReminderTask(jobs.CloseReminderPayload{})
	if err != nil {
		logger.Error("build close reminder task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerReconcileScan, Handler: scanJob.Handle},
			{Type: jobs.TaskLedgerRebuild, Handler: rebuildJob.Handle},
			{Type: jobs.TaskReportsWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskPeriodsCloseReminder, Handler: reminderJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReconScanCron, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.ReportWarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.CloseReminderCron, Task: reminderTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
