package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridian-gl/meridian-gl/internal/jobs"
	"github.com/meridian-gl/meridian-gl/internal/ledger/reports"
)

// ReportsWarmupJob pre-builds the core financial reports for every tenant so
// the first read of the day lands on a warm cache.
type ReportsWarmupJob struct {
	Reports *reports.Service
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportsWarmupJob wires dependencies for the warmup handler.
func NewReportsWarmupJob(svc *reports.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportsWarmupJob {
	return &ReportsWarmupJob{
		Reports: svc,
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes report warmup tasks.
func (j *ReportsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload ReportsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReportsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting report warmup")

	tenants, err := resolveTenants(ctx, j.Pool, payload.TenantID)
	if err != nil {
		resultErr = err
		logger.Error("load warmup tenants", slog.Any("error", err))
		return resultErr
	}
	if len(tenants) == 0 {
		logger.Info("no tenants discovered for warmup")
		return resultErr
	}

	now := j.now()
	warmed := 0
	for _, tenant := range tenants {
		if err := j.warmTenant(ctx, tenant, now); err != nil {
			resultErr = err
			logger.Error("warm tenant", slog.String("tenant_id", tenant.String()), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}

	logger.Info("completed report warmup", slog.Int("tenants", warmed), slog.Duration("duration", time.Since(now)))
	return resultErr
}

func (j *ReportsWarmupJob) warmTenant(ctx context.Context, tenant uuid.UUID, now time.Time) error {
	if j.Reports == nil {
		return nil
	}
	// Tighten each tenant so one wide chart cannot stall the whole run.
	tenantCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	if _, err := j.Reports.TrialBalance(tenantCtx, tenant, now); err != nil {
		return err
	}
	if _, err := j.Reports.ProfitAndLoss(tenantCtx, tenant, monthStart, now); err != nil {
		return err
	}
	if _, err := j.Reports.BalanceSheet(tenantCtx, tenant, now); err != nil {
		return err
	}
	if _, err := j.Reports.CashFlow(tenantCtx, tenant, monthStart, now); err != nil {
		return err
	}
	return nil
}

func (j *ReportsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportsWarmup))
}

func (j *ReportsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReportsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
