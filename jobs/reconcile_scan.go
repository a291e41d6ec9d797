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
	"github.com/meridian-gl/meridian-gl/internal/ledger/reconcile"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReconcileScanJob sweeps tenants comparing the posted journal against the
// ledger projection and publishes the observed drift.
type ReconcileScanJob struct {
	Reconcile *reconcile.Service
	Pool      *pgxpool.Pool
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	// AutoFix rebuilds drifted tenants without waiting for an operator.
	// Payloads may also request it per run.
	AutoFix bool
	clock   func() time.Time
}

// NewReconcileScanJob wires dependencies for the scan handler.
func NewReconcileScanJob(svc *reconcile.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics, autoFix bool) *ReconcileScanJob {
	return &ReconcileScanJob{
		Reconcile: svc,
		Pool:      pool,
		Logger:    logger,
		Metrics:   metrics,
		AutoFix:   autoFix,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes reconciliation scan tasks.
func (j *ReconcileScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("reconcile scan: handler not configured")
	}
	var payload ReconcileScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerReconcileScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	logger := j.logger()
	logger.Info("starting reconciliation scan")

	tenants, err := resolveTenants(ctx, j.Pool, payload.TenantID)
	if err != nil {
		resultErr = err
		logger.Error("load scan tenants", slog.Any("error", err))
		return resultErr
	}
	if len(tenants) == 0 {
		logger.Info("no tenants discovered for scan")
		return resultErr
	}

	autoFix := j.AutoFix || payload.AutoFix
	scanned := 0
	drifted := 0
	for _, tenant := range tenants {
		report, err := j.scanTenant(ctx, tenant, autoFix)
		if err != nil {
			resultErr = err
			logger.Error("scan tenant", slog.String("tenant_id", tenant.String()), slog.Any("error", err))
			continue
		}
		scanned++
		if !report.InSync {
			drifted++
		}
	}

	logger.Info("completed reconciliation scan",
		slog.Int("tenants", scanned),
		slog.Int("drifted", drifted),
		slog.Bool("auto_fix", autoFix),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *ReconcileScanJob) scanTenant(ctx context.Context, tenant uuid.UUID, autoFix bool) (reconcile.Report, error) {
	if j.Reconcile == nil {
		return reconcile.Report{}, errors.New("reconcile scan: service not configured")
	}
	// Bound each tenant so one pathological chart cannot stall the sweep.
	tenantCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	report, err := j.Reconcile.Reconcile(tenantCtx, tenant, nil)
	if err != nil {
		return reconcile.Report{}, err
	}
	j.metrics().SetDrift(tenant.String(), len(report.Drifts))

	logger := j.logger().With(slog.String("tenant_id", tenant.String()))
	for _, d := range report.Drifts {
		logger.Warn("ledger drift detected",
			slog.Int64("account_id", d.AccountID),
			slog.String("account_code", d.Code),
			slog.String("implied", d.ImpliedBalance.String()),
			slog.String("projected", d.ProjectedBalance.String()),
			slog.String("difference", d.Difference.String()),
		)
	}
	if report.InSync || !autoFix {
		return report, nil
	}

	fix, err := j.Reconcile.AutoFix(tenantCtx, tenant, nil, uuid.Nil)
	if err != nil {
		return report, err
	}
	logger.Info("ledger drift repaired",
		slog.Int("accounts", len(fix.Before.Drifts)),
		slog.Int("rows_replayed", fix.Rebuild.Transactions),
		slog.Bool("repaired", fix.Repaired),
	)
	if fix.Repaired {
		j.metrics().SetDrift(tenant.String(), 0)
	}
	return report, nil
}

func (j *ReconcileScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerReconcileScan))
	}
	return slog.Default().With(slog.String("job", TaskLedgerReconcileScan))
}

func (j *ReconcileScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReconcileScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
