package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-gl/meridian-gl/internal/jobs"
	"github.com/meridian-gl/meridian-gl/internal/ledger/projection"
)

// LedgerRebuildJob replays one tenant's ledger projection from the posted
// journal. Enqueued on demand, usually after a scan reports drift.
type LedgerRebuildJob struct {
	Projector *projection.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLedgerRebuildJob wires dependencies for the rebuild handler.
func NewLedgerRebuildJob(svc *projection.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerRebuildJob {
	return &LedgerRebuildJob{Projector: svc, Logger: logger, Metrics: metrics}
}

// Handle processes ledger rebuild tasks.
func (j *LedgerRebuildJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Projector == nil {
		return errors.New("ledger rebuild: handler not configured")
	}
	var payload LedgerRebuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tenant, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerRebuild)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("tenant_id", tenant.String()))
	if payload.AccountID != nil {
		logger = logger.With(slog.Int64("account_id", *payload.AccountID))
	}
	logger.Info("starting ledger rebuild")

	start := time.Now()
	result, err := j.Projector.Rebuild(ctx, tenant, payload.AccountID)
	if err != nil {
		resultErr = err
		logger.Error("ledger rebuild failed", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed ledger rebuild",
		slog.Int("accounts", result.Accounts),
		slog.Int("transactions", result.Transactions),
		slog.Int("months", result.Months),
		slog.Int64("deleted", result.Deleted),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *LedgerRebuildJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerRebuild))
	}
	return slog.Default().With(slog.String("job", TaskLedgerRebuild))
}

func (j *LedgerRebuildJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
