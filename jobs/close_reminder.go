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
	"github.com/meridian-gl/meridian-gl/internal/ledger/journal"
	"github.com/meridian-gl/meridian-gl/internal/ledger/periods"
)

// CloseReminderJob flags tenants whose previous accounting period is still
// open once the new month has started. It only reports; closing stays a
// deliberate operator action.
type CloseReminderJob struct {
	Periods *periods.Service
	Journal *journal.Service
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewCloseReminderJob wires dependencies for the reminder handler.
func NewCloseReminderJob(periodsSvc *periods.Service, journalSvc *journal.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *CloseReminderJob {
	return &CloseReminderJob{
		Periods: periodsSvc,
		Journal: journalSvc,
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes close reminder tasks.
func (j *CloseReminderJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Periods == nil {
		return errors.New("close reminder: handler not configured")
	}
	var payload CloseReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskPeriodsCloseReminder)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.now()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prevStart := firstOfMonth.AddDate(0, -1, 0)
	prevEnd := firstOfMonth.AddDate(0, 0, -1)

	logger := j.logger().With(slog.Int("year", prevStart.Year()), slog.Int("month", int(prevStart.Month())))
	logger.Info("starting close reminder sweep")

	tenants, err := resolveTenants(ctx, j.Pool, payload.TenantID)
	if err != nil {
		resultErr = err
		logger.Error("load reminder tenants", slog.Any("error", err))
		return resultErr
	}

	reminded := 0
	for _, tenant := range tenants {
		open, err := j.periodStillOpen(ctx, tenant, prevStart.Year(), int(prevStart.Month()))
		if err != nil {
			resultErr = err
			logger.Error("check period", slog.String("tenant_id", tenant.String()), slog.Any("error", err))
			continue
		}
		if !open {
			continue
		}
		drafts := 0
		if j.Journal != nil {
			if drafts, err = j.Journal.DraftCountInRange(ctx, tenant, prevStart, prevEnd); err != nil {
				resultErr = err
				logger.Error("count drafts", slog.String("tenant_id", tenant.String()), slog.Any("error", err))
				continue
			}
		}
		logger.Warn("previous period still open",
			slog.String("tenant_id", tenant.String()),
			slog.Int("draft_entries", drafts),
		)
		reminded++
	}

	logger.Info("completed close reminder sweep",
		slog.Int("tenants", len(tenants)),
		slog.Int("reminded", reminded),
	)
	return resultErr
}

func (j *CloseReminderJob) periodStillOpen(ctx context.Context, tenant uuid.UUID, year, month int) (bool, error) {
	p, err := j.Periods.GetPeriod(ctx, tenant, year, month)
	if errors.Is(err, periods.ErrNotFound) {
		// No row means the month was never closed.
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return p.Status == periods.StatusOpen, nil
}

func (j *CloseReminderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPeriodsCloseReminder))
	}
	return slog.Default().With(slog.String("job", TaskPeriodsCloseReminder))
}

func (j *CloseReminderJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CloseReminderJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
