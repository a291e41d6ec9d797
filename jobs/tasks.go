package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskLedgerReconcileScan walks every tenant and compares the posted
	// journal against the ledger projection.
	TaskLedgerReconcileScan = "ledger:reconcile_scan"
	// TaskLedgerRebuild tears down and replays one tenant's projection.
	TaskLedgerRebuild = "ledger:rebuild"
	// TaskReportsWarmup pre-builds the core reports so the first reader of
	// the day hits a warm cache.
	TaskReportsWarmup = "reports:warmup"
	// TaskPeriodsCloseReminder nudges tenants whose previous accounting
	// period is still open.
	TaskPeriodsCloseReminder = "periods:close_reminder"
)

// ReconcileScanPayload scopes a reconciliation scan. An empty TenantID means
// every tenant with a chart of accounts.
type ReconcileScanPayload struct {
	TenantID string `json:"tenantId,omitempty"`
	AutoFix  bool   `json:"autoFix,omitempty"`
}

// NewReconcileScanTask constructs an Asynq task for a drift scan.
func NewReconcileScanTask(payload ReconcileScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcileScan, data), nil
}

// LedgerRebuildPayload targets one tenant, optionally narrowed to a single
// account.
type LedgerRebuildPayload struct {
	TenantID  string `json:"tenantId"`
	AccountID *int64 `json:"accountId,omitempty"`
}

// NewLedgerRebuildTask constructs an Asynq task for a projection rebuild.
func NewLedgerRebuildTask(payload LedgerRebuildPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRebuild, data), nil
}

// ReportsWarmupPayload scopes a warmup run. An empty TenantID warms every
// tenant.
type ReportsWarmupPayload struct {
	TenantID string `json:"tenantId,omitempty"`
}

// NewReportsWarmupTask constructs an Asynq task for report cache warmup.
func NewReportsWarmupTask(payload ReportsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, data), nil
}

// CloseReminderPayload scopes a close-reminder run.
type CloseReminderPayload struct {
	TenantID string `json:"tenantId,omitempty"`
}

// NewCloseReminderTask constructs an Asynq task for period close reminders.
func NewCloseReminderTask(payload CloseReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPeriodsCloseReminder, data), nil
}
