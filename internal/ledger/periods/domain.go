package periods

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the posting-control state of one (tenant, year, month).
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
	StatusLocked Status = "locked"
)

// CanTransitionTo reports whether the state machine allows moving to target.
// Locked is terminal: only the year-end close produces it, and nothing
// leaves it.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusOpen:
		return target == StatusClosed || target == StatusLocked
	case StatusClosed:
		return target == StatusOpen || target == StatusLocked
	default:
		return false
	}
}

// Period is one accounting period row. The absence of a row means the month
// has never been touched and is open for posting.
type Period struct {
	ID           int64
	TenantID     uuid.UUID
	Year         int
	Month        int
	Status       Status
	Notes        string
	ClosedAt     *time.Time
	ClosedBy     *uuid.UUID
	ReopenedAt   *time.Time
	ReopenedBy   *uuid.UUID
	ReopenReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// YearEndResult summarises a year-end close.
type YearEndResult struct {
	FiscalYear    int
	NetIncome     decimal.Decimal
	ClosingEntry  *ClosingEntry
	PeriodsLocked int
}

// ClosingEntry records the journal entry the year-end close posted.
type ClosingEntry struct {
	EntryID     int64
	EntryNumber string
	Amount      decimal.Decimal
}

var (
	// ErrNotFound indicates no period row exists for the month.
	ErrNotFound = errors.New("periods: period not found")
	// ErrInvalidPeriod indicates the year or month is out of range.
	ErrInvalidPeriod = errors.New("periods: year or month out of range")
	// ErrAlreadyClosed rejects closing a period twice.
	ErrAlreadyClosed = errors.New("periods: period already closed")
	// ErrAlreadyOpen rejects reopening a period that is not closed.
	ErrAlreadyOpen = errors.New("periods: period already open")
	// ErrLocked rejects any transition out of the locked state.
	ErrLocked = errors.New("periods: period is locked")
	// ErrReasonRequired rejects a reopen without a stated reason.
	ErrReasonRequired = errors.New("periods: reopen reason required")
	// ErrDraftsInPeriod blocks a close while draft entries are dated inside it.
	ErrDraftsInPeriod = errors.New("periods: draft entries exist in period")
	// ErrOutOfBalance blocks a close when the trial balance does not balance.
	ErrOutOfBalance = errors.New("periods: trial balance out of balance")
	// ErrYearAlreadyClosed guards the year-end close against double invocation.
	ErrYearAlreadyClosed = errors.New("periods: fiscal year already closed")
)

func validateYearMonth(year, month int) error {
	if year < 1900 || year > 9999 || month < 1 || month > 12 {
		return fmt.Errorf("%w: %d-%02d", ErrInvalidPeriod, year, month)
	}
	return nil
}

// monthBounds returns the first and last day of a month in UTC.
func monthBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}
