package journal

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-gl/meridian-gl/internal/money"
)

// Status is the journal entry lifecycle state.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPosted   Status = "posted"
	StatusReversed Status = "reversed"
)

// Entry is a journal entry header with its lines. Posted and reversed
// entries are immutable; only drafts can be deleted.
type Entry struct {
	ID                int64
	TenantID          uuid.UUID
	EntryNumber       string
	EntryDate         time.Time
	Description       string
	Reference         string
	SourceType        string
	SourceID          string
	Status            Status
	TotalDebit        decimal.Decimal
	TotalCredit       decimal.Decimal
	PostedBy          *uuid.UUID
	PostedAt          *time.Time
	ReversedEntryID   *int64
	ReversedByEntryID *int64
	CreatedBy         uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Lines             []Line
}

// IsReversal reports whether the entry was generated to reverse another.
func (e Entry) IsReversal() bool {
	return e.ReversedEntryID != nil
}

// Line is one side of a journal entry. Exactly one of debit and credit is
// positive.
type Line struct {
	ID          int64
	EntryID     int64
	LineNumber  int
	AccountID   int64
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// LineInput is one requested line of a new entry.
type LineInput struct {
	AccountID   int64
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// CreateInput is a journal entry request from a document module or an
// operator. SourceType/SourceID link the entry back to the document that
// produced it.
type CreateInput struct {
	TenantID    uuid.UUID
	EntryDate   time.Time
	Description string
	Reference   string
	SourceType  string
	SourceID    string
	CreatedBy   uuid.UUID
	Lines       []LineInput
}

// PostOptions tune the posting gate. AllowClosed lets system postings such
// as the year-end closing entry land in a closed (never locked) month.
type PostOptions struct {
	AllowClosed bool
}

// ListFilter narrows List results.
type ListFilter struct {
	Status     Status
	From       *time.Time
	To         *time.Time
	SourceType string
	Limit      int
	Offset     int
}

var (
	// ErrNotFound indicates the entry does not exist for the tenant.
	ErrNotFound = errors.New("journal: entry not found")
	// ErrTooFewLines indicates fewer than two lines.
	ErrTooFewLines = errors.New("journal: entry needs at least two lines")
	// ErrUnbalanced indicates total debit != total credit. The comparison is
	// exact, not tolerance-based: an entry off by a tenth of a cent is wrong.
	ErrUnbalanced = errors.New("journal: lines must balance exactly")
	// ErrAccountUnknown indicates a line references a missing, foreign or
	// deleted account.
	ErrAccountUnknown = errors.New("journal: account not usable for posting")
	// ErrHeaderPosting indicates a line references a header account.
	ErrHeaderPosting = errors.New("journal: header account cannot take postings")
	// ErrNotDraft indicates the operation needs a draft entry.
	ErrNotDraft = errors.New("journal: entry is not a draft")
	// ErrNotPosted indicates the operation needs a posted entry.
	ErrNotPosted = errors.New("journal: entry is not posted")
	// ErrAlreadyReversed indicates the entry has already been reversed.
	ErrAlreadyReversed = errors.New("journal: entry already reversed")
	// ErrReverseReversal indicates an attempt to reverse a reversal entry.
	ErrReverseReversal = errors.New("journal: reversal entries cannot be reversed")
	// ErrPeriodClosed indicates the entry date falls in a closed period.
	ErrPeriodClosed = errors.New("journal: accounting period is closed")
	// ErrPeriodLocked indicates the entry date falls in a locked period.
	ErrPeriodLocked = errors.New("journal: accounting period is locked")
	// ErrNumberConflict indicates an entry number collision; safe to retry.
	ErrNumberConflict = errors.New("journal: entry number conflict")
	// ErrConcurrentUpdate indicates the entry changed under a concurrent
	// transaction between read and write.
	ErrConcurrentUpdate = errors.New("journal: entry changed concurrently")
)

// Validate checks the request shape: at least two lines, non-negative
// amounts, one side per line, and an exact debit/credit balance.
func (in CreateInput) Validate() error {
	if in.TenantID == uuid.Nil {
		return errors.New("journal: tenant required")
	}
	if in.EntryDate.IsZero() {
		return errors.New("journal: entry date required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit decimal.Decimal
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("journal: line %d missing account", idx+1)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("journal: line %d negative amount", idx+1)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("journal: line %d cannot carry both debit and credit", idx+1)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("journal: line %d has no amount", idx+1)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !money.Equal(debit, credit) {
		return fmt.Errorf("%w: debit %s vs credit %s", ErrUnbalanced, money.Format(debit), money.Format(credit))
	}
	if in.SourceID != "" && in.SourceType == "" {
		return errors.New("journal: source type required when source id is set")
	}
	return nil
}

// Totals sums the requested lines.
func (in CreateInput) Totals() (debit, credit decimal.Decimal) {
	for _, line := range in.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// reverseLines mirrors every line with debit and credit swapped, so the
// reversal cancels the original by construction.
func reverseLines(lines []Line) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:   line.AccountID,
			Description: line.Description,
			Debit:       line.Credit,
			Credit:      line.Debit,
		})
	}
	return out
}
