package periods

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
	"github.com/meridian-gl/meridian-gl/internal/ledger/journal"
	"github.com/meridian-gl/meridian-gl/internal/money"
	"github.com/meridian-gl/meridian-gl/internal/shared"
)

// Account codes the year-end close works against. 3200 is seeded as a system
// account; 3300 is optional and falls back to 3200 when absent.
const (
	RetainedEarningsCode    = "3200"
	CurrentYearEarningsCode = "3300"
)

// JournalPort is the slice of the journal engine the controller consumes.
type JournalPort interface {
	DraftCountInRange(ctx context.Context, tenant uuid.UUID, from, to time.Time) (int, error)
	PostedReferenceExists(ctx context.Context, tenant uuid.UUID, reference string) (bool, error)
	CreateAndPost(ctx context.Context, in journal.CreateInput, actor uuid.UUID, opts journal.PostOptions) (journal.Entry, error)
}

// ReportSource supplies the balance checks closes depend on.
type ReportSource interface {
	TrialBalanceTotals(ctx context.Context, tenant uuid.UUID, asOf time.Time) (debit, credit decimal.Decimal, err error)
	NetIncome(ctx context.Context, tenant uuid.UUID, from, to time.Time) (decimal.Decimal, error)
}

// AccountLookup resolves chart codes for the closing entry.
type AccountLookup interface {
	GetByCode(ctx context.Context, tenant uuid.UUID, code string) (accounts.Account, error)
}

// AuditPort records period mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort invalidates cached reports after a period mutation.
type CachePort interface {
	Bump(ctx context.Context, tenant uuid.UUID) error
}

// Service governs which months accept postings and runs the year-end close.
type Service struct {
	repo     Repository
	journal  JournalPort
	reports  ReportSource
	accounts AccountLookup
	audit    AuditPort
	cache    CachePort
	now      func() time.Time
}

// NewService wires the period controller.
func NewService(repo Repository, jp JournalPort, rs ReportSource, al AccountLookup, audit AuditPort, cache CachePort) *Service {
	return &Service{
		repo:     repo,
		journal:  jp,
		reports:  rs,
		accounts: al,
		audit:    audit,
		cache:    cache,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CanPostToDate reports whether the month containing date accepts postings.
// A month with no period row is open.
func (s *Service) CanPostToDate(ctx context.Context, tenant uuid.UUID, date time.Time) (bool, Status, error) {
	status, err := s.repo.StatusFor(ctx, tenant, date.Year(), int(date.Month()))
	if err != nil {
		return false, "", err
	}
	if status == "" {
		return true, StatusOpen, nil
	}
	return status == StatusOpen, status, nil
}

// GetPeriod returns the stored period row for the month.
func (s *Service) GetPeriod(ctx context.Context, tenant uuid.UUID, year, month int) (Period, error) {
	if err := validateYearMonth(year, month); err != nil {
		return Period{}, err
	}
	return s.repo.Get(ctx, tenant, year, month)
}

// ListPeriods returns every stored period row for the year, in month order.
func (s *Service) ListPeriods(ctx context.Context, tenant uuid.UUID, year int) ([]Period, error) {
	return s.repo.ListYear(ctx, tenant, year)
}

// ClosePeriod transitions a month to closed. It rejects while draft entries
// are dated inside the month or the trial balance as of month end does not
// balance. The close holds the tenant posting lock exclusively, so no post
// can commit between the checks and the status write.
func (s *Service) ClosePeriod(ctx context.Context, tenant uuid.UUID, year, month int, actor uuid.UUID, notes string) (Period, error) {
	if err := validateYearMonth(year, month); err != nil {
		return Period{}, err
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.AcquireCloseLock(ctx, shared.PostingLockKey(tenant)); err != nil {
			return err
		}
		current, found, err := tx.GetForUpdate(ctx, tenant, year, month)
		if err != nil {
			return err
		}
		status := StatusOpen
		if found {
			status = current.Status
		}
		if status == StatusClosed {
			return ErrAlreadyClosed
		}
		if !status.CanTransitionTo(StatusClosed) {
			return ErrLocked
		}

		from, to := monthBounds(year, month)
		drafts, err := s.journal.DraftCountInRange(ctx, tenant, from, to)
		if err != nil {
			return err
		}
		if drafts > 0 {
			return fmt.Errorf("%w: %d draft entries dated in %d-%02d", ErrDraftsInPeriod, drafts, year, month)
		}

		debit, credit, err := s.reports.TrialBalanceTotals(ctx, tenant, to)
		if err != nil {
			return err
		}
		if !money.WithinTolerance(debit.Sub(credit)) {
			return fmt.Errorf("%w: debit %s vs credit %s", ErrOutOfBalance, money.Format(debit), money.Format(credit))
		}

		at := s.now().UTC()
		next := current
		next.TenantID = tenant
		next.Year = year
		next.Month = month
		next.Status = StatusClosed
		next.Notes = notes
		next.ClosedAt = &at
		next.ClosedBy = &actor
		period, err = tx.Upsert(ctx, next)
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, tenant, actor, "period.close", fmt.Sprintf("%d-%02d", year, month), map[string]any{"notes": notes})
	s.bump(ctx, tenant)
	return period, nil
}

// ReopenPeriod transitions a closed month back to open. Locked months never
// reopen. The reason is mandatory and stored for audit.
func (s *Service) ReopenPeriod(ctx context.Context, tenant uuid.UUID, year, month int, actor uuid.UUID, reason string) (Period, error) {
	if err := validateYearMonth(year, month); err != nil {
		return Period{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return Period{}, ErrReasonRequired
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.AcquireCloseLock(ctx, shared.PostingLockKey(tenant)); err != nil {
			return err
		}
		current, found, err := tx.GetForUpdate(ctx, tenant, year, month)
		if err != nil {
			return err
		}
		if !found || current.Status == StatusOpen {
			return ErrAlreadyOpen
		}
		if !current.Status.CanTransitionTo(StatusOpen) {
			return ErrLocked
		}

		at := s.now().UTC()
		next := current
		next.Status = StatusOpen
		next.ReopenedAt = &at
		next.ReopenedBy = &actor
		next.ReopenReason = reason
		period, err = tx.Upsert(ctx, next)
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, tenant, actor, "period.reopen", fmt.Sprintf("%d-%02d", year, month), map[string]any{"reason": reason})
	s.bump(ctx, tenant)
	return period, nil
}

// YearEndClose posts the closing entry moving the year's net income into
// retained earnings, then force-locks all twelve months. A posted entry with
// the YE-{year} reference marks the year as closed and guards reruns.
func (s *Service) YearEndClose(ctx context.Context, tenant uuid.UUID, fiscalYear int, actor uuid.UUID) (YearEndResult, error) {
	if err := validateYearMonth(fiscalYear, 1); err != nil {
		return YearEndResult{}, err
	}
	reference := fmt.Sprintf("YE-%d", fiscalYear)
	done, err := s.journal.PostedReferenceExists(ctx, tenant, reference)
	if err != nil {
		return YearEndResult{}, err
	}
	if done {
		return YearEndResult{}, fmt.Errorf("%w: %s already posted", ErrYearAlreadyClosed, reference)
	}

	from := time.Date(fiscalYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(fiscalYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	net, err := s.reports.NetIncome(ctx, tenant, from, to)
	if err != nil {
		return YearEndResult{}, err
	}

	result := YearEndResult{FiscalYear: fiscalYear, NetIncome: net}
	if !money.WithinTolerance(net) {
		entry, err := s.postClosingEntry(ctx, tenant, fiscalYear, actor, net, reference, to)
		if err != nil {
			return result, err
		}
		result.ClosingEntry = &ClosingEntry{
			EntryID:     entry.ID,
			EntryNumber: entry.EntryNumber,
			Amount:      money.Round2(net.Abs()),
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.AcquireCloseLock(ctx, shared.PostingLockKey(tenant)); err != nil {
			return err
		}
		locked, err := tx.LockYear(ctx, tenant, fiscalYear, actor, s.now().UTC())
		if err != nil {
			return err
		}
		result.PeriodsLocked = locked
		return nil
	})
	if err != nil {
		return result, err
	}

	meta := map[string]any{"net_income": money.Format(net), "periods_locked": result.PeriodsLocked}
	if result.ClosingEntry != nil {
		meta["entry_number"] = result.ClosingEntry.EntryNumber
	}
	s.record(ctx, tenant, actor, "period.year_end_close", strconv.Itoa(fiscalYear), meta)
	s.bump(ctx, tenant)
	return result, nil
}

// postClosingEntry zeroes current-year earnings into retained earnings. When
// the chart has no dedicated 3300 account both legs land on 3200, which still
// leaves an audit trail of the close without moving the balance.
func (s *Service) postClosingEntry(ctx context.Context, tenant uuid.UUID, fiscalYear int, actor uuid.UUID, net decimal.Decimal, reference string, entryDate time.Time) (journal.Entry, error) {
	retained, err := s.accounts.GetByCode(ctx, tenant, RetainedEarningsCode)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return journal.Entry{}, fmt.Errorf("periods: retained earnings account %s missing", RetainedEarningsCode)
		}
		return journal.Entry{}, err
	}
	earnings := retained
	switch cye, err := s.accounts.GetByCode(ctx, tenant, CurrentYearEarningsCode); {
	case err == nil:
		earnings = cye
	case !errors.Is(err, accounts.ErrNotFound):
		return journal.Entry{}, err
	}

	amount := money.Round2(net.Abs())
	debitID, creditID := earnings.ID, retained.ID
	if net.IsNegative() {
		debitID, creditID = retained.ID, earnings.ID
	}
	in := journal.CreateInput{
		TenantID:    tenant,
		EntryDate:   entryDate,
		Description: fmt.Sprintf("Year-end close %d", fiscalYear),
		Reference:   reference,
		SourceType:  "year_end_close",
		SourceID:    strconv.Itoa(fiscalYear),
		CreatedBy:   actor,
		Lines: []journal.LineInput{
			{AccountID: debitID, Debit: amount, Description: "Close current year earnings"},
			{AccountID: creditID, Credit: amount, Description: "Transfer to retained earnings"},
		},
	}
	return s.journal.CreateAndPost(ctx, in, actor, journal.PostOptions{AllowClosed: true})
}

func (s *Service) record(ctx context.Context, tenant, actor uuid.UUID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenant,
		ActorID:  actor,
		Action:   action,
		Entity:   "accounting_period",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) bump(ctx context.Context, tenant uuid.UUID) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Bump(ctx, tenant)
}
