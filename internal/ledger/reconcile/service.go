package reconcile

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
	"github.com/meridian-gl/meridian-gl/internal/ledger/projection"
	"github.com/meridian-gl/meridian-gl/internal/shared"
)

// Rebuilder replays the projection from the journal. Satisfied by the
// projection service.
type Rebuilder interface {
	Rebuild(ctx context.Context, tenant uuid.UUID, accountID *int64) (projection.RebuildResult, error)
}

// AuditPort records repair runs.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service detects drift between the posted journal and the projected
// ledger, and repairs it by replaying the projection.
type Service struct {
	repo    Repository
	rebuild Rebuilder
	audit   AuditPort
	now     func() time.Time
}

// NewService wires the reconciler.
func NewService(repo Repository, rebuild Rebuilder, audit AuditPort) *Service {
	return &Service{repo: repo, rebuild: rebuild, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Reconcile compares both sides account by account. Comparison is exact:
// a one-cent disagreement is drifted data, not rounding noise. Read-only.
func (s *Service) Reconcile(ctx context.Context, tenant uuid.UUID, accountID *int64) (Report, error) {
	if tenant == uuid.Nil {
		return Report{}, errors.New("reconcile: tenant required")
	}
	journalSide, err := s.repo.JournalTotals(ctx, tenant, accountID)
	if err != nil {
		return Report{}, err
	}
	ledgerSide, err := s.repo.LedgerTotals(ctx, tenant, accountID)
	if err != nil {
		return Report{}, err
	}
	return compare(tenant, s.now(), journalSide, ledgerSide), nil
}

// AutoFix reruns the projection for the drifted scope and verifies the
// result. A clean report short-circuits without touching anything.
func (s *Service) AutoFix(ctx context.Context, tenant uuid.UUID, accountID *int64, actor uuid.UUID) (FixResult, error) {
	before, err := s.Reconcile(ctx, tenant, accountID)
	if err != nil {
		return FixResult{}, err
	}
	if before.InSync {
		return FixResult{Before: before, After: before, Repaired: true}, nil
	}

	rebuilt, err := s.rebuild.Rebuild(ctx, tenant, accountID)
	if err != nil {
		return FixResult{}, err
	}
	after, err := s.Reconcile(ctx, tenant, accountID)
	if err != nil {
		return FixResult{}, err
	}

	res := FixResult{Before: before, Rebuild: rebuilt, After: after, Repaired: after.InSync}
	if s.audit != nil {
		entity := tenant.String()
		if accountID != nil {
			entity = "account:" + strconv.FormatInt(*accountID, 10)
		}
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenant,
			ActorID:  actor,
			Action:   "ledger.reconcile_fix",
			Entity:   "ledger",
			EntityID: entity,
			Meta: map[string]any{
				"drifts_before": len(before.Drifts),
				"drifts_after":  len(after.Drifts),
				"transactions":  rebuilt.Transactions,
			},
			At: s.now(),
		})
	}
	return res, nil
}

func compare(tenant uuid.UUID, at time.Time, journalSide []JournalTotals, ledgerSide []LedgerTotals) Report {
	ledgerByID := make(map[int64]LedgerTotals, len(ledgerSide))
	for _, l := range ledgerSide {
		ledgerByID[l.AccountID] = l
	}

	report := Report{TenantID: tenant, RanAt: at}
	seen := make(map[int64]bool, len(journalSide))
	for _, j := range journalSide {
		seen[j.AccountID] = true
		report.AccountsChecked++
		l := ledgerByID[j.AccountID]
		implied := j.Opening.Add(accounts.SignedDelta(j.Normal, j.Debit, j.Credit))
		projected := j.Opening
		if l.Rows > 0 {
			projected = l.LastRunning
		}
		if j.Lines == l.Rows && j.Debit.Equal(l.Debit) && j.Credit.Equal(l.Credit) && implied.Equal(projected) {
			continue
		}
		report.Drifts = append(report.Drifts, AccountDrift{
			AccountID:        j.AccountID,
			Code:             j.Code,
			Name:             j.Name,
			JournalLines:     j.Lines,
			LedgerRows:       l.Rows,
			JournalDebit:     j.Debit,
			JournalCredit:    j.Credit,
			LedgerDebit:      l.Debit,
			LedgerCredit:     l.Credit,
			ImpliedBalance:   implied,
			ProjectedBalance: projected,
			Difference:       projected.Sub(implied),
		})
	}

	// Projection rows with no posted journal behind them are drift too.
	for _, l := range ledgerSide {
		if seen[l.AccountID] {
			continue
		}
		report.AccountsChecked++
		implied := l.Opening
		report.Drifts = append(report.Drifts, AccountDrift{
			AccountID:        l.AccountID,
			Code:             l.Code,
			Name:             l.Name,
			LedgerRows:       l.Rows,
			LedgerDebit:      l.Debit,
			LedgerCredit:     l.Credit,
			ImpliedBalance:   implied,
			ProjectedBalance: l.LastRunning,
			Difference:       l.LastRunning.Sub(implied),
		})
	}

	sort.Slice(report.Drifts, func(i, k int) bool {
		return report.Drifts[i].Code < report.Drifts[k].Code
	})
	report.InSync = len(report.Drifts) == 0
	return report
}
