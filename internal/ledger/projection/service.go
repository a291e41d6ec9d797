package projection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
	"github.com/meridian-gl/meridian-gl/internal/shared"
)

// AuditPort records rebuild runs.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns teardown-and-replay of the ledger projection.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the projection service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RebuildResult summarises one replay.
type RebuildResult struct {
	Accounts     int   `json:"accounts"`
	Transactions int   `json:"transactions"`
	Months       int   `json:"months"`
	Deleted      int64 `json:"deleted"`
}

// Rebuild deletes the projection in scope (whole tenant, or one account) and
// replays every posted entry in (entry_date, created_at, id) order,
// recomputing running balances from each account's opening balance forward.
// The exclusive tenant lock keeps concurrent postings out for the whole
// replay, so rerunning it against unchanged journal rows reproduces the same
// business columns.
func (s *Service) Rebuild(ctx context.Context, tenant uuid.UUID, accountID *int64) (RebuildResult, error) {
	if tenant == uuid.Nil {
		return RebuildResult{}, errors.New("projection: tenant required")
	}
	var res RebuildResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx RebuildTx) error {
		if err := tx.AcquireRebuildLock(ctx, shared.PostingLockKey(tenant)); err != nil {
			return err
		}
		accts, err := tx.ListAccounts(ctx, tenant)
		if err != nil {
			return err
		}
		deletedTx, err := tx.DeleteTransactions(ctx, tenant, accountID)
		if err != nil {
			return err
		}
		deletedMonths, err := tx.DeleteMonthlyBalances(ctx, tenant, accountID)
		if err != nil {
			return err
		}
		lines, err := tx.ListPostedLines(ctx, tenant, accountID)
		if err != nil {
			return err
		}

		rows, months, touched, err := replay(tenant, accts, lines)
		if err != nil {
			return err
		}
		if err := tx.InsertTransactions(ctx, rows); err != nil {
			return err
		}
		if err := tx.InsertMonthlyBalances(ctx, months); err != nil {
			return err
		}
		res = RebuildResult{
			Accounts:     touched,
			Transactions: len(rows),
			Months:       len(months),
			Deleted:      deletedTx + deletedMonths,
		}
		return nil
	})
	if err != nil {
		return RebuildResult{}, err
	}
	if s.audit != nil {
		entity := tenant.String()
		if accountID != nil {
			entity = fmt.Sprintf("account:%d", *accountID)
		}
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenant,
			Action:   "ledger.rebuild",
			Entity:   "ledger",
			EntityID: entity,
			Meta: map[string]any{
				"transactions": res.Transactions,
				"months":       res.Months,
				"deleted":      res.Deleted,
			},
			At: s.now(),
		})
	}
	return res, nil
}

type bucketKey struct {
	account int64
	year    int
	month   int
}

// replay walks ordered posted lines, producing ledger rows with running
// balances and chained month snapshots. Pure so tests can drive it directly.
func replay(tenant uuid.UUID, accts map[int64]AccountInfo, lines []ReplayLine) ([]Transaction, []MonthlyBalance, int, error) {
	running := make(map[int64]decimal.Decimal)
	rows := make([]Transaction, 0, len(lines))
	buckets := make(map[bucketKey]*MonthlyBalance)
	order := make([]bucketKey, 0)

	for _, ln := range lines {
		acct, ok := accts[ln.AccountID]
		if !ok {
			return nil, nil, 0, fmt.Errorf("%w: account %d on entry %s", ErrAccountMissing, ln.AccountID, ln.EntryNumber)
		}
		delta := accounts.SignedDelta(acct.Normal, ln.Debit, ln.Credit)
		base, seen := running[ln.AccountID]
		if !seen {
			base = acct.Opening
		}
		balance := base.Add(delta)
		running[ln.AccountID] = balance

		rows = append(rows, Transaction{
			TenantID:        tenant,
			EntryID:         ln.EntryID,
			LineID:          ln.LineID,
			AccountID:       ln.AccountID,
			EntryNumber:     ln.EntryNumber,
			TransactionDate: ln.Date,
			Description:     ln.Description,
			Reference:       ln.Reference,
			AccountCode:     acct.Code,
			AccountName:     acct.Name,
			AccountType:     acct.Type,
			NormalBalance:   acct.Normal,
			Debit:           ln.Debit,
			Credit:          ln.Credit,
			RunningBalance:  balance,
		})

		key := bucketKey{account: ln.AccountID, year: ln.Date.Year(), month: int(ln.Date.Month())}
		bucket, ok := buckets[key]
		if !ok {
			bucket = &MonthlyBalance{TenantID: tenant, AccountID: ln.AccountID, Year: key.year, Month: key.month}
			buckets[key] = bucket
			order = append(order, key)
		}
		bucket.PeriodDebit = bucket.PeriodDebit.Add(ln.Debit)
		bucket.PeriodCredit = bucket.PeriodCredit.Add(ln.Credit)
		bucket.ClosingBalance = balance
	}

	// Lines arrive in chronological order, so per account the last touch of a
	// month already left its closing balance in place. Chain openings account
	// by account, month by month.
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.account != b.account {
			return a.account < b.account
		}
		if a.year != b.year {
			return a.year < b.year
		}
		return a.month < b.month
	})
	months := make([]MonthlyBalance, 0, len(order))
	prevAccount := int64(0)
	var prevClosing decimal.Decimal
	for _, key := range order {
		bucket := buckets[key]
		if key.account != prevAccount {
			bucket.OpeningBalance = accts[key.account].Opening
		} else {
			bucket.OpeningBalance = prevClosing
		}
		prevAccount = key.account
		prevClosing = bucket.ClosingBalance
		months = append(months, *bucket)
	}
	return rows, months, len(running), nil
}
