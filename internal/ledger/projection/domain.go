package projection

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
)

// Transaction is one denormalized ledger row: a posted journal line with the
// account snapshot taken at post time and the account balance immediately
// after the line, in (transaction_date, created_at, id) order.
type Transaction struct {
	ID              int64
	TenantID        uuid.UUID
	EntryID         int64
	LineID          int64
	AccountID       int64
	EntryNumber     string
	TransactionDate time.Time
	Description     string
	Reference       string
	AccountCode     string
	AccountName     string
	AccountType     accounts.AccountType
	NormalBalance   accounts.NormalBalance
	Debit           decimal.Decimal
	Credit          decimal.Decimal
	RunningBalance  decimal.Decimal
	CreatedAt       time.Time
}

// MonthlyBalance is the per-account month snapshot kept in account_balances.
// Openings chain from the previous month's closing, or from the account
// opening balance for the first month in the chain.
type MonthlyBalance struct {
	TenantID       uuid.UUID
	AccountID      int64
	Year           int
	Month          int
	OpeningBalance decimal.Decimal
	PeriodDebit    decimal.Decimal
	PeriodCredit   decimal.Decimal
	ClosingBalance decimal.Decimal
}

// EntryMeta carries the journal entry header fields the projector snapshots
// onto every ledger row.
type EntryMeta struct {
	TenantID    uuid.UUID
	EntryID     int64
	EntryNumber string
	Date        time.Time
	Description string
	Reference   string
}

// Line is one journal line enriched with the account fields the projector
// needs: the snapshot columns plus normal balance and opening balance for
// the signed delta and the start of a balance chain.
type Line struct {
	LineID        int64
	AccountID     int64
	AccountCode   string
	AccountName   string
	AccountType   accounts.AccountType
	NormalBalance accounts.NormalBalance
	Opening       decimal.Decimal
	Debit         decimal.Decimal
	Credit        decimal.Decimal
}

// MonthlyDelta is one line's contribution to an account's month bucket.
type MonthlyDelta struct {
	TenantID  uuid.UUID
	AccountID int64
	Year      int
	Month     int
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Delta     decimal.Decimal
	Opening   decimal.Decimal
}

// Tx is the projection write surface inside a posting transaction. The
// journal engine embeds it so projecting shares the posting transaction:
// this function chain is the only code path that writes ledger_transactions
// and account_balances outside a rebuild.
type Tx interface {
	LatestRunningBalance(ctx context.Context, tenant uuid.UUID, accountID int64, asOf time.Time) (decimal.Decimal, bool, error)
	InsertTransaction(ctx context.Context, t Transaction) error
	ShiftRunningBalances(ctx context.Context, tenant uuid.UUID, accountID int64, after time.Time, delta decimal.Decimal) (int64, error)
	UpsertMonthlyBalance(ctx context.Context, d MonthlyDelta) error
	ShiftMonthlyBalances(ctx context.Context, tenant uuid.UUID, accountID int64, year, month int, delta decimal.Decimal) error
}

// ErrAccountMissing indicates a replayed line references an account that no
// longer resolves, which means the chart and the journal disagree.
var ErrAccountMissing = errors.New("projection: account missing for replayed line")

// Apply projects every line of a posted entry: one ledger row per line with
// the running balance after it, plus the month bucket upsert. Backdated
// entries (rows already exist with a later date) shift every later row and
// month by the line's signed delta in the same transaction, so the running
// balance invariant holds without a rebuild. Ties on transaction date need
// no shift: the new row's created_at orders it after existing same-date rows.
func Apply(ctx context.Context, tx Tx, meta EntryMeta, lines []Line) error {
	for _, line := range lines {
		delta := accounts.SignedDelta(line.NormalBalance, line.Debit, line.Credit)

		prior, found, err := tx.LatestRunningBalance(ctx, meta.TenantID, line.AccountID, meta.Date)
		if err != nil {
			return err
		}
		base := line.Opening
		if found {
			base = prior
		}

		if err := tx.InsertTransaction(ctx, Transaction{
			TenantID:        meta.TenantID,
			EntryID:         meta.EntryID,
			LineID:          line.LineID,
			AccountID:       line.AccountID,
			EntryNumber:     meta.EntryNumber,
			TransactionDate: meta.Date,
			Description:     meta.Description,
			Reference:       meta.Reference,
			AccountCode:     line.AccountCode,
			AccountName:     line.AccountName,
			AccountType:     line.AccountType,
			NormalBalance:   line.NormalBalance,
			Debit:           line.Debit,
			Credit:          line.Credit,
			RunningBalance:  base.Add(delta),
		}); err != nil {
			return err
		}
		if _, err := tx.ShiftRunningBalances(ctx, meta.TenantID, line.AccountID, meta.Date, delta); err != nil {
			return err
		}

		year, month := meta.Date.Year(), int(meta.Date.Month())
		if err := tx.UpsertMonthlyBalance(ctx, MonthlyDelta{
			TenantID:  meta.TenantID,
			AccountID: line.AccountID,
			Year:      year,
			Month:     month,
			Debit:     line.Debit,
			Credit:    line.Credit,
			Delta:     delta,
			Opening:   line.Opening,
		}); err != nil {
			return err
		}
		if err := tx.ShiftMonthlyBalances(ctx, meta.TenantID, line.AccountID, year, month, delta); err != nil {
			return err
		}
	}
	return nil
}
