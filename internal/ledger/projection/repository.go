package projection

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
	"github.com/meridian-gl/meridian-gl/internal/platform/db"
)

// Querier is the subset of pgx.Tx the projection writes need, so the same
// implementation serves both the posting transaction and a rebuild.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTx struct {
	q Querier
}

// NewTx wraps a database transaction with the projection write surface.
func NewTx(q Querier) Tx {
	return &pgTx{q: q}
}

func (t *pgTx) LatestRunningBalance(ctx context.Context, tenant uuid.UUID, accountID int64, asOf time.Time) (decimal.Decimal, bool, error) {
	var balance decimal.Decimal
	err := t.q.QueryRow(ctx, `
SELECT running_balance FROM ledger_transactions
WHERE tenant_id = $1 AND account_id = $2 AND transaction_date <= $3
ORDER BY transaction_date DESC, created_at DESC, id DESC
LIMIT 1`, tenant, accountID, asOf).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return balance, true, nil
}

const insertTransactionSQL = `
INSERT INTO ledger_transactions
	(tenant_id, entry_id, line_id, account_id, entry_number, transaction_date,
	 description, reference, account_code, account_name, account_type,
	 normal_balance, debit, credit, running_balance)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

func transactionArgs(t Transaction) []any {
	return []any{
		t.TenantID, t.EntryID, t.LineID, t.AccountID, t.EntryNumber,
		t.TransactionDate, t.Description, t.Reference, t.AccountCode,
		t.AccountName, string(t.AccountType), string(t.NormalBalance),
		t.Debit, t.Credit, t.RunningBalance,
	}
}

func (t *pgTx) InsertTransaction(ctx context.Context, row Transaction) error {
	_, err := t.q.Exec(ctx, insertTransactionSQL, transactionArgs(row)...)
	return err
}

func (t *pgTx) ShiftRunningBalances(ctx context.Context, tenant uuid.UUID, accountID int64, after time.Time, delta decimal.Decimal) (int64, error) {
	tag, err := t.q.Exec(ctx, `
UPDATE ledger_transactions SET running_balance = running_balance + $4
WHERE tenant_id = $1 AND account_id = $2 AND transaction_date > $3`,
		tenant, accountID, after, delta)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) UpsertMonthlyBalance(ctx context.Context, d MonthlyDelta) error {
	_, err := t.q.Exec(ctx, `
INSERT INTO account_balances
	(tenant_id, account_id, year, month, opening_balance, period_debit, period_credit, closing_balance)
SELECT $1, $2, $3, $4, base.open, $5, $6, base.open + $7
FROM (
	SELECT COALESCE((
		SELECT closing_balance FROM account_balances
		WHERE tenant_id = $1 AND account_id = $2 AND (year, month) < ($3, $4)
		ORDER BY year DESC, month DESC
		LIMIT 1), $8::numeric) AS open
) AS base
ON CONFLICT (tenant_id, account_id, year, month) DO UPDATE SET
	period_debit = account_balances.period_debit + EXCLUDED.period_debit,
	period_credit = account_balances.period_credit + EXCLUDED.period_credit,
	closing_balance = account_balances.closing_balance + $7,
	updated_at = NOW()`,
		d.TenantID, d.AccountID, d.Year, d.Month, d.Debit, d.Credit, d.Delta, d.Opening)
	return err
}

func (t *pgTx) ShiftMonthlyBalances(ctx context.Context, tenant uuid.UUID, accountID int64, year, month int, delta decimal.Decimal) error {
	_, err := t.q.Exec(ctx, `
UPDATE account_balances
SET opening_balance = opening_balance + $5, closing_balance = closing_balance + $5, updated_at = NOW()
WHERE tenant_id = $1 AND account_id = $2 AND (year, month) > ($3, $4)`,
		tenant, accountID, year, month, delta)
	return err
}

// AccountInfo is the slice of an account a rebuild needs: snapshot columns,
// the signed-delta side, and the start of the balance chain.
type AccountInfo struct {
	ID      int64
	Code    string
	Name    string
	Type    accounts.AccountType
	Normal  accounts.NormalBalance
	Opening decimal.Decimal
}

// ReplayLine is a posted journal line joined with its entry header, in
// (entry_date, entry created_at, entry id, line_number) order.
type ReplayLine struct {
	EntryID     int64
	EntryNumber string
	Date        time.Time
	Description string
	Reference   string
	LineID      int64
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// RebuildTx is the transactional surface of a teardown-and-replay.
type RebuildTx interface {
	AcquireRebuildLock(ctx context.Context, key int64) error
	ListAccounts(ctx context.Context, tenant uuid.UUID) (map[int64]AccountInfo, error)
	ListPostedLines(ctx context.Context, tenant uuid.UUID, accountID *int64) ([]ReplayLine, error)
	DeleteTransactions(ctx context.Context, tenant uuid.UUID, accountID *int64) (int64, error)
	DeleteMonthlyBalances(ctx context.Context, tenant uuid.UUID, accountID *int64) (int64, error)
	InsertTransactions(ctx context.Context, rows []Transaction) error
	InsertMonthlyBalances(ctx context.Context, rows []MonthlyBalance) error
}

// Repository opens rebuild transactions.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, RebuildTx) error) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed rebuild repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, RebuildTx) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &rebuildTx{tx: tx})
	})
}

type rebuildTx struct {
	tx pgx.Tx
}

func (r *rebuildTx) AcquireRebuildLock(ctx context.Context, key int64) error {
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key)
	return err
}

func (r *rebuildTx) ListAccounts(ctx context.Context, tenant uuid.UUID) (map[int64]AccountInfo, error) {
	rows, err := r.tx.Query(ctx, `
SELECT id, code, name, account_type, normal_balance, opening_balance
FROM accounts
WHERE tenant_id = $1 AND deleted_at IS NULL`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]AccountInfo)
	for rows.Next() {
		var a AccountInfo
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Normal, &a.Opening); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r *rebuildTx) ListPostedLines(ctx context.Context, tenant uuid.UUID, accountID *int64) ([]ReplayLine, error) {
	rows, err := r.tx.Query(ctx, `
SELECT e.id, e.entry_number, e.entry_date, e.description, COALESCE(e.reference, ''),
       l.id, l.account_id, l.debit, l.credit
FROM journal_entries e
JOIN journal_entry_lines l ON l.entry_id = e.id
WHERE e.tenant_id = $1 AND e.status IN ('posted', 'reversed')
  AND ($2::bigint IS NULL OR l.account_id = $2)
ORDER BY e.entry_date, e.created_at, e.id, l.line_number`, tenant, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReplayLine
	for rows.Next() {
		var ln ReplayLine
		if err := rows.Scan(&ln.EntryID, &ln.EntryNumber, &ln.Date, &ln.Description, &ln.Reference,
			&ln.LineID, &ln.AccountID, &ln.Debit, &ln.Credit); err != nil {
			return nil, err
		}
		out = append(out, ln)
	}
	return out, rows.Err()
}

func (r *rebuildTx) DeleteTransactions(ctx context.Context, tenant uuid.UUID, accountID *int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `
DELETE FROM ledger_transactions
WHERE tenant_id = $1 AND ($2::bigint IS NULL OR account_id = $2)`, tenant, accountID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *rebuildTx) DeleteMonthlyBalances(ctx context.Context, tenant uuid.UUID, accountID *int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `
DELETE FROM account_balances
WHERE tenant_id = $1 AND ($2::bigint IS NULL OR account_id = $2)`, tenant, accountID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *rebuildTx) InsertTransactions(ctx context.Context, rows []Transaction) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertTransactionSQL, transactionArgs(row)...)
	}
	results := r.tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}

func (r *rebuildTx) InsertMonthlyBalances(ctx context.Context, rows []MonthlyBalance) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const query = `
INSERT INTO account_balances
	(tenant_id, account_id, year, month, opening_balance, period_debit, period_credit, closing_balance)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, row := range rows {
		batch.Queue(query, row.TenantID, row.AccountID, row.Year, row.Month,
			row.OpeningBalance, row.PeriodDebit, row.PeriodCredit, row.ClosingBalance)
	}
	results := r.tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}
