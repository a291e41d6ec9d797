package reconcile

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
)

// JournalTotals is the posted journal's aggregate for one account.
type JournalTotals struct {
	AccountID int64
	Code      string
	Name      string
	Normal    accounts.NormalBalance
	Opening   decimal.Decimal
	Lines     int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// LedgerTotals is the projected ledger's aggregate for one account,
// including the running balance of its latest row.
type LedgerTotals struct {
	AccountID   int64
	Code        string
	Name        string
	Normal      accounts.NormalBalance
	Opening     decimal.Decimal
	Rows        int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	LastRunning decimal.Decimal
}

// Repository reads both sides of the reconciliation.
type Repository interface {
	JournalTotals(ctx context.Context, tenant uuid.UUID, accountID *int64) ([]JournalTotals, error)
	LedgerTotals(ctx context.Context, tenant uuid.UUID, accountID *int64) ([]LedgerTotals, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed reconciliation repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// JournalTotals aggregates the lines of posted and reversed entries.
// Reversed entries stay in: their reversal is posted alongside them, so
// both sides of the pair belong to the implied ledger.
func (r *repository) JournalTotals(ctx context.Context, tenant uuid.UUID, accountID *int64) ([]JournalTotals, error) {
	query := `
		SELECT l.account_id, a.code, a.name, a.normal_balance, a.opening_balance,
			COUNT(*), COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
		FROM journal_entry_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		JOIN accounts a ON a.id = l.account_id
		WHERE e.tenant_id = $1 AND e.status IN ('posted', 'reversed')`
	args := []any{tenant}
	if accountID != nil {
		query += ` AND l.account_id = $2`
		args = append(args, *accountID)
	}
	query += `
		GROUP BY l.account_id, a.code, a.name, a.normal_balance, a.opening_balance
		ORDER BY a.code`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalTotals
	for rows.Next() {
		var t JournalTotals
		if err := rows.Scan(&t.AccountID, &t.Code, &t.Name, &t.Normal, &t.Opening,
			&t.Lines, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LedgerTotals aggregates the projected rows per account. The latest row's
// running balance is picked with the same ordering the projector writes in.
func (r *repository) LedgerTotals(ctx context.Context, tenant uuid.UUID, accountID *int64) ([]LedgerTotals, error) {
	query := `
		SELECT t.account_id, a.code, a.name, a.normal_balance, a.opening_balance,
			COUNT(*), COALESCE(SUM(t.debit), 0), COALESCE(SUM(t.credit), 0),
			(ARRAY_AGG(t.running_balance ORDER BY t.transaction_date DESC, t.created_at DESC, t.id DESC))[1]
		FROM ledger_transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE t.tenant_id = $1`
	args := []any{tenant}
	if accountID != nil {
		query += ` AND t.account_id = $2`
		args = append(args, *accountID)
	}
	query += `
		GROUP BY t.account_id, a.code, a.name, a.normal_balance, a.opening_balance
		ORDER BY a.code`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerTotals
	for rows.Next() {
		var t LedgerTotals
		if err := rows.Scan(&t.AccountID, &t.Code, &t.Name, &t.Normal, &t.Opening,
			&t.Rows, &t.Debit, &t.Credit, &t.LastRunning); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
