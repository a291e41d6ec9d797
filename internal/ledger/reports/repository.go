package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads aggregated ledger activity for the report builders.
type Repository interface {
	ActivityWindow(ctx context.Context, tenant uuid.UUID, from, to time.Time) ([]AccountActivity, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed report repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// ActivityWindow aggregates every non-header account in one grouped query:
// debit/credit sums before the window and inside it, up to the window end.
// A zero from collapses the before sums, which makes the same query serve
// as-of reports.
func (r *repository) ActivityWindow(ctx context.Context, tenant uuid.UUID, from, to time.Time) ([]AccountActivity, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.code, a.name, a.account_type, a.normal_balance,
			COALESCE(a.sub_type, ''), a.opening_balance,
			COALESCE(SUM(t.debit) FILTER (WHERE t.transaction_date < $2), 0),
			COALESCE(SUM(t.credit) FILTER (WHERE t.transaction_date < $2), 0),
			COALESCE(SUM(t.debit) FILTER (WHERE t.transaction_date >= $2), 0),
			COALESCE(SUM(t.credit) FILTER (WHERE t.transaction_date >= $2), 0)
		FROM accounts a
		LEFT JOIN ledger_transactions t
			ON t.tenant_id = a.tenant_id AND t.account_id = a.id AND t.transaction_date <= $3
		WHERE a.tenant_id = $1 AND a.deleted_at IS NULL AND a.is_header = FALSE
		GROUP BY a.id, a.code, a.name, a.account_type, a.normal_balance, a.sub_type, a.opening_balance
		ORDER BY a.code`,
		tenant, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountActivity
	for rows.Next() {
		var a AccountActivity
		if err := rows.Scan(&a.AccountID, &a.Code, &a.Name, &a.Type, &a.Normal,
			&a.SubType, &a.Opening,
			&a.DebitBefore, &a.CreditBefore, &a.Debit, &a.Credit); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
