package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-gl/meridian-gl/internal/platform/db"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenant uuid.UUID, id int64) (Account, error)
	GetByCode(ctx context.Context, tenant uuid.UUID, code string) (Account, error)
	List(ctx context.Context, tenant uuid.UUID) ([]Account, error)
	BalanceAsOf(ctx context.Context, tenant uuid.UUID, id int64, asOf time.Time) (decimal.Decimal, error)
}

// TxRepository exposes mutations available within a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, tenant uuid.UUID, id int64) (Account, error)
	FindByCode(ctx context.Context, tenant uuid.UUID, code string) (Account, bool, error)
	Insert(ctx context.Context, a Account) (Account, error)
	UpdateNode(ctx context.Context, a Account) error
	RepathDescendants(ctx context.Context, tenant uuid.UUID, oldPath, newPath string, levelDelta int) (int64, error)
	SoftDelete(ctx context.Context, tenant uuid.UUID, id int64, at time.Time) error
	LiveChildCount(ctx context.Context, tenant uuid.UUID, id int64) (int, error)
	PostingRefCount(ctx context.Context, id int64) (int, error)
	AnyAccountExists(ctx context.Context, tenant uuid.UUID) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, tenant_id, code, name, account_type, normal_balance, COALESCE(sub_type, ''), is_header, is_system, parent_id, level, path, opening_balance, created_at, updated_at, deleted_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.SubType, &a.IsHeader, &a.IsSystem, &a.ParentID, &a.Level, &a.Path, &a.OpeningBalance, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt)
	return a, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, tenant uuid.UUID, id int64) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL`, tenant, id)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

func (r *repository) GetByCode(ctx context.Context, tenant uuid.UUID, code string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2 AND deleted_at IS NULL`, tenant, code)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

func (r *repository) List(ctx context.Context, tenant uuid.UUID) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND deleted_at IS NULL ORDER BY path`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// BalanceAsOf combines the opening balance with signed ledger activity up to
// and including the given date.
func (r *repository) BalanceAsOf(ctx context.Context, tenant uuid.UUID, id int64, asOf time.Time) (decimal.Decimal, error) {
	row := r.db.QueryRow(ctx, `
SELECT a.normal_balance, a.opening_balance,
       COALESCE(SUM(lt.debit), 0), COALESCE(SUM(lt.credit), 0)
FROM accounts a
LEFT JOIN ledger_transactions lt ON lt.tenant_id = a.tenant_id AND lt.account_id = a.id AND lt.transaction_date <= $3
WHERE a.tenant_id=$1 AND a.id=$2 AND a.deleted_at IS NULL
GROUP BY a.id`, tenant, id, asOf)
	var normal NormalBalance
	var opening, debit, credit decimal.Decimal
	if err := row.Scan(&normal, &opening, &debit, &credit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, err
	}
	return opening.Add(SignedDelta(normal, debit, credit)), nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, tenant uuid.UUID, id int64) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL FOR UPDATE`, tenant, id)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

func (r *txRepository) FindByCode(ctx context.Context, tenant uuid.UUID, code string) (Account, bool, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2 AND deleted_at IS NULL`, tenant, code)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, err
	}
	return a, true, nil
}

func (r *txRepository) Insert(ctx context.Context, a Account) (Account, error) {
	row := r.tx.QueryRow(ctx, `
INSERT INTO accounts (tenant_id, code, name, account_type, normal_balance, sub_type, is_header, is_system, parent_id, level, path, opening_balance)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9,$10,$11,$12)
RETURNING id, created_at, updated_at`,
		a.TenantID, a.Code, a.Name, a.Type, a.NormalBalance, a.SubType, a.IsHeader, a.IsSystem, a.ParentID, a.Level, a.Path, a.OpeningBalance)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrCodeTaken
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) UpdateNode(ctx context.Context, a Account) error {
	cmd, err := r.tx.Exec(ctx, `
UPDATE accounts SET code=$3, name=$4, sub_type=NULLIF($5,''), parent_id=$6, level=$7, path=$8, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL`,
		a.TenantID, a.ID, a.Code, a.Name, a.SubType, a.ParentID, a.Level, a.Path)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCodeTaken
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RepathDescendants swaps the path prefix and shifts the level of every
// descendant after a code or parent change.
func (r *txRepository) RepathDescendants(ctx context.Context, tenant uuid.UUID, oldPath, newPath string, levelDelta int) (int64, error) {
	cmd, err := r.tx.Exec(ctx, `
UPDATE accounts SET path = $3 || substr(path, length($2::text)+1), level = level + $4, updated_at=NOW()
WHERE tenant_id=$1 AND path LIKE $2 || '/%' AND deleted_at IS NULL`,
		tenant, oldPath, newPath, levelDelta)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *txRepository) SoftDelete(ctx context.Context, tenant uuid.UUID, id int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET deleted_at=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL`, tenant, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) LiveChildCount(ctx context.Context, tenant uuid.UUID, id int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE tenant_id=$1 AND parent_id=$2 AND deleted_at IS NULL`, tenant, id).Scan(&n)
	return n, err
}

func (r *txRepository) PostingRefCount(ctx context.Context, id int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entry_lines WHERE account_id=$1`, id).Scan(&n)
	return n, err
}

func (r *txRepository) AnyAccountExists(ctx context.Context, tenant uuid.UUID) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE tenant_id=$1)`, tenant).Scan(&exists)
	return exists, err
}
