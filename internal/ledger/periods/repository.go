package periods

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-gl/meridian-gl/internal/platform/db"
)

// Repository is the accounting_periods persistence port.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenant uuid.UUID, year, month int) (Period, error)
	ListYear(ctx context.Context, tenant uuid.UUID, year int) ([]Period, error)
	StatusFor(ctx context.Context, tenant uuid.UUID, year, month int) (Status, error)
}

// TxRepository is the write surface used by close, reopen and year-end close.
type TxRepository interface {
	AcquireCloseLock(ctx context.Context, key int64) error
	GetForUpdate(ctx context.Context, tenant uuid.UUID, year, month int) (Period, bool, error)
	Upsert(ctx context.Context, p Period) (Period, error)
	LockYear(ctx context.Context, tenant uuid.UUID, year int, actor uuid.UUID, at time.Time) (int, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed period repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, tenant_id, year, month, status, COALESCE(notes, ''),
closed_at, closed_by, reopened_at, reopened_by, COALESCE(reopen_reason, ''),
created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.TenantID, &p.Year, &p.Month, &p.Status, &p.Notes,
		&p.ClosedAt, &p.ClosedBy, &p.ReopenedAt, &p.ReopenedBy, &p.ReopenReason,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrNotFound
	}
	return p, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, tenant uuid.UUID, year, month int) (Period, error) {
	return scanPeriod(r.db.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE tenant_id = $1 AND year = $2 AND month = $3`,
		tenant, year, month))
}

func (r *repository) ListYear(ctx context.Context, tenant uuid.UUID, year int) ([]Period, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE tenant_id = $1 AND year = $2 ORDER BY month`,
		tenant, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// StatusFor returns the stored status, or the empty string when no row
// exists for the month.
func (r *repository) StatusFor(ctx context.Context, tenant uuid.UUID, year, month int) (Status, error) {
	var status Status
	err := r.db.QueryRow(ctx,
		`SELECT status FROM accounting_periods WHERE tenant_id = $1 AND year = $2 AND month = $3`,
		tenant, year, month).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return status, err
}

type txRepository struct {
	tx pgx.Tx
}

// AcquireCloseLock takes the tenant posting lock exclusively, so the close
// observes a ledger no concurrent post can be mutating.
func (t *txRepository) AcquireCloseLock(ctx context.Context, key int64) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key)
	return err
}

func (t *txRepository) GetForUpdate(ctx context.Context, tenant uuid.UUID, year, month int) (Period, bool, error) {
	p, err := scanPeriod(t.tx.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE tenant_id = $1 AND year = $2 AND month = $3 FOR UPDATE`,
		tenant, year, month))
	if errors.Is(err, ErrNotFound) {
		return Period{}, false, nil
	}
	if err != nil {
		return Period{}, false, err
	}
	return p, true, nil
}

func (t *txRepository) Upsert(ctx context.Context, p Period) (Period, error) {
	return scanPeriod(t.tx.QueryRow(ctx, `
		INSERT INTO accounting_periods (tenant_id, year, month, status, notes,
			closed_at, closed_by, reopened_at, reopened_by, reopen_reason)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, ''))
		ON CONFLICT (tenant_id, year, month) DO UPDATE SET
			status = EXCLUDED.status,
			notes = EXCLUDED.notes,
			closed_at = EXCLUDED.closed_at,
			closed_by = EXCLUDED.closed_by,
			reopened_at = EXCLUDED.reopened_at,
			reopened_by = EXCLUDED.reopened_by,
			reopen_reason = EXCLUDED.reopen_reason,
			updated_at = NOW()
		RETURNING `+periodColumns,
		p.TenantID, p.Year, p.Month, p.Status, p.Notes,
		p.ClosedAt, p.ClosedBy, p.ReopenedAt, p.ReopenedBy, p.ReopenReason))
}

// LockYear force-locks all twelve months, creating rows where absent. Closed
// metadata on already-closed months is preserved.
func (t *txRepository) LockYear(ctx context.Context, tenant uuid.UUID, year int, actor uuid.UUID, at time.Time) (int, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO accounting_periods (tenant_id, year, month, status, closed_at, closed_by)
		SELECT $1, $2, m, $5, $3, $4 FROM generate_series(1, 12) AS m
		ON CONFLICT (tenant_id, year, month) DO UPDATE SET
			status = $5,
			closed_at = COALESCE(accounting_periods.closed_at, EXCLUDED.closed_at),
			closed_by = COALESCE(accounting_periods.closed_by, EXCLUDED.closed_by),
			updated_at = NOW()`,
		tenant, year, at, actor, StatusLocked)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
