package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
	"github.com/meridian-gl/meridian-gl/internal/ledger/projection"
	"github.com/meridian-gl/meridian-gl/internal/platform/db"
)

// PostingAccount is the slice of an account the posting path needs: the
// snapshot columns plus header flag and opening balance.
type PostingAccount struct {
	ID       int64
	Code     string
	Name     string
	Type     accounts.AccountType
	Normal   accounts.NormalBalance
	IsHeader bool
	Opening  decimal.Decimal
}

// Period status values as stored by the periods package. The posting gate
// only reads them; absence of a row means the month is open.
const (
	periodOpen   = "open"
	periodClosed = "closed"
	periodLocked = "locked"
)

// Repository is the journal persistence port.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenant uuid.UUID, id int64) (Entry, error)
	GetByNumber(ctx context.Context, tenant uuid.UUID, number string) (Entry, error)
	List(ctx context.Context, tenant uuid.UUID, filter ListFilter) ([]Entry, error)
	FindBySource(ctx context.Context, tenant uuid.UUID, sourceType, sourceID string) ([]Entry, error)
	DraftCountInRange(ctx context.Context, tenant uuid.UUID, from, to time.Time) (int, error)
	PostedReferenceExists(ctx context.Context, tenant uuid.UUID, reference string) (bool, error)
}

// TxRepository is the journal write surface inside one posting transaction.
// It embeds the projection writes so posting and projecting share the
// transaction: there is no second code path into ledger_transactions.
type TxRepository interface {
	projection.Tx
	AcquirePostingLock(ctx context.Context, key int64) error
	NextEntryNumber(ctx context.Context, tenant uuid.UUID, year int) (string, error)
	InsertEntry(ctx context.Context, e Entry) (Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]Line, error)
	GetForUpdate(ctx context.Context, tenant uuid.UUID, id int64) (Entry, error)
	GetLines(ctx context.Context, entryID int64) ([]Line, error)
	AccountsForPosting(ctx context.Context, tenant uuid.UUID, ids []int64) (map[int64]PostingAccount, error)
	MarkPosted(ctx context.Context, tenant uuid.UUID, id int64, actor uuid.UUID, at time.Time) (bool, error)
	MarkReversed(ctx context.Context, tenant uuid.UUID, originalID, reversalID int64) error
	DeleteDraft(ctx context.Context, tenant uuid.UUID, id int64) error
	PeriodStatus(ctx context.Context, tenant uuid.UUID, year, month int) (string, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed journal repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, tenant_id, entry_number, entry_date, description,
COALESCE(reference, ''), COALESCE(source_type, ''), COALESCE(source_id, ''),
status, total_debit, total_credit, posted_by, posted_at,
reversed_entry_id, reversed_by_entry_id,
COALESCE(created_by, '00000000-0000-0000-0000-000000000000'::uuid), created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.TenantID, &e.EntryNumber, &e.EntryDate, &e.Description,
		&e.Reference, &e.SourceType, &e.SourceID,
		&e.Status, &e.TotalDebit, &e.TotalCredit, &e.PostedBy, &e.PostedAt,
		&e.ReversedEntryID, &e.ReversedByEntryID,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{Tx: projection.NewTx(tx), tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, tenant uuid.UUID, id int64) (Entry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id = $1 AND id = $2`, tenant, id))
	if err != nil {
		return Entry{}, err
	}
	entry.Lines, err = queryLines(ctx, r.db, entry.ID)
	return entry, err
}

func (r *repository) GetByNumber(ctx context.Context, tenant uuid.UUID, number string) (Entry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id = $1 AND entry_number = $2`, tenant, number))
	if err != nil {
		return Entry{}, err
	}
	entry.Lines, err = queryLines(ctx, r.db, entry.ID)
	return entry, err
}

func (r *repository) List(ctx context.Context, tenant uuid.UUID, filter ListFilter) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE tenant_id = $1`
	args := []any{tenant}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND entry_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND entry_date <= $%d", len(args))
	}
	if filter.SourceType != "" {
		args = append(args, filter.SourceType)
		query += fmt.Sprintf(" AND source_type = $%d", len(args))
	}
	query += " ORDER BY entry_date DESC, id DESC"
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *repository) FindBySource(ctx context.Context, tenant uuid.UUID, sourceType, sourceID string) ([]Entry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+` FROM journal_entries
WHERE tenant_id = $1 AND source_type = $2 AND source_id = $3
ORDER BY id`, tenant, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *repository) DraftCountInRange(ctx context.Context, tenant uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
SELECT COUNT(*) FROM journal_entries
WHERE tenant_id = $1 AND status = 'draft' AND entry_date >= $2 AND entry_date <= $3`,
		tenant, from, to).Scan(&n)
	return n, err
}

func (r *repository) PostedReferenceExists(ctx context.Context, tenant uuid.UUID, reference string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM journal_entries
	WHERE tenant_id = $1 AND reference = $2 AND status = 'posted'
)`, tenant, reference).Scan(&exists)
	return exists, err
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q rowQuerier, entryID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `
SELECT id, entry_id, line_number, account_id, COALESCE(description, ''), debit, credit
FROM journal_entry_lines WHERE entry_id = $1 ORDER BY line_number`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var ln Line
		if err := rows.Scan(&ln.ID, &ln.EntryID, &ln.LineNumber, &ln.AccountID, &ln.Description, &ln.Debit, &ln.Credit); err != nil {
			return nil, err
		}
		out = append(out, ln)
	}
	return out, rows.Err()
}

type txRepository struct {
	projection.Tx
	tx pgx.Tx
}

func (r *txRepository) AcquirePostingLock(ctx context.Context, key int64) error {
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock_shared($1)`, key)
	return err
}

// NextEntryNumber allocates the next JE-{year}-{seq} number through a
// per-tenant-year counter row. The upsert serializes on the row lock, so
// concurrent posts cannot read the same value.
func (r *txRepository) NextEntryNumber(ctx context.Context, tenant uuid.UUID, year int) (string, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `
INSERT INTO journal_entry_counters (tenant_id, year, last_value)
VALUES ($1, $2, 1)
ON CONFLICT (tenant_id, year)
DO UPDATE SET last_value = journal_entry_counters.last_value + 1
RETURNING last_value`, tenant, year).Scan(&n)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("JE-%d-%05d", year, n), nil
}

func (r *txRepository) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	err := r.tx.QueryRow(ctx, `
INSERT INTO journal_entries
	(tenant_id, entry_number, entry_date, description, reference, source_type, source_id,
	 status, total_debit, total_credit, reversed_entry_id, created_by)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12)
RETURNING id, created_at, updated_at`,
		e.TenantID, e.EntryNumber, e.EntryDate, e.Description, e.Reference, e.SourceType, e.SourceID,
		string(e.Status), e.TotalDebit, e.TotalCredit, e.ReversedEntryID, uuidOrNil(e.CreatedBy)).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "entry_number") {
			return Entry{}, ErrNumberConflict
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for idx, in := range lines {
		line := Line{
			EntryID:     entryID,
			LineNumber:  idx + 1,
			AccountID:   in.AccountID,
			Description: in.Description,
			Debit:       in.Debit,
			Credit:      in.Credit,
		}
		err := r.tx.QueryRow(ctx, `
INSERT INTO journal_entry_lines (entry_id, line_number, account_id, description, debit, credit)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
RETURNING id`, entryID, line.LineNumber, line.AccountID, line.Description, line.Debit, line.Credit).
			Scan(&line.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, tenant uuid.UUID, id int64) (Entry, error) {
	return scanEntry(r.tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenant, id))
}

func (r *txRepository) GetLines(ctx context.Context, entryID int64) ([]Line, error) {
	return queryLines(ctx, r.tx, entryID)
}

func (r *txRepository) AccountsForPosting(ctx context.Context, tenant uuid.UUID, ids []int64) (map[int64]PostingAccount, error) {
	rows, err := r.tx.Query(ctx, `
SELECT id, code, name, account_type, normal_balance, is_header, opening_balance
FROM accounts
WHERE tenant_id = $1 AND id = ANY($2) AND deleted_at IS NULL`, tenant, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]PostingAccount, len(ids))
	for rows.Next() {
		var a PostingAccount
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Normal, &a.IsHeader, &a.Opening); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r *txRepository) MarkPosted(ctx context.Context, tenant uuid.UUID, id int64, actor uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
UPDATE journal_entries
SET status = 'posted', posted_by = $3, posted_at = $4, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2 AND status = 'draft'`,
		tenant, id, uuidOrNil(actor), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) MarkReversed(ctx context.Context, tenant uuid.UUID, originalID, reversalID int64) error {
	tag, err := r.tx.Exec(ctx, `
UPDATE journal_entries
SET status = 'reversed', reversed_by_entry_id = $3, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2 AND status = 'posted'`,
		tenant, originalID, reversalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConcurrentUpdate
	}
	return nil
}

func (r *txRepository) DeleteDraft(ctx context.Context, tenant uuid.UUID, id int64) error {
	// Lines go with the entry via ON DELETE CASCADE.
	tag, err := r.tx.Exec(ctx, `
DELETE FROM journal_entries WHERE tenant_id = $1 AND id = $2 AND status = 'draft'`, tenant, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotDraft
	}
	return nil
}

func (r *txRepository) PeriodStatus(ctx context.Context, tenant uuid.UUID, year, month int) (string, error) {
	var status string
	err := r.tx.QueryRow(ctx, `
SELECT status FROM accounting_periods WHERE tenant_id = $1 AND year = $2 AND month = $3`,
		tenant, year, month).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return status, err
}

func uuidOrNil(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}
