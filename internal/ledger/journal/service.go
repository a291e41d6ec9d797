package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-gl/meridian-gl/internal/ledger/projection"
	"github.com/meridian-gl/meridian-gl/internal/shared"
)

// AuditPort records journal mutations for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort invalidates cached reports after a tenant's books change.
type CachePort interface {
	Bump(ctx context.Context, tenant uuid.UUID) error
}

// Service coordinates journal entry creation, posting and reversal.
type Service struct {
	repo  Repository
	audit AuditPort
	cache CachePort
	now   func() time.Time
}

// NewService constructs the journal service.
func NewService(repo Repository, audit AuditPort, cache CachePort) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates and persists a draft entry with its lines and a fresh
// entry number. Nothing is written when validation fails.
func (s *Service) Create(ctx context.Context, in CreateInput) (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.createDraft(ctx, tx, in, nil)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, in.TenantID, in.CreatedBy, "journal.create", entry.ID, map[string]any{"number": entry.EntryNumber})
	return entry, nil
}

// Post transitions a draft to posted and projects its lines into the ledger,
// all in one transaction. The shared tenant lock lets posts run concurrently
// with each other while excluding period closes and rebuilds.
func (s *Service) Post(ctx context.Context, tenant uuid.UUID, entryID int64, actor uuid.UUID) (Entry, error) {
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.AcquirePostingLock(ctx, shared.PostingLockKey(tenant)); err != nil {
			return err
		}
		var err error
		entry, err = s.postLocked(ctx, tx, tenant, entryID, actor, PostOptions{})
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, tenant, actor, "journal.post", entry.ID, map[string]any{"number": entry.EntryNumber})
	s.bump(ctx, tenant)
	return entry, nil
}

// CreateAndPost runs creation and posting in a single transaction. System
// flows use it where a dangling draft would be wrong, such as the year-end
// closing entry.
func (s *Service) CreateAndPost(ctx context.Context, in CreateInput, actor uuid.UUID, opts PostOptions) (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.AcquirePostingLock(ctx, shared.PostingLockKey(in.TenantID)); err != nil {
			return err
		}
		draft, err := s.createDraft(ctx, tx, in, nil)
		if err != nil {
			return err
		}
		entry, err = s.postLocked(ctx, tx, in.TenantID, draft.ID, actor, opts)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, in.TenantID, actor, "journal.post", entry.ID, map[string]any{"number": entry.EntryNumber, "direct": true})
	s.bump(ctx, in.TenantID)
	return entry, nil
}

// Reverse builds and posts the mirror of a posted entry: same accounts with
// debit and credit swapped, dated reversalDate (the original date when
// zero), linked both ways. The original becomes reversed; reversals
// themselves can never be reversed.
func (s *Service) Reverse(ctx context.Context, tenant uuid.UUID, entryID int64, actor uuid.UUID, reversalDate time.Time) (Entry, error) {
	var original, reversal Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.AcquirePostingLock(ctx, shared.PostingLockKey(tenant)); err != nil {
			return err
		}
		var err error
		original, err = tx.GetForUpdate(ctx, tenant, entryID)
		if err != nil {
			return err
		}
		if original.IsReversal() {
			return ErrReverseReversal
		}
		switch original.Status {
		case StatusReversed:
			return ErrAlreadyReversed
		case StatusDraft:
			return ErrNotPosted
		}
		lines, err := tx.GetLines(ctx, original.ID)
		if err != nil {
			return err
		}
		date := reversalDate
		if date.IsZero() {
			date = original.EntryDate
		}
		draft, err := s.createDraft(ctx, tx, CreateInput{
			TenantID:    tenant,
			EntryDate:   date,
			Description: fmt.Sprintf("Reversal of %s", original.EntryNumber),
			Reference:   "REV-" + original.EntryNumber,
			SourceType:  original.SourceType,
			SourceID:    original.SourceID,
			CreatedBy:   actor,
			Lines:       reverseLines(lines),
		}, &original.ID)
		if err != nil {
			return err
		}
		reversal, err = s.postLocked(ctx, tx, tenant, draft.ID, actor, PostOptions{})
		if err != nil {
			return err
		}
		return tx.MarkReversed(ctx, tenant, original.ID, reversal.ID)
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, tenant, actor, "journal.reverse", original.ID, map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.EntryNumber,
	})
	s.bump(ctx, tenant)
	return reversal, nil
}

// DeleteDraft removes a draft entry and its lines. Posted and reversed
// entries are immutable.
func (s *Service) DeleteDraft(ctx context.Context, tenant uuid.UUID, entryID int64, actor uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetForUpdate(ctx, tenant, entryID)
		if err != nil {
			return err
		}
		if entry.Status != StatusDraft {
			return ErrNotDraft
		}
		return tx.DeleteDraft(ctx, tenant, entryID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, tenant, actor, "journal.delete_draft", entryID, nil)
	return nil
}

// Get fetches an entry with lines.
func (s *Service) Get(ctx context.Context, tenant uuid.UUID, id int64) (Entry, error) {
	return s.repo.Get(ctx, tenant, id)
}

// GetByNumber fetches an entry with lines by its entry number.
func (s *Service) GetByNumber(ctx context.Context, tenant uuid.UUID, number string) (Entry, error) {
	return s.repo.GetByNumber(ctx, tenant, number)
}

// List returns entry headers matching the filter, newest first.
func (s *Service) List(ctx context.Context, tenant uuid.UUID, filter ListFilter) ([]Entry, error) {
	return s.repo.List(ctx, tenant, filter)
}

// FindBySource returns the entries linked to a source document, including
// any reversal, in creation order.
func (s *Service) FindBySource(ctx context.Context, tenant uuid.UUID, sourceType, sourceID string) ([]Entry, error) {
	return s.repo.FindBySource(ctx, tenant, sourceType, sourceID)
}

// DraftCountInRange counts drafts dated inside [from, to].
func (s *Service) DraftCountInRange(ctx context.Context, tenant uuid.UUID, from, to time.Time) (int, error) {
	return s.repo.DraftCountInRange(ctx, tenant, from, to)
}

// PostedReferenceExists reports whether a posted entry carries the
// reference. Year-end close uses it as its idempotence guard.
func (s *Service) PostedReferenceExists(ctx context.Context, tenant uuid.UUID, reference string) (bool, error) {
	return s.repo.PostedReferenceExists(ctx, tenant, reference)
}

func (s *Service) createDraft(ctx context.Context, tx TxRepository, in CreateInput, reversedEntryID *int64) (Entry, error) {
	if _, err := s.postingAccounts(ctx, tx, in.TenantID, inputAccountIDs(in.Lines)); err != nil {
		return Entry{}, err
	}
	number, err := tx.NextEntryNumber(ctx, in.TenantID, in.EntryDate.Year())
	if err != nil {
		return Entry{}, err
	}
	debit, credit := in.Totals()
	entry, err := tx.InsertEntry(ctx, Entry{
		TenantID:        in.TenantID,
		EntryNumber:     number,
		EntryDate:       in.EntryDate,
		Description:     in.Description,
		Reference:       in.Reference,
		SourceType:      in.SourceType,
		SourceID:        in.SourceID,
		Status:          StatusDraft,
		TotalDebit:      debit,
		TotalCredit:     credit,
		ReversedEntryID: reversedEntryID,
		CreatedBy:       in.CreatedBy,
	})
	if err != nil {
		return Entry{}, err
	}
	entry.Lines, err = tx.InsertLines(ctx, entry.ID, in.Lines)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// postLocked flips a draft to posted and projects it. Callers hold the
// tenant posting lock.
func (s *Service) postLocked(ctx context.Context, tx TxRepository, tenant uuid.UUID, entryID int64, actor uuid.UUID, opts PostOptions) (Entry, error) {
	entry, err := tx.GetForUpdate(ctx, tenant, entryID)
	if err != nil {
		return Entry{}, err
	}
	if entry.Status != StatusDraft {
		return Entry{}, ErrNotDraft
	}
	if err := s.gatePeriod(ctx, tx, tenant, entry.EntryDate, opts); err != nil {
		return Entry{}, err
	}
	lines, err := tx.GetLines(ctx, entry.ID)
	if err != nil {
		return Entry{}, err
	}
	accts, err := s.postingAccounts(ctx, tx, tenant, lineAccountIDs(lines))
	if err != nil {
		return Entry{}, err
	}
	at := s.now()
	ok, err := tx.MarkPosted(ctx, tenant, entry.ID, actor, at)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, ErrConcurrentUpdate
	}
	if err := projection.Apply(ctx, tx, projection.EntryMeta{
		TenantID:    tenant,
		EntryID:     entry.ID,
		EntryNumber: entry.EntryNumber,
		Date:        entry.EntryDate,
		Description: entry.Description,
		Reference:   entry.Reference,
	}, projectionLines(lines, accts)); err != nil {
		return Entry{}, err
	}
	entry.Status = StatusPosted
	entry.PostedBy = &actor
	entry.PostedAt = &at
	entry.Lines = lines
	return entry, nil
}

// gatePeriod rejects postings dated into closed or locked months. A missing
// period row means the month has never been closed and is open.
func (s *Service) gatePeriod(ctx context.Context, tx TxRepository, tenant uuid.UUID, date time.Time, opts PostOptions) error {
	status, err := tx.PeriodStatus(ctx, tenant, date.Year(), int(date.Month()))
	if err != nil {
		return err
	}
	switch status {
	case "", periodOpen:
		return nil
	case periodClosed:
		if opts.AllowClosed {
			return nil
		}
		return ErrPeriodClosed
	case periodLocked:
		return ErrPeriodLocked
	default:
		return fmt.Errorf("journal: unknown period status %q", status)
	}
}

// postingAccounts loads and checks every referenced account: it must exist
// for the tenant, be live, and not be a header. Violations name the
// offending accounts.
func (s *Service) postingAccounts(ctx context.Context, tx TxRepository, tenant uuid.UUID, ids []int64) (map[int64]PostingAccount, error) {
	accts, err := tx.AccountsForPosting(ctx, tenant, ids)
	if err != nil {
		return nil, err
	}
	var missing []string
	var headers []string
	for _, id := range ids {
		acct, ok := accts[id]
		if !ok {
			missing = append(missing, fmt.Sprintf("%d", id))
			continue
		}
		if acct.IsHeader {
			headers = append(headers, acct.Code)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: id %s", ErrAccountUnknown, strings.Join(missing, ", "))
	}
	if len(headers) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrHeaderPosting, strings.Join(headers, ", "))
	}
	return accts, nil
}

func inputAccountIDs(lines []LineInput) []int64 {
	seen := make(map[int64]bool, len(lines))
	out := make([]int64, 0, len(lines))
	for _, ln := range lines {
		if !seen[ln.AccountID] {
			seen[ln.AccountID] = true
			out = append(out, ln.AccountID)
		}
	}
	return out
}

func lineAccountIDs(lines []Line) []int64 {
	seen := make(map[int64]bool, len(lines))
	out := make([]int64, 0, len(lines))
	for _, ln := range lines {
		if !seen[ln.AccountID] {
			seen[ln.AccountID] = true
			out = append(out, ln.AccountID)
		}
	}
	return out
}

func projectionLines(lines []Line, accts map[int64]PostingAccount) []projection.Line {
	out := make([]projection.Line, 0, len(lines))
	for _, ln := range lines {
		acct := accts[ln.AccountID]
		out = append(out, projection.Line{
			LineID:        ln.ID,
			AccountID:     ln.AccountID,
			AccountCode:   acct.Code,
			AccountName:   acct.Name,
			AccountType:   acct.Type,
			NormalBalance: acct.Normal,
			Opening:       acct.Opening,
			Debit:         ln.Debit,
			Credit:        ln.Credit,
		})
	}
	return out
}

func (s *Service) record(ctx context.Context, tenant, actor uuid.UUID, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenant,
		ActorID:  actor,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entryID),
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
