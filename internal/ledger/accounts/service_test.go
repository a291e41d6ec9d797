package accounts

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-gl/meridian-gl/internal/shared"
)

type memoryRepo struct {
	accounts map[int64]*Account
	refs     map[int64]int
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: make(map[int64]*Account), refs: make(map[int64]int)}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, tenant uuid.UUID, id int64) (Account, error) {
	a, ok := r.accounts[id]
	if !ok || a.TenantID != tenant || a.DeletedAt != nil {
		return Account{}, ErrNotFound
	}
	return *a, nil
}

func (r *memoryRepo) GetByCode(ctx context.Context, tenant uuid.UUID, code string) (Account, error) {
	for _, a := range r.accounts {
		if a.TenantID == tenant && a.Code == code && a.DeletedAt == nil {
			return *a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, tenant uuid.UUID) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		if a.TenantID == tenant && a.DeletedAt == nil {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (r *memoryRepo) BalanceAsOf(ctx context.Context, tenant uuid.UUID, id int64, asOf time.Time) (decimal.Decimal, error) {
	a, ok := r.accounts[id]
	if !ok || a.TenantID != tenant {
		return decimal.Zero, ErrNotFound
	}
	return a.OpeningBalance, nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, tenant uuid.UUID, id int64) (Account, error) {
	return tx.repo.Get(ctx, tenant, id)
}

func (tx *memoryTx) FindByCode(ctx context.Context, tenant uuid.UUID, code string) (Account, bool, error) {
	a, err := tx.repo.GetByCode(ctx, tenant, code)
	if err != nil {
		return Account{}, false, nil
	}
	return a, true, nil
}

func (tx *memoryTx) Insert(ctx context.Context, a Account) (Account, error) {
	for _, existing := range tx.repo.accounts {
		if existing.TenantID == a.TenantID && existing.Code == a.Code && existing.DeletedAt == nil {
			return Account{}, ErrCodeTaken
		}
	}
	tx.repo.nextID++
	a.ID = tx.repo.nextID
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	tx.repo.accounts[a.ID] = &a
	return a, nil
}

func (tx *memoryTx) UpdateNode(ctx context.Context, a Account) error {
	stored, ok := tx.repo.accounts[a.ID]
	if !ok {
		return ErrNotFound
	}
	a.CreatedAt = stored.CreatedAt
	a.UpdatedAt = time.Now()
	tx.repo.accounts[a.ID] = &a
	return nil
}

func (tx *memoryTx) RepathDescendants(ctx context.Context, tenant uuid.UUID, oldPath, newPath string, levelDelta int) (int64, error) {
	var n int64
	prefix := oldPath + "/"
	for _, a := range tx.repo.accounts {
		if a.TenantID != tenant || a.DeletedAt != nil || !strings.HasPrefix(a.Path, prefix) {
			continue
		}
		a.Path = newPath + a.Path[len(oldPath):]
		a.Level += levelDelta
		n++
	}
	return n, nil
}

func (tx *memoryTx) SoftDelete(ctx context.Context, tenant uuid.UUID, id int64, at time.Time) error {
	a, ok := tx.repo.accounts[id]
	if !ok || a.TenantID != tenant || a.DeletedAt != nil {
		return ErrNotFound
	}
	a.DeletedAt = &at
	return nil
}

func (tx *memoryTx) LiveChildCount(ctx context.Context, tenant uuid.UUID, id int64) (int, error) {
	n := 0
	for _, a := range tx.repo.accounts {
		if a.TenantID == tenant && a.DeletedAt == nil && a.ParentID != nil && *a.ParentID == id {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) PostingRefCount(ctx context.Context, id int64) (int, error) {
	return tx.repo.refs[id], nil
}

func (tx *memoryTx) AnyAccountExists(ctx context.Context, tenant uuid.UUID) (bool, error) {
	for _, a := range tx.repo.accounts {
		if a.TenantID == tenant && a.DeletedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

type recorderStub struct {
	logs []shared.AuditLog
}

func (r *recorderStub) Record(ctx context.Context, log shared.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func TestCreateDerivesDefaultsAndPath(t *testing.T) {
	repo := newMemoryRepo()
	audit := &recorderStub{}
	svc := NewService(repo, audit)
	ctx := context.Background()
	tenant := uuid.New()

	root, err := svc.Create(ctx, CreateInput{
		TenantID: tenant,
		Code:     "1000",
		Name:     "Current Assets",
		Type:     TypeAsset,
		IsHeader: true,
	})
	require.NoError(t, err)
	require.Equal(t, NormalDebit, root.NormalBalance)
	require.Equal(t, 1, root.Level)
	require.Equal(t, "1000", root.Path)

	child, err := svc.Create(ctx, CreateInput{
		TenantID:   tenant,
		Code:       "1100",
		Name:       "Accounts Receivable",
		Type:       TypeAsset,
		SubType:    SubTypeCurrentAsset,
		ParentCode: "1000",
	})
	require.NoError(t, err)
	require.Equal(t, 2, child.Level)
	require.Equal(t, "1000/1100", child.Path)
	require.NotNil(t, child.ParentID)
	require.Equal(t, root.ID, *child.ParentID)
	require.Len(t, audit.logs, 2)
	require.Equal(t, "account.create", audit.logs[0].Action)

	_, err = svc.Create(ctx, CreateInput{
		TenantID: tenant,
		Code:     "1100",
		Name:     "Duplicate",
		Type:     TypeAsset,
	})
	require.ErrorIs(t, err, ErrCodeTaken)

	_, err = svc.Create(ctx, CreateInput{
		TenantID:   tenant,
		Code:       "1110",
		Name:       "Orphan",
		Type:       TypeAsset,
		ParentCode: "9999",
	})
	require.ErrorIs(t, err, ErrParentNotFound)
}

func TestCreateDefaultsCreditForLiability(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	tenant := uuid.New()

	created, err := svc.Create(context.Background(), CreateInput{
		TenantID: tenant,
		Code:     "2100",
		Name:     "Accounts Payable",
		Type:     TypeLiability,
	})
	require.NoError(t, err)
	require.Equal(t, NormalCredit, created.NormalBalance)
}

func TestCreateRejectsInvalidType(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		TenantID: uuid.New(),
		Code:     "9000",
		Name:     "Mystery",
		Type:     "suspense",
	})
	require.Error(t, err)
}

func TestUpdateReparentCascadesPaths(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	tenant := uuid.New()

	assets, err := svc.Create(ctx, CreateInput{TenantID: tenant, Code: "1000", Name: "Assets", Type: TypeAsset, IsHeader: true})
	require.NoError(t, err)
	mid, err := svc.Create(ctx, CreateInput{TenantID: tenant, Code: "1100", Name: "Receivables", Type: TypeAsset, ParentCode: "1000", IsHeader: true})
	require.NoError(t, err)
	leaf, err := svc.Create(ctx, CreateInput{TenantID: tenant, Code: "1110", Name: "Trade AR", Type: TypeAsset, ParentCode: "1100"})
	require.NoError(t, err)
	other, err := svc.Create(ctx, CreateInput{TenantID: tenant, Code: "1900", Name: "Other Assets", Type: TypeAsset, IsHeader: true})
	require.NoError(t, err)

	newParent := other.Code
	updated, err := svc.Update(ctx, tenant, mid.ID, UpdateInput{ParentCode: &newParent})
	require.NoError(t, err)
	require.Equal(t, "1900/1100", updated.Path)
	require.Equal(t, 2, updated.Level)

	moved, err := svc.Get(ctx, tenant, leaf.ID)
	require.NoError(t, err)
	require.Equal(t, "1900/1100/1110", moved.Path)
	require.Equal(t, 3, moved.Level)

	untouched, err := svc.Get(ctx, tenant, assets.ID)
	require.NoError(t, err)
	require.Equal(t, "1000", untouched.Path)
}

func TestUpdateCodeRenameCascades(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	tenant := uuid.New()

	_, err := svc.Create(ctx, CreateInput{TenantID: tenant, Code: "1000", Name: "Assets", Type: TypeAsset, IsHeader: true})
	require.NoError(t, err)
	mid, err := svc.Create(ctx, CreateInput{TenantID: tenant, Code: "1100", Name: "Receivables", Type: TypeAsset, ParentCode: "1000"})
	require.NoError(t, err)
	leaf, err := svc.Create(ctx, CreateInput{TenantID: tenant, Code: "1110", Name: "Trade AR", Type: TypeAsset, ParentCode: "1100"})
	require.NoError(t, err)

	renamed := "1150"
	updated, err := svc.Update(ctx, tenant, mid.ID, UpdateInput{Code: &renamed})
	require.NoError(t, err)
	require.Equal(t, "1000/1150", updated.Path)

	moved, err := svc.Get(ctx, tenant, leaf.ID)
	require.NoError(t, err)
	require.Equal(t, "1000/1150/1110", moved.Path)
}

func TestUpdateRejectsCycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	tenant := uuid.New()

	root, err := svc.Create(ctx, CreateInput{TenantID: tenant, Code: "1000", Name: "Assets", Type: TypeAsset, IsHeader: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{TenantID: tenant, Code: "1100", Name: "Receivables", Type: TypeAsset, ParentCode: "1000", IsHeader: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{TenantID: tenant, Code: "1110", Name: "Trade AR", Type: TypeAsset, ParentCode: "1100"})
	require.NoError(t, err)

	descendant := "1110"
	_, err = svc.Update(ctx, tenant, root.ID, UpdateInput{ParentCode: &descendant})
	require.ErrorIs(t, err, ErrParentCycle)

	self := "1000"
	_, err = svc.Update(ctx, tenant, root.ID, UpdateInput{ParentCode: &self})
	require.ErrorIs(t, err, ErrParentCycle)
}

func TestSoftDeleteGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	tenant := uuid.New()

	system, err := svc.Create(ctx, CreateInput{TenantID: tenant, Code: "3200", Name: "Retained Earnings", Type: TypeEquity, IsSystem: true})
	require.NoError(t, err)
	require.ErrorIs(t, svc.SoftDelete(ctx, tenant, system.ID), ErrSystemAccount)

	parent, err := svc.Create(ctx, CreateInput{TenantID: tenant, Code: "1000", Name: "Assets", Type: TypeAsset, IsHeader: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{TenantID: tenant, Code: "1100", Name: "Receivables", Type: TypeAsset, ParentCode: "1000"})
	require.NoError(t, err)
	require.ErrorIs(t, svc.SoftDelete(ctx, tenant, parent.ID), ErrHasChildren)

	posted, err := svc.Create(ctx, CreateInput{TenantID: tenant, Code: "4100", Name: "Sales", Type: TypeRevenue})
	require.NoError(t, err)
	repo.refs[posted.ID] = 3
	require.ErrorIs(t, svc.SoftDelete(ctx, tenant, posted.ID), ErrHasPostings)

	spare, err := svc.Create(ctx, CreateInput{TenantID: tenant, Code: "5230", Name: "Utilities", Type: TypeExpense})
	require.NoError(t, err)
	require.NoError(t, svc.SoftDelete(ctx, tenant, spare.ID))
	_, err = svc.Get(ctx, tenant, spare.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSeedDefaultChart(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	tenant := uuid.New()

	created, err := svc.SeedDefaultChart(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, created, len(DefaultChart))

	retained, err := svc.GetByCode(ctx, tenant, "3200")
	require.NoError(t, err)
	require.True(t, retained.IsSystem)
	require.Equal(t, "3000/3200", retained.Path)

	accum, err := svc.GetByCode(ctx, tenant, "1520")
	require.NoError(t, err)
	require.Equal(t, NormalCredit, accum.NormalBalance)
	require.Equal(t, TypeAsset, accum.Type)

	_, err = svc.SeedDefaultChart(ctx, tenant)
	require.ErrorIs(t, err, ErrSeeded)

	other := uuid.New()
	again, err := svc.SeedDefaultChart(ctx, other)
	require.NoError(t, err)
	require.Len(t, again, len(DefaultChart))
}
