package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
)

type mockRepo struct {
	rows     []AccountActivity
	err      error
	calls    int
	lastFrom time.Time
	lastTo   time.Time
}

func (m *mockRepo) ActivityWindow(ctx context.Context, tenant uuid.UUID, from, to time.Time) ([]AccountActivity, error) {
	m.calls++
	m.lastFrom, m.lastTo = from, to
	return m.rows, m.err
}

func newTestService(t *testing.T, repo Repository) (*Service, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	svc := NewService(repo, cache, nil)
	return svc, func() {
		_ = client.Close()
		mr.Close()
	}
}

func balancedRows() []AccountActivity {
	return []AccountActivity{
		bal("1020", "Bank", accounts.TypeAsset, "1500.00", "0"),
		bal("4100", "Sales", accounts.TypeRevenue, "0", "1500.00"),
	}
}

func TestTrialBalanceCaches(t *testing.T) {
	repo := &mockRepo{rows: balancedRows()}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	tenant := uuid.New()
	asOf := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	tb, err := svc.TrialBalance(ctx, tenant, asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tb.TotalDebit.Equal(d("1500.00")) || !tb.IsBalanced {
		t.Fatalf("unexpected trial balance: %+v", tb)
	}
	if !repo.lastFrom.IsZero() {
		t.Fatalf("as-of reports must read from the beginning, got from=%v", repo.lastFrom)
	}
	if repo.calls != 1 {
		t.Fatalf("expected 1 repo call, got %d", repo.calls)
	}

	// Second call should hit cache, amounts intact.
	tb, err = svc.TrialBalance(ctx, tenant, asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("expected cached result, repo called %d times", repo.calls)
	}
	if !tb.TotalCredit.Equal(d("1500.00")) {
		t.Fatalf("amounts must survive the cache round-trip, got %s", tb.TotalCredit)
	}

	// Bumping the tenant version should trigger reload.
	if err := svc.cache.Bump(ctx, tenant); err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	repo.rows = []AccountActivity{
		bal("1020", "Bank", accounts.TypeAsset, "2000.00", "0"),
		bal("4100", "Sales", accounts.TypeRevenue, "0", "2000.00"),
	}
	tb, err = svc.TrialBalance(ctx, tenant, asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tb.TotalDebit.Equal(d("2000.00")) {
		t.Fatalf("expected refreshed totals, got %s", tb.TotalDebit)
	}
	if repo.calls != 2 {
		t.Fatalf("expected repo to refresh, calls %d", repo.calls)
	}
}

func TestBumpLeavesOtherTenantsCached(t *testing.T) {
	repo := &mockRepo{rows: balancedRows()}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	one, two := uuid.New(), uuid.New()
	asOf := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	if _, err := svc.TrialBalance(ctx, one, asOf); err != nil {
		t.Fatalf("warm one: %v", err)
	}
	if _, err := svc.TrialBalance(ctx, two, asOf); err != nil {
		t.Fatalf("warm two: %v", err)
	}
	if repo.calls != 2 {
		t.Fatalf("expected 2 warm-up calls, got %d", repo.calls)
	}

	if err := svc.cache.Bump(ctx, one); err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	if _, err := svc.TrialBalance(ctx, two, asOf); err != nil {
		t.Fatalf("read two: %v", err)
	}
	if repo.calls != 2 {
		t.Fatalf("tenant two must stay cached, repo calls %d", repo.calls)
	}
	if _, err := svc.TrialBalance(ctx, one, asOf); err != nil {
		t.Fatalf("read one: %v", err)
	}
	if repo.calls != 3 {
		t.Fatalf("tenant one must reload after its bump, repo calls %d", repo.calls)
	}
}

func TestReportWindowValidation(t *testing.T) {
	repo := &mockRepo{rows: balancedRows()}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	tenant := uuid.New()
	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := svc.ProfitAndLoss(ctx, tenant, from, to); !errors.Is(err, ErrBadWindow) {
		t.Fatalf("inverted window: got %v", err)
	}
	if _, err := svc.CashFlow(ctx, tenant, time.Time{}, to); !errors.Is(err, ErrBadWindow) {
		t.Fatalf("open-ended window: got %v", err)
	}
	if _, err := svc.TrialBalance(ctx, tenant, time.Time{}); !errors.Is(err, ErrBadWindow) {
		t.Fatalf("zero as-of: got %v", err)
	}
	if _, err := svc.BalanceSheet(ctx, tenant, time.Time{}); !errors.Is(err, ErrBadWindow) {
		t.Fatalf("zero as-of: got %v", err)
	}
	if repo.calls != 0 {
		t.Fatalf("validation must run before the repo, calls %d", repo.calls)
	}
}

func TestProfitAndLossComparisonReadsBothWindows(t *testing.T) {
	repo := &mockRepo{rows: []AccountActivity{
		bal("4100", "Sales", accounts.TypeRevenue, "0", "1000.00"),
	}}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	tenant := uuid.New()
	cmp, err := svc.ProfitAndLossComparison(ctx, tenant,
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("comparison error: %v", err)
	}
	if repo.calls != 2 {
		t.Fatalf("expected one read per window, got %d", repo.calls)
	}
	if len(cmp.Lines) != 1 || !cmp.Lines[0].Change.IsZero() {
		t.Fatalf("identical windows should show zero variance, got %+v", cmp.Lines)
	}
}

func TestFreshReadsBypassCache(t *testing.T) {
	repo := &mockRepo{rows: balancedRows()}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	ctx := context.Background()
	tenant := uuid.New()
	asOf := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	if _, err := svc.TrialBalance(ctx, tenant, asOf); err != nil {
		t.Fatalf("warm: %v", err)
	}

	debit, credit, err := svc.TrialBalanceTotals(ctx, tenant, asOf)
	if err != nil {
		t.Fatalf("totals error: %v", err)
	}
	if !debit.Equal(d("1500.00")) || !credit.Equal(d("1500.00")) {
		t.Fatalf("unexpected totals %s / %s", debit, credit)
	}
	if repo.calls != 2 {
		t.Fatalf("totals must reread the ledger, calls %d", repo.calls)
	}

	net, err := svc.NetIncome(ctx, tenant, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), asOf)
	if err != nil {
		t.Fatalf("net income error: %v", err)
	}
	if !net.Equal(d("1500.00")) {
		t.Fatalf("unexpected net income %s", net)
	}
	if repo.calls != 3 {
		t.Fatalf("net income must reread the ledger, calls %d", repo.calls)
	}
}

func TestReportsSurfaceRepoErrors(t *testing.T) {
	boom := errors.New("boom")
	repo := &mockRepo{err: boom}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	_, err := svc.BalanceSheet(context.Background(), uuid.New(), time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, boom) {
		t.Fatalf("expected the repo error, got %v", err)
	}
}
