package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
	"github.com/meridian-gl/meridian-gl/internal/ledger/projection"
	"github.com/meridian-gl/meridian-gl/internal/shared"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeRepo struct {
	journal     []JournalTotals
	ledger      []LedgerTotals
	lastAccount *int64
}

func (f *fakeRepo) JournalTotals(ctx context.Context, tenant uuid.UUID, accountID *int64) ([]JournalTotals, error) {
	f.lastAccount = accountID
	return f.journal, nil
}

func (f *fakeRepo) LedgerTotals(ctx context.Context, tenant uuid.UUID, accountID *int64) ([]LedgerTotals, error) {
	return f.ledger, nil
}

type rebuilderStub struct {
	calls       int
	lastAccount *int64
	fix         func()
	result      projection.RebuildResult
}

func (r *rebuilderStub) Rebuild(ctx context.Context, tenant uuid.UUID, accountID *int64) (projection.RebuildResult, error) {
	r.calls++
	r.lastAccount = accountID
	if r.fix != nil {
		r.fix()
	}
	return r.result, nil
}

type auditStub struct {
	logs []shared.AuditLog
}

func (a *auditStub) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func cleanSides() ([]JournalTotals, []LedgerTotals) {
	journal := []JournalTotals{
		{AccountID: 1, Code: "1020", Name: "Bank", Normal: accounts.NormalDebit,
			Opening: dec("100.00"), Lines: 2, Debit: dec("1500.00"), Credit: dec("500.00")},
		{AccountID: 2, Code: "4100", Name: "Sales", Normal: accounts.NormalCredit,
			Lines: 1, Credit: dec("1500.00")},
	}
	ledger := []LedgerTotals{
		{AccountID: 1, Code: "1020", Name: "Bank", Normal: accounts.NormalDebit,
			Opening: dec("100.00"), Rows: 2, Debit: dec("1500.00"), Credit: dec("500.00"),
			LastRunning: dec("1100.00")},
		{AccountID: 2, Code: "4100", Name: "Sales", Normal: accounts.NormalCredit,
			Rows: 1, Credit: dec("1500.00"), LastRunning: dec("1500.00")},
	}
	return journal, ledger
}

func fixture() (*Service, *fakeRepo, *rebuilderStub, *auditStub) {
	repo := &fakeRepo{}
	repo.journal, repo.ledger = cleanSides()
	rebuild := &rebuilderStub{result: projection.RebuildResult{Transactions: 3}}
	audit := &auditStub{}
	svc := NewService(repo, rebuild, audit)
	svc.WithNow(func() time.Time { return time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC) })
	return svc, repo, rebuild, audit
}

func TestReconcileCleanLedger(t *testing.T) {
	svc, repo, _, _ := fixture()

	report, err := svc.Reconcile(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	require.True(t, report.InSync)
	require.Empty(t, report.Drifts)
	require.Equal(t, 2, report.AccountsChecked)
	require.Nil(t, repo.lastAccount)
}

func TestReconcileDetectsMissingRows(t *testing.T) {
	svc, repo, _, _ := fixture()
	// The projection lost the bank account entirely.
	repo.ledger = repo.ledger[1:]

	report, err := svc.Reconcile(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	require.False(t, report.InSync)
	require.Len(t, report.Drifts, 1)

	drift := report.Drifts[0]
	require.Equal(t, "1020", drift.Code)
	require.EqualValues(t, 2, drift.JournalLines)
	require.EqualValues(t, 0, drift.LedgerRows)
	require.True(t, drift.ImpliedBalance.Equal(dec("1100.00")), "implied %s", drift.ImpliedBalance)
	require.True(t, drift.ProjectedBalance.Equal(dec("100.00")), "projected falls back to opening, got %s", drift.ProjectedBalance)
	require.True(t, drift.Difference.Equal(dec("-1000.00")), "difference %s", drift.Difference)
}

func TestReconcileFlagsPennyDrift(t *testing.T) {
	svc, repo, _, _ := fixture()
	repo.ledger[0].LastRunning = dec("1100.01")

	report, err := svc.Reconcile(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 1)
	require.True(t, report.Drifts[0].Difference.Equal(dec("0.01")), "a cent of drift is drift")
}

func TestReconcileDetectsOrphanRows(t *testing.T) {
	svc, repo, _, _ := fixture()
	repo.ledger = append(repo.ledger, LedgerTotals{
		AccountID: 9, Code: "9999", Name: "Ghost", Normal: accounts.NormalDebit,
		Rows: 1, Debit: dec("250.00"), LastRunning: dec("250.00"),
	})

	report, err := svc.Reconcile(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	require.Equal(t, 3, report.AccountsChecked)
	require.Len(t, report.Drifts, 1)

	drift := report.Drifts[0]
	require.Equal(t, "9999", drift.Code)
	require.EqualValues(t, 0, drift.JournalLines)
	require.True(t, drift.ImpliedBalance.IsZero())
	require.True(t, drift.Difference.Equal(dec("250.00")))
}

func TestReconcileScopesToAccount(t *testing.T) {
	svc, repo, _, _ := fixture()
	id := int64(1)

	_, err := svc.Reconcile(context.Background(), uuid.New(), &id)
	require.NoError(t, err)
	require.NotNil(t, repo.lastAccount)
	require.Equal(t, id, *repo.lastAccount)
}

func TestReconcileRequiresTenant(t *testing.T) {
	svc, _, _, _ := fixture()
	_, err := svc.Reconcile(context.Background(), uuid.Nil, nil)
	require.Error(t, err)
}

func TestAutoFixRebuildsAndVerifies(t *testing.T) {
	svc, repo, rebuild, audit := fixture()
	tenant := uuid.New()
	actor := uuid.New()

	// Break the projection; the rebuild stub restores it.
	good := repo.ledger
	repo.ledger = nil
	rebuild.fix = func() { repo.ledger = good }

	res, err := svc.AutoFix(context.Background(), tenant, nil, actor)
	require.NoError(t, err)
	require.Equal(t, 1, rebuild.calls)
	require.False(t, res.Before.InSync)
	require.True(t, res.After.InSync)
	require.True(t, res.Repaired)
	require.Equal(t, 3, res.Rebuild.Transactions)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "ledger.reconcile_fix", audit.logs[0].Action)
	require.Equal(t, actor, audit.logs[0].ActorID)
	require.Equal(t, 2, audit.logs[0].Meta["drifts_before"])
	require.Equal(t, 0, audit.logs[0].Meta["drifts_after"])
}

func TestAutoFixSkipsCleanLedger(t *testing.T) {
	svc, _, rebuild, audit := fixture()

	res, err := svc.AutoFix(context.Background(), uuid.New(), nil, uuid.New())
	require.NoError(t, err)
	require.Zero(t, rebuild.calls)
	require.True(t, res.Repaired)
	require.Empty(t, audit.logs)
}

func TestAutoFixReportsStubbornDrift(t *testing.T) {
	svc, repo, rebuild, _ := fixture()
	repo.ledger = nil

	res, err := svc.AutoFix(context.Background(), uuid.New(), nil, uuid.New())
	require.NoError(t, err)
	require.Equal(t, 1, rebuild.calls)
	require.False(t, res.Repaired)
	require.False(t, res.After.InSync)
}
