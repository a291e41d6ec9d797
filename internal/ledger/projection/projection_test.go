package projection

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
)

type memTx struct {
	rows   []Transaction
	months map[string]*MonthlyBalance
	nextID int64
}

func newMemTx() *memTx {
	return &memTx{months: make(map[string]*MonthlyBalance)}
}

func monthKey(account int64, year, month int) string {
	return fmt.Sprintf("%d:%04d-%02d", account, year, month)
}

func (m *memTx) LatestRunningBalance(ctx context.Context, tenant uuid.UUID, accountID int64, asOf time.Time) (decimal.Decimal, bool, error) {
	best := -1
	for i, row := range m.rows {
		if row.AccountID != accountID || row.TransactionDate.After(asOf) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		prev := m.rows[best]
		if row.TransactionDate.After(prev.TransactionDate) ||
			(row.TransactionDate.Equal(prev.TransactionDate) && row.ID > prev.ID) {
			best = i
		}
	}
	if best < 0 {
		return decimal.Zero, false, nil
	}
	return m.rows[best].RunningBalance, true, nil
}

func (m *memTx) InsertTransaction(ctx context.Context, t Transaction) error {
	m.nextID++
	t.ID = m.nextID
	m.rows = append(m.rows, t)
	return nil
}

func (m *memTx) ShiftRunningBalances(ctx context.Context, tenant uuid.UUID, accountID int64, after time.Time, delta decimal.Decimal) (int64, error) {
	var n int64
	for i := range m.rows {
		if m.rows[i].AccountID == accountID && m.rows[i].TransactionDate.After(after) {
			m.rows[i].RunningBalance = m.rows[i].RunningBalance.Add(delta)
			n++
		}
	}
	return n, nil
}

func (m *memTx) UpsertMonthlyBalance(ctx context.Context, d MonthlyDelta) error {
	key := monthKey(d.AccountID, d.Year, d.Month)
	if b, ok := m.months[key]; ok {
		b.PeriodDebit = b.PeriodDebit.Add(d.Debit)
		b.PeriodCredit = b.PeriodCredit.Add(d.Credit)
		b.ClosingBalance = b.ClosingBalance.Add(d.Delta)
		return nil
	}
	opening := d.Opening
	var bestYear, bestMonth int
	for _, b := range m.months {
		if b.AccountID != d.AccountID {
			continue
		}
		if b.Year > d.Year || (b.Year == d.Year && b.Month >= d.Month) {
			continue
		}
		if b.Year > bestYear || (b.Year == bestYear && b.Month > bestMonth) {
			bestYear, bestMonth = b.Year, b.Month
			opening = b.ClosingBalance
		}
	}
	m.months[key] = &MonthlyBalance{
		TenantID:       d.TenantID,
		AccountID:      d.AccountID,
		Year:           d.Year,
		Month:          d.Month,
		OpeningBalance: opening,
		PeriodDebit:    d.Debit,
		PeriodCredit:   d.Credit,
		ClosingBalance: opening.Add(d.Delta),
	}
	return nil
}

func (m *memTx) ShiftMonthlyBalances(ctx context.Context, tenant uuid.UUID, accountID int64, year, month int, delta decimal.Decimal) error {
	for _, b := range m.months {
		if b.AccountID != accountID {
			continue
		}
		if b.Year > year || (b.Year == year && b.Month > month) {
			b.OpeningBalance = b.OpeningBalance.Add(delta)
			b.ClosingBalance = b.ClosingBalance.Add(delta)
		}
	}
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func cashLine(lineID int64) Line {
	return Line{
		LineID:        lineID,
		AccountID:     1,
		AccountCode:   "1020",
		AccountName:   "Bank Account",
		AccountType:   accounts.TypeAsset,
		NormalBalance: accounts.NormalDebit,
	}
}

func revenueLine(lineID int64) Line {
	return Line{
		LineID:        lineID,
		AccountID:     2,
		AccountCode:   "4100",
		AccountName:   "Sales Revenue",
		AccountType:   accounts.TypeRevenue,
		NormalBalance: accounts.NormalCredit,
	}
}

func TestApplyWriteThrough(t *testing.T) {
	tx := newMemTx()
	tenant := uuid.New()
	ctx := context.Background()

	cash := cashLine(11)
	cash.Debit = dec("1000.00")
	rev := revenueLine(12)
	rev.Credit = dec("1000.00")
	meta := EntryMeta{TenantID: tenant, EntryID: 5, EntryNumber: "JE-2025-00001", Date: date(2025, time.March, 10), Description: "Invoice INV-1"}

	require.NoError(t, Apply(ctx, tx, meta, []Line{cash, rev}))
	require.Len(t, tx.rows, 2)

	require.Equal(t, "1000.00", tx.rows[0].RunningBalance.StringFixed(2))
	require.Equal(t, "1020", tx.rows[0].AccountCode)
	require.Equal(t, "JE-2025-00001", tx.rows[0].EntryNumber)
	require.Equal(t, "1000.00", tx.rows[1].RunningBalance.StringFixed(2))

	bank := tx.months[monthKey(1, 2025, 3)]
	require.NotNil(t, bank)
	require.Equal(t, "1000.00", bank.PeriodDebit.StringFixed(2))
	require.Equal(t, "1000.00", bank.ClosingBalance.StringFixed(2))
	require.Equal(t, "0.00", bank.OpeningBalance.StringFixed(2))
}

func TestApplyAccumulatesWithinEntry(t *testing.T) {
	tx := newMemTx()
	tenant := uuid.New()
	ctx := context.Background()

	first := cashLine(21)
	first.Debit = dec("600.00")
	second := cashLine(22)
	second.Debit = dec("400.00")
	rev := revenueLine(23)
	rev.Credit = dec("1000.00")
	meta := EntryMeta{TenantID: tenant, EntryID: 7, EntryNumber: "JE-2025-00002", Date: date(2025, time.March, 12)}

	require.NoError(t, Apply(ctx, tx, meta, []Line{first, second, rev}))
	require.Equal(t, "600.00", tx.rows[0].RunningBalance.StringFixed(2))
	require.Equal(t, "1000.00", tx.rows[1].RunningBalance.StringFixed(2))

	bank := tx.months[monthKey(1, 2025, 3)]
	require.Equal(t, "1000.00", bank.PeriodDebit.StringFixed(2))
	require.Equal(t, "1000.00", bank.ClosingBalance.StringFixed(2))
}

func TestApplyStartsFromOpeningBalance(t *testing.T) {
	tx := newMemTx()
	tenant := uuid.New()

	cash := cashLine(31)
	cash.Opening = dec("250.00")
	cash.Debit = dec("100.00")
	rev := revenueLine(32)
	rev.Credit = dec("100.00")
	meta := EntryMeta{TenantID: tenant, EntryID: 9, EntryNumber: "JE-2025-00003", Date: date(2025, time.January, 5)}

	require.NoError(t, Apply(context.Background(), tx, meta, []Line{cash, rev}))
	require.Equal(t, "350.00", tx.rows[0].RunningBalance.StringFixed(2))
	require.Equal(t, "350.00", tx.months[monthKey(1, 2025, 1)].ClosingBalance.StringFixed(2))
	require.Equal(t, "250.00", tx.months[monthKey(1, 2025, 1)].OpeningBalance.StringFixed(2))
}

func TestApplyBackdatedShiftsLaterRows(t *testing.T) {
	tx := newMemTx()
	tenant := uuid.New()
	ctx := context.Background()

	// March activity first.
	cash := cashLine(41)
	cash.Debit = dec("1000.00")
	rev := revenueLine(42)
	rev.Credit = dec("1000.00")
	require.NoError(t, Apply(ctx, tx, EntryMeta{TenantID: tenant, EntryID: 1, EntryNumber: "JE-2025-00001", Date: date(2025, time.March, 10)}, []Line{cash, rev}))

	// Then a backdated February entry against the same accounts.
	back := cashLine(43)
	back.Debit = dec("200.00")
	backRev := revenueLine(44)
	backRev.Credit = dec("200.00")
	require.NoError(t, Apply(ctx, tx, EntryMeta{TenantID: tenant, EntryID: 2, EntryNumber: "JE-2025-00002", Date: date(2025, time.February, 20)}, []Line{back, backRev}))

	// The February row lands at 200, and the March row shifts to 1200.
	require.Equal(t, "200.00", tx.rows[2].RunningBalance.StringFixed(2))
	require.Equal(t, "1200.00", tx.rows[0].RunningBalance.StringFixed(2))

	feb := tx.months[monthKey(1, 2025, 2)]
	mar := tx.months[monthKey(1, 2025, 3)]
	require.Equal(t, "200.00", feb.ClosingBalance.StringFixed(2))
	require.Equal(t, "200.00", mar.OpeningBalance.StringFixed(2))
	require.Equal(t, "1200.00", mar.ClosingBalance.StringFixed(2))
}

func replayFixture() (map[int64]AccountInfo, []ReplayLine) {
	accts := map[int64]AccountInfo{
		1: {ID: 1, Code: "1020", Name: "Bank Account", Type: accounts.TypeAsset, Normal: accounts.NormalDebit, Opening: dec("500.00")},
		2: {ID: 2, Code: "4100", Name: "Sales Revenue", Type: accounts.TypeRevenue, Normal: accounts.NormalCredit},
	}
	lines := []ReplayLine{
		{EntryID: 1, EntryNumber: "JE-2025-00001", Date: date(2025, time.January, 10), LineID: 1, AccountID: 1, Debit: dec("300.00")},
		{EntryID: 1, EntryNumber: "JE-2025-00001", Date: date(2025, time.January, 10), LineID: 2, AccountID: 2, Credit: dec("300.00")},
		{EntryID: 2, EntryNumber: "JE-2025-00002", Date: date(2025, time.February, 5), LineID: 3, AccountID: 1, Debit: dec("150.00")},
		{EntryID: 2, EntryNumber: "JE-2025-00002", Date: date(2025, time.February, 5), LineID: 4, AccountID: 2, Credit: dec("150.00")},
	}
	return accts, lines
}

func TestReplayRunningBalancesAndMonths(t *testing.T) {
	tenant := uuid.New()
	accts, lines := replayFixture()

	rows, months, touched, err := replay(tenant, accts, lines)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if touched != 2 {
		t.Fatalf("expected 2 accounts touched, got %d", touched)
	}
	if got := rows[0].RunningBalance.StringFixed(2); got != "800.00" {
		t.Fatalf("bank after entry 1 = %s, want 800.00", got)
	}
	if got := rows[2].RunningBalance.StringFixed(2); got != "950.00" {
		t.Fatalf("bank after entry 2 = %s, want 950.00", got)
	}
	if got := rows[3].RunningBalance.StringFixed(2); got != "450.00" {
		t.Fatalf("revenue after entry 2 = %s, want 450.00", got)
	}

	if len(months) != 4 {
		t.Fatalf("expected 4 month rows, got %d", len(months))
	}
	// months sorted by account then year/month: bank Jan, bank Feb, rev Jan, rev Feb.
	if got := months[0].OpeningBalance.StringFixed(2); got != "500.00" {
		t.Fatalf("bank Jan opening = %s, want 500.00", got)
	}
	if got := months[1].OpeningBalance.StringFixed(2); got != "800.00" {
		t.Fatalf("bank Feb opening = %s, want 800.00", got)
	}
	if got := months[1].ClosingBalance.StringFixed(2); got != "950.00" {
		t.Fatalf("bank Feb closing = %s, want 950.00", got)
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	tenant := uuid.New()
	accts, lines := replayFixture()

	first, firstMonths, _, err := replay(tenant, accts, lines)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	second, secondMonths, _, err := replay(tenant, accts, lines)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(first) != len(second) || len(firstMonths) != len(secondMonths) {
		t.Fatalf("replay output sizes differ")
	}
	for i := range first {
		a, b := first[i], second[i]
		if a.EntryID != b.EntryID || a.LineID != b.LineID || a.AccountID != b.AccountID ||
			!a.Debit.Equal(b.Debit) || !a.Credit.Equal(b.Credit) || !a.RunningBalance.Equal(b.RunningBalance) {
			t.Fatalf("replay row %d differs between runs", i)
		}
	}
	for i := range firstMonths {
		a, b := firstMonths[i], secondMonths[i]
		if !a.OpeningBalance.Equal(b.OpeningBalance) || !a.ClosingBalance.Equal(b.ClosingBalance) {
			t.Fatalf("replay month %d differs between runs", i)
		}
	}
}

func TestReplayRejectsUnknownAccount(t *testing.T) {
	tenant := uuid.New()
	lines := []ReplayLine{{EntryID: 1, EntryNumber: "JE-2025-00001", Date: date(2025, time.January, 1), LineID: 1, AccountID: 99, Debit: dec("10.00")}}

	_, _, _, err := replay(tenant, map[int64]AccountInfo{}, lines)
	require.ErrorIs(t, err, ErrAccountMissing)
}

type memRebuildRepo struct {
	tx *memRebuildTx
}

type memRebuildTx struct {
	accts        map[int64]AccountInfo
	lines        []ReplayLine
	locked       bool
	deletedTx    int64
	deletedMonth int64
	inserted     []Transaction
	months       []MonthlyBalance
}

func (r *memRebuildRepo) WithTx(ctx context.Context, fn func(context.Context, RebuildTx) error) error {
	return fn(ctx, r.tx)
}

func (m *memRebuildTx) AcquireRebuildLock(ctx context.Context, key int64) error {
	m.locked = true
	return nil
}

func (m *memRebuildTx) ListAccounts(ctx context.Context, tenant uuid.UUID) (map[int64]AccountInfo, error) {
	return m.accts, nil
}

func (m *memRebuildTx) ListPostedLines(ctx context.Context, tenant uuid.UUID, accountID *int64) ([]ReplayLine, error) {
	if accountID == nil {
		return m.lines, nil
	}
	var out []ReplayLine
	for _, ln := range m.lines {
		if ln.AccountID == *accountID {
			out = append(out, ln)
		}
	}
	return out, nil
}

func (m *memRebuildTx) DeleteTransactions(ctx context.Context, tenant uuid.UUID, accountID *int64) (int64, error) {
	m.deletedTx = 4
	return m.deletedTx, nil
}

func (m *memRebuildTx) DeleteMonthlyBalances(ctx context.Context, tenant uuid.UUID, accountID *int64) (int64, error) {
	m.deletedMonth = 2
	return m.deletedMonth, nil
}

func (m *memRebuildTx) InsertTransactions(ctx context.Context, rows []Transaction) error {
	m.inserted = rows
	return nil
}

func (m *memRebuildTx) InsertMonthlyBalances(ctx context.Context, rows []MonthlyBalance) error {
	m.months = rows
	return nil
}

func TestRebuildReplaysUnderLock(t *testing.T) {
	accts, lines := replayFixture()
	repo := &memRebuildRepo{tx: &memRebuildTx{accts: accts, lines: lines}}
	svc := NewService(repo, nil)

	res, err := svc.Rebuild(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	require.True(t, repo.tx.locked)
	require.Equal(t, 4, res.Transactions)
	require.Equal(t, 4, res.Months)
	require.Equal(t, 2, res.Accounts)
	require.Equal(t, int64(6), res.Deleted)
	require.Len(t, repo.tx.inserted, 4)
}

func TestRebuildSingleAccountScope(t *testing.T) {
	accts, lines := replayFixture()
	repo := &memRebuildRepo{tx: &memRebuildTx{accts: accts, lines: lines}}
	svc := NewService(repo, nil)

	account := int64(1)
	res, err := svc.Rebuild(context.Background(), uuid.New(), &account)
	require.NoError(t, err)
	require.Equal(t, 2, res.Transactions)
	require.Equal(t, 1, res.Accounts)
	for _, row := range repo.tx.inserted {
		require.Equal(t, account, row.AccountID)
	}
}

func TestRebuildRequiresTenant(t *testing.T) {
	svc := NewService(&memRebuildRepo{tx: &memRebuildTx{}}, nil)
	_, err := svc.Rebuild(context.Background(), uuid.Nil, nil)
	require.Error(t, err)
}
