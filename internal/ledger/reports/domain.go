package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
)

// AccountActivity is one non-header account's aggregated ledger movement:
// debit/credit sums before the window and inside it, plus the chart columns
// the builders classify on. One grouped query produces the whole slice.
type AccountActivity struct {
	AccountID int64
	Code      string
	Name      string
	Type      accounts.AccountType
	Normal    accounts.NormalBalance
	SubType   string
	Opening   decimal.Decimal

	DebitBefore  decimal.Decimal
	CreditBefore decimal.Decimal
	Debit        decimal.Decimal
	Credit       decimal.Decimal
}

// BalanceBefore is the account balance just before the window opens.
func (a AccountActivity) BalanceBefore() decimal.Decimal {
	return a.Opening.Add(accounts.SignedDelta(a.Normal, a.DebitBefore, a.CreditBefore))
}

// Movement is the signed balance change inside the window.
func (a AccountActivity) Movement() decimal.Decimal {
	return accounts.SignedDelta(a.Normal, a.Debit, a.Credit)
}

// ClosingBalance is the account balance at the window's end.
func (a AccountActivity) ClosingBalance() decimal.Decimal {
	return a.BalanceBefore().Add(a.Movement())
}

// TrialBalanceRow is one account's column placement on the trial balance.
type TrialBalanceRow struct {
	AccountID int64           `json:"accountId"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

// TrialBalance lists every account with a non-zero balance as of a date.
type TrialBalance struct {
	TenantID    uuid.UUID         `json:"tenantId"`
	AsOf        time.Time         `json:"asOf"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"totalDebit"`
	TotalCredit decimal.Decimal   `json:"totalCredit"`
	IsBalanced  bool              `json:"isBalanced"`
}

// ReportLine is one account amount on a statement.
type ReportLine struct {
	AccountID int64           `json:"accountId"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
}

// ProfitAndLoss is the income statement over a date range.
type ProfitAndLoss struct {
	TenantID uuid.UUID `json:"tenantId"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`

	Revenue      []ReportLine    `json:"revenue"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`

	CostOfGoodsSold []ReportLine    `json:"costOfGoodsSold"`
	TotalCOGS       decimal.Decimal `json:"totalCogs"`
	GrossProfit     decimal.Decimal `json:"grossProfit"`

	OperatingExpenses []ReportLine    `json:"operatingExpenses"`
	TotalOperating    decimal.Decimal `json:"totalOperating"`
	OperatingProfit   decimal.Decimal `json:"operatingProfit"`

	OtherExpenses []ReportLine    `json:"otherExpenses"`
	TotalOther    decimal.Decimal `json:"totalOther"`
	NetProfit     decimal.Decimal `json:"netProfit"`
}

// VarianceLine compares one line across two profit and loss windows.
type VarianceLine struct {
	Section       string          `json:"section"`
	Code          string          `json:"code,omitempty"`
	Name          string          `json:"name"`
	Current       decimal.Decimal `json:"current"`
	Previous      decimal.Decimal `json:"previous"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
}

// PLComparison is the comparative profit and loss with per-line variance.
type PLComparison struct {
	Current  ProfitAndLoss  `json:"current"`
	Previous ProfitAndLoss  `json:"previous"`
	Lines    []VarianceLine `json:"lines"`
	Summary  []VarianceLine `json:"summary"`
}

// BalanceSheet is the statement of financial position as of a date.
type BalanceSheet struct {
	TenantID uuid.UUID `json:"tenantId"`
	AsOf     time.Time `json:"asOf"`

	CurrentAssets []ReportLine    `json:"currentAssets"`
	FixedAssets   []ReportLine    `json:"fixedAssets"`
	TotalAssets   decimal.Decimal `json:"totalAssets"`

	CurrentLiabilities  []ReportLine    `json:"currentLiabilities"`
	LongTermLiabilities []ReportLine    `json:"longTermLiabilities"`
	TotalLiabilities    decimal.Decimal `json:"totalLiabilities"`

	RetainedEarnings    decimal.Decimal `json:"retainedEarnings"`
	CurrentYearEarnings decimal.Decimal `json:"currentYearEarnings"`
	OtherEquity         []ReportLine    `json:"otherEquity"`
	TotalEquity         decimal.Decimal `json:"totalEquity"`

	IsBalanced bool `json:"isBalanced"`
}

// CashFlow is the indirect-method cash flow statement over a date range.
type CashFlow struct {
	TenantID uuid.UUID `json:"tenantId"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`

	NetIncome      decimal.Decimal `json:"netIncome"`
	Adjustments    []ReportLine    `json:"adjustments"`
	WorkingCapital []ReportLine    `json:"workingCapital"`
	NetOperating   decimal.Decimal `json:"netOperating"`

	Investing    []ReportLine    `json:"investing"`
	NetInvesting decimal.Decimal `json:"netInvesting"`

	Financing    []ReportLine    `json:"financing"`
	NetFinancing decimal.Decimal `json:"netFinancing"`

	NetChange     decimal.Decimal `json:"netChange"`
	BeginningCash decimal.Decimal `json:"beginningCash"`
	EndingCash    decimal.Decimal `json:"endingCash"`
	IsReconciled  bool            `json:"isReconciled"`
}
