package reports

import (
	"strconv"
	"strings"

	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
)

// ExpenseSection buckets an expense account on the profit and loss.
type ExpenseSection string

const (
	ExpenseCOGS      ExpenseSection = "cost_of_goods_sold"
	ExpenseOperating ExpenseSection = "operating_expense"
	ExpenseOther     ExpenseSection = "other_expense"
)

// BalanceSection buckets a balance-sheet account.
type BalanceSection string

const (
	SectionCurrent    BalanceSection = "current"
	SectionNonCurrent BalanceSection = "non_current"
)

// CodeRange is an inclusive numeric account-code range.
type CodeRange struct {
	Min int
	Max int
}

// Contains reports whether n falls inside the range.
func (r CodeRange) Contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

// RangeTable holds the account-code conventions the classifier falls back to
// when an account carries no subType. The table is swappable per chart
// template; the defaults follow the seeded chart.
type RangeTable struct {
	COGS               CodeRange
	Operating          CodeRange
	CurrentAssets      CodeRange
	CurrentLiabilities CodeRange
	NonCash            CodeRange
	Cash               CodeRange

	FixedAssetFloor        int
	LongTermLiabilityFloor int

	ReceivablePrefix string
	InventoryPrefix  string
	PayablePrefix    string

	RetainedEarnings    string
	CurrentYearEarnings string
}

// DefaultRangeTable returns the conventions of the default chart of accounts.
func DefaultRangeTable() RangeTable {
	return RangeTable{
		COGS:               CodeRange{Min: 5000, Max: 5199},
		Operating:          CodeRange{Min: 5200, Max: 5899},
		CurrentAssets:      CodeRange{Min: 1000, Max: 1499},
		CurrentLiabilities: CodeRange{Min: 2000, Max: 2599},
		NonCash:            CodeRange{Min: 5800, Max: 5899},
		Cash:               CodeRange{Min: 1000, Max: 1099},

		FixedAssetFloor:        1500,
		LongTermLiabilityFloor: 2600,

		ReceivablePrefix: "11",
		InventoryPrefix:  "12",
		PayablePrefix:    "21",

		RetainedEarnings:    "3200",
		CurrentYearEarnings: "3300",
	}
}

// Classifier resolves report sections from an account's subType first and
// falls back to the code-range table. Non-numeric codes never match a range.
type Classifier struct {
	table RangeTable
}

// NewClassifier builds a classifier over the given range table.
func NewClassifier(table RangeTable) *Classifier {
	return &Classifier{table: table}
}

// Table returns the range table in use.
func (c *Classifier) Table() RangeTable {
	return c.table
}

func codeNumber(code string) (int, bool) {
	n, err := strconv.Atoi(code)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ExpenseSection resolves the P&L bucket for an expense account.
func (c *Classifier) ExpenseSection(a AccountActivity) ExpenseSection {
	switch a.SubType {
	case accounts.SubTypeCostOfGoodsSold:
		return ExpenseCOGS
	case accounts.SubTypeOperatingExpense:
		return ExpenseOperating
	case accounts.SubTypeOtherExpense:
		return ExpenseOther
	}
	if n, ok := codeNumber(a.Code); ok {
		switch {
		case c.table.COGS.Contains(n):
			return ExpenseCOGS
		case c.table.Operating.Contains(n):
			return ExpenseOperating
		}
	}
	return ExpenseOther
}

// AssetSection splits assets into current and fixed/non-current.
func (c *Classifier) AssetSection(a AccountActivity) BalanceSection {
	switch a.SubType {
	case accounts.SubTypeCurrentAsset:
		return SectionCurrent
	case accounts.SubTypeFixedAsset:
		return SectionNonCurrent
	}
	if n, ok := codeNumber(a.Code); ok && c.table.CurrentAssets.Contains(n) {
		return SectionCurrent
	}
	return SectionNonCurrent
}

// LiabilitySection splits liabilities into current and non-current.
func (c *Classifier) LiabilitySection(a AccountActivity) BalanceSection {
	switch a.SubType {
	case accounts.SubTypeCurrentLiability:
		return SectionCurrent
	case accounts.SubTypeNonCurrentLiability:
		return SectionNonCurrent
	}
	if n, ok := codeNumber(a.Code); ok && c.table.CurrentLiabilities.Contains(n) {
		return SectionCurrent
	}
	return SectionNonCurrent
}

// IsNonCash reports whether an expense account represents a non-cash charge
// added back on the indirect cash flow.
func (c *Classifier) IsNonCash(a AccountActivity) bool {
	name := strings.ToLower(a.Name)
	if strings.Contains(name, "depreciation") || strings.Contains(name, "amortization") {
		return true
	}
	n, ok := codeNumber(a.Code)
	return ok && c.table.NonCash.Contains(n)
}

// IsCash reports whether the account holds cash for the cash-flow
// reconciliation.
func (c *Classifier) IsCash(a AccountActivity) bool {
	n, ok := codeNumber(a.Code)
	return ok && c.table.Cash.Contains(n)
}

// IsReceivable matches the accounts-receivable working-capital bucket.
func (c *Classifier) IsReceivable(a AccountActivity) bool {
	return strings.HasPrefix(a.Code, c.table.ReceivablePrefix)
}

// IsInventory matches the inventory working-capital bucket.
func (c *Classifier) IsInventory(a AccountActivity) bool {
	return strings.HasPrefix(a.Code, c.table.InventoryPrefix)
}

// IsPayable matches the accounts-payable working-capital bucket.
func (c *Classifier) IsPayable(a AccountActivity) bool {
	return strings.HasPrefix(a.Code, c.table.PayablePrefix)
}

// IsOtherCurrentLiability matches current liabilities outside the payable
// bucket.
func (c *Classifier) IsOtherCurrentLiability(a AccountActivity) bool {
	if a.Type != accounts.TypeLiability || c.IsPayable(a) {
		return false
	}
	n, ok := codeNumber(a.Code)
	return ok && n < c.table.LongTermLiabilityFloor
}

// IsFixedAsset matches the investing-activity bucket.
func (c *Classifier) IsFixedAsset(a AccountActivity) bool {
	n, ok := codeNumber(a.Code)
	return ok && n >= c.table.FixedAssetFloor
}

// IsLongTermLiability matches the financing-activity bucket.
func (c *Classifier) IsLongTermLiability(a AccountActivity) bool {
	if a.Type != accounts.TypeLiability {
		return false
	}
	n, ok := codeNumber(a.Code)
	return ok && n >= c.table.LongTermLiabilityFloor
}
