package reports

import (
	"testing"

	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
)

func activity(code, name string, accType accounts.AccountType, subType string) AccountActivity {
	return AccountActivity{
		Code:    code,
		Name:    name,
		Type:    accType,
		Normal:  accounts.DefaultNormalBalance(accType),
		SubType: subType,
	}
}

func TestExpenseSection(t *testing.T) {
	c := NewClassifier(DefaultRangeTable())
	cases := []struct {
		name string
		in   AccountActivity
		want ExpenseSection
	}{
		{"cogs by range", activity("5100", "Materials", accounts.TypeExpense, ""), ExpenseCOGS},
		{"operating by range", activity("5300", "Rent", accounts.TypeExpense, ""), ExpenseOperating},
		{"above ranges", activity("5950", "Interest", accounts.TypeExpense, ""), ExpenseOther},
		{"subtype beats range", activity("5950", "Freight in", accounts.TypeExpense, accounts.SubTypeCostOfGoodsSold), ExpenseCOGS},
		{"subtype other wins", activity("5100", "Write-off", accounts.TypeExpense, accounts.SubTypeOtherExpense), ExpenseOther},
		{"non-numeric code", activity("EXP-MISC", "Misc", accounts.TypeExpense, ""), ExpenseOther},
	}
	for _, tc := range cases {
		if got := c.ExpenseSection(tc.in); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestBalanceSections(t *testing.T) {
	c := NewClassifier(DefaultRangeTable())

	if got := c.AssetSection(activity("1020", "Bank", accounts.TypeAsset, "")); got != SectionCurrent {
		t.Errorf("bank: got %s", got)
	}
	if got := c.AssetSection(activity("1510", "Equipment", accounts.TypeAsset, "")); got != SectionNonCurrent {
		t.Errorf("equipment: got %s", got)
	}
	if got := c.AssetSection(activity("1510", "Deposit", accounts.TypeAsset, accounts.SubTypeCurrentAsset)); got != SectionCurrent {
		t.Errorf("subtype should override the code range, got %s", got)
	}

	if got := c.LiabilitySection(activity("2100", "Trade payables", accounts.TypeLiability, "")); got != SectionCurrent {
		t.Errorf("payables: got %s", got)
	}
	if got := c.LiabilitySection(activity("2600", "Bank loan", accounts.TypeLiability, "")); got != SectionNonCurrent {
		t.Errorf("loan: got %s", got)
	}
	if got := c.LiabilitySection(activity("2100", "Lease", accounts.TypeLiability, accounts.SubTypeNonCurrentLiability)); got != SectionNonCurrent {
		t.Errorf("subtype should override the code range, got %s", got)
	}
}

func TestCashFlowBuckets(t *testing.T) {
	c := NewClassifier(DefaultRangeTable())

	if !c.IsCash(activity("1020", "Bank", accounts.TypeAsset, "")) {
		t.Error("1020 should be cash")
	}
	if c.IsCash(activity("1100", "Receivables", accounts.TypeAsset, "")) {
		t.Error("1100 is not cash")
	}
	if !c.IsReceivable(activity("1150", "Trade receivables", accounts.TypeAsset, "")) {
		t.Error("11xx should be receivable")
	}
	if !c.IsInventory(activity("1200", "Stock", accounts.TypeAsset, "")) {
		t.Error("12xx should be inventory")
	}
	if !c.IsPayable(activity("2100", "Trade payables", accounts.TypeLiability, "")) {
		t.Error("21xx should be payable")
	}
	if !c.IsFixedAsset(activity("1510", "Equipment", accounts.TypeAsset, "")) {
		t.Error("1510 should be a fixed asset")
	}
	if c.IsFixedAsset(activity("1499", "Prepaid", accounts.TypeAsset, "")) {
		t.Error("1499 is below the fixed-asset floor")
	}

	// Other current liabilities: liability, not a payable, below the
	// long-term floor.
	if !c.IsOtherCurrentLiability(activity("2300", "Accrued wages", accounts.TypeLiability, "")) {
		t.Error("2300 should be an other current liability")
	}
	if c.IsOtherCurrentLiability(activity("2100", "Trade payables", accounts.TypeLiability, "")) {
		t.Error("payables are their own bucket")
	}
	if c.IsOtherCurrentLiability(activity("2700", "Bank loan", accounts.TypeLiability, "")) {
		t.Error("2700 is long term")
	}
	if !c.IsLongTermLiability(activity("2700", "Bank loan", accounts.TypeLiability, "")) {
		t.Error("2700 should be long term")
	}
	if c.IsLongTermLiability(activity("2700", "Not a liability", accounts.TypeAsset, "")) {
		t.Error("type gates the long-term bucket")
	}
}

func TestIsNonCash(t *testing.T) {
	c := NewClassifier(DefaultRangeTable())

	if !c.IsNonCash(activity("5400", "Depreciation expense", accounts.TypeExpense, "")) {
		t.Error("name match should win regardless of code")
	}
	if !c.IsNonCash(activity("5450", "Amortization of goodwill", accounts.TypeExpense, "")) {
		t.Error("amortization should match by name")
	}
	if !c.IsNonCash(activity("5820", "Asset charges", accounts.TypeExpense, "")) {
		t.Error("58xx should match by range")
	}
	if c.IsNonCash(activity("5300", "Rent", accounts.TypeExpense, "")) {
		t.Error("rent is a cash expense")
	}
}
