package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-gl/meridian-gl/internal/ledger/accounts"
	"github.com/meridian-gl/meridian-gl/internal/money"
)

// BuildTrialBalance places every account with a non-zero closing balance in
// its debit or credit column. A balance on the wrong side of the account's
// normal balance lands in the opposite column as a positive amount.
func BuildTrialBalance(tenant uuid.UUID, asOf time.Time, rows []AccountActivity) TrialBalance {
	tb := TrialBalance{TenantID: tenant, AsOf: asOf}
	for _, a := range rows {
		closing := a.ClosingBalance()
		if closing.IsZero() {
			continue
		}
		row := TrialBalanceRow{AccountID: a.AccountID, Code: a.Code, Name: a.Name, Type: string(a.Type)}
		onNormalSide := closing.IsPositive()
		debitSide := (a.Normal == accounts.NormalDebit) == onNormalSide
		if debitSide {
			row.Debit = closing.Abs()
		} else {
			row.Credit = closing.Abs()
		}
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
		tb.Rows = append(tb.Rows, row)
	}
	tb.IsBalanced = money.Balanced(tb.TotalDebit, tb.TotalCredit)
	return tb
}

// BuildProfitAndLoss aggregates revenue and expense movement inside the
// window, splitting expenses into cost of goods sold, operating and other.
func BuildProfitAndLoss(tenant uuid.UUID, from, to time.Time, rows []AccountActivity, c *Classifier) ProfitAndLoss {
	pl := ProfitAndLoss{TenantID: tenant, From: from, To: to}
	for _, a := range rows {
		mv := a.Movement()
		if mv.IsZero() {
			continue
		}
		line := ReportLine{AccountID: a.AccountID, Code: a.Code, Name: a.Name, Amount: mv}
		switch a.Type {
		case accounts.TypeRevenue:
			pl.Revenue = append(pl.Revenue, line)
			pl.TotalRevenue = pl.TotalRevenue.Add(mv)
		case accounts.TypeExpense:
			switch c.ExpenseSection(a) {
			case ExpenseCOGS:
				pl.CostOfGoodsSold = append(pl.CostOfGoodsSold, line)
				pl.TotalCOGS = pl.TotalCOGS.Add(mv)
			case ExpenseOperating:
				pl.OperatingExpenses = append(pl.OperatingExpenses, line)
				pl.TotalOperating = pl.TotalOperating.Add(mv)
			default:
				pl.OtherExpenses = append(pl.OtherExpenses, line)
				pl.TotalOther = pl.TotalOther.Add(mv)
			}
		}
	}
	pl.GrossProfit = pl.TotalRevenue.Sub(pl.TotalCOGS)
	pl.OperatingProfit = pl.GrossProfit.Sub(pl.TotalOperating)
	pl.NetProfit = pl.OperatingProfit.Sub(pl.TotalOther)
	return pl
}

// CompareProfitAndLoss lines up two windows and computes absolute and
// percentage variance per account line plus the summary rows.
func CompareProfitAndLoss(current, previous ProfitAndLoss) PLComparison {
	cmp := PLComparison{Current: current, Previous: previous}
	sections := []struct {
		name     string
		cur, prv []ReportLine
	}{
		{"revenue", current.Revenue, previous.Revenue},
		{"cost_of_goods_sold", current.CostOfGoodsSold, previous.CostOfGoodsSold},
		{"operating_expense", current.OperatingExpenses, previous.OperatingExpenses},
		{"other_expense", current.OtherExpenses, previous.OtherExpenses},
	}
	for _, section := range sections {
		cmp.Lines = append(cmp.Lines, varianceLines(section.name, section.cur, section.prv)...)
	}
	cmp.Summary = []VarianceLine{
		varianceSummary("Total revenue", current.TotalRevenue, previous.TotalRevenue),
		varianceSummary("Gross profit", current.GrossProfit, previous.GrossProfit),
		varianceSummary("Operating profit", current.OperatingProfit, previous.OperatingProfit),
		varianceSummary("Net profit", current.NetProfit, previous.NetProfit),
	}
	return cmp
}

func varianceLines(section string, current, previous []ReportLine) []VarianceLine {
	prevByCode := make(map[string]ReportLine, len(previous))
	for _, line := range previous {
		prevByCode[line.Code] = line
	}
	var out []VarianceLine
	for _, line := range current {
		prev := prevByCode[line.Code]
		delete(prevByCode, line.Code)
		out = append(out, VarianceLine{
			Section:       section,
			Code:          line.Code,
			Name:          line.Name,
			Current:       line.Amount,
			Previous:      prev.Amount,
			Change:        line.Amount.Sub(prev.Amount),
			ChangePercent: variancePercent(line.Amount, prev.Amount),
		})
	}
	// Accounts active only in the baseline window still get a line.
	for _, line := range previous {
		if _, remains := prevByCode[line.Code]; !remains {
			continue
		}
		out = append(out, VarianceLine{
			Section:       section,
			Code:          line.Code,
			Name:          line.Name,
			Previous:      line.Amount,
			Change:        line.Amount.Neg(),
			ChangePercent: variancePercent(decimal.Zero, line.Amount),
		})
	}
	return out
}

func varianceSummary(name string, current, previous decimal.Decimal) VarianceLine {
	return VarianceLine{
		Section:       "summary",
		Name:          name,
		Current:       current,
		Previous:      previous,
		Change:        current.Sub(previous),
		ChangePercent: variancePercent(current, previous),
	}
}

// variancePercent follows the comparative-report convention: a zero baseline
// yields 100 when the comparison moved and 0 when both are zero.
func variancePercent(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		if current.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(100)
	}
	return current.Sub(previous).Div(previous.Abs()).Mul(decimal.NewFromInt(100)).Round(2)
}

// BuildBalanceSheet classifies asset and liability balances, separates
// retained earnings, and derives current-year earnings from the income
// accounts themselves: lifetime net income plus the balance of the
// current-year-earnings account, which year-end closes drive negative as
// profits transfer into retained earnings. The accounting identity then
// emerges from double entry alone, whether or not prior years were closed.
func BuildBalanceSheet(tenant uuid.UUID, asOf time.Time, rows []AccountActivity, c *Classifier) BalanceSheet {
	bs := BalanceSheet{TenantID: tenant, AsOf: asOf}
	table := c.Table()
	for _, a := range rows {
		closing := a.ClosingBalance()
		switch a.Type {
		case accounts.TypeAsset:
			if closing.IsZero() {
				continue
			}
			line := ReportLine{AccountID: a.AccountID, Code: a.Code, Name: a.Name, Amount: closing}
			if c.AssetSection(a) == SectionCurrent {
				bs.CurrentAssets = append(bs.CurrentAssets, line)
			} else {
				bs.FixedAssets = append(bs.FixedAssets, line)
			}
			bs.TotalAssets = bs.TotalAssets.Add(closing)
		case accounts.TypeLiability:
			if closing.IsZero() {
				continue
			}
			line := ReportLine{AccountID: a.AccountID, Code: a.Code, Name: a.Name, Amount: closing}
			if c.LiabilitySection(a) == SectionCurrent {
				bs.CurrentLiabilities = append(bs.CurrentLiabilities, line)
			} else {
				bs.LongTermLiabilities = append(bs.LongTermLiabilities, line)
			}
			bs.TotalLiabilities = bs.TotalLiabilities.Add(closing)
		case accounts.TypeEquity:
			switch a.Code {
			case table.RetainedEarnings:
				bs.RetainedEarnings = bs.RetainedEarnings.Add(closing)
			case table.CurrentYearEarnings:
				bs.CurrentYearEarnings = bs.CurrentYearEarnings.Add(closing)
			default:
				if closing.IsZero() {
					continue
				}
				bs.OtherEquity = append(bs.OtherEquity, ReportLine{AccountID: a.AccountID, Code: a.Code, Name: a.Name, Amount: closing})
				bs.TotalEquity = bs.TotalEquity.Add(closing)
			}
		case accounts.TypeRevenue:
			bs.CurrentYearEarnings = bs.CurrentYearEarnings.Add(closing)
		case accounts.TypeExpense:
			bs.CurrentYearEarnings = bs.CurrentYearEarnings.Sub(closing)
		}
	}
	bs.TotalEquity = bs.TotalEquity.Add(bs.RetainedEarnings).Add(bs.CurrentYearEarnings)
	bs.IsBalanced = money.WithinTolerance(bs.TotalAssets.Sub(bs.TotalLiabilities.Add(bs.TotalEquity)))
	return bs
}

// BuildCashFlow derives the indirect-method statement: net income, non-cash
// add-backs, working-capital deltas, then investing and financing movement,
// reconciled against the cash accounts.
func BuildCashFlow(tenant uuid.UUID, from, to time.Time, rows []AccountActivity, c *Classifier) CashFlow {
	cf := CashFlow{TenantID: tenant, From: from, To: to}
	var receivable, inventory, payable, otherCurrent decimal.Decimal
	var addbacks decimal.Decimal
	for _, a := range rows {
		mv := a.Movement()
		switch a.Type {
		case accounts.TypeRevenue:
			cf.NetIncome = cf.NetIncome.Add(mv)
		case accounts.TypeExpense:
			cf.NetIncome = cf.NetIncome.Sub(mv)
			if c.IsNonCash(a) && !mv.IsZero() {
				cf.Adjustments = append(cf.Adjustments, ReportLine{AccountID: a.AccountID, Code: a.Code, Name: a.Name, Amount: mv})
				addbacks = addbacks.Add(mv)
			}
		case accounts.TypeAsset:
			switch {
			case c.IsCash(a):
				cf.BeginningCash = cf.BeginningCash.Add(a.BalanceBefore())
				cf.EndingCash = cf.EndingCash.Add(a.ClosingBalance())
			case c.IsReceivable(a):
				receivable = receivable.Add(mv)
			case c.IsInventory(a):
				inventory = inventory.Add(mv)
			case c.IsFixedAsset(a) && a.Normal == accounts.NormalDebit:
				// Contra assets stay out: their growth is the non-cash
				// add-back already counted above.
				if !mv.IsZero() {
					cf.Investing = append(cf.Investing, ReportLine{AccountID: a.AccountID, Code: a.Code, Name: a.Name, Amount: mv.Neg()})
					cf.NetInvesting = cf.NetInvesting.Add(mv.Neg())
				}
			}
		case accounts.TypeLiability:
			switch {
			case c.IsPayable(a):
				payable = payable.Add(mv)
			case c.IsLongTermLiability(a):
				if !mv.IsZero() {
					cf.Financing = append(cf.Financing, ReportLine{AccountID: a.AccountID, Code: a.Code, Name: a.Name, Amount: mv})
					cf.NetFinancing = cf.NetFinancing.Add(mv)
				}
			case c.IsOtherCurrentLiability(a):
				otherCurrent = otherCurrent.Add(mv)
			}
		case accounts.TypeEquity:
			if !mv.IsZero() {
				cf.Financing = append(cf.Financing, ReportLine{AccountID: a.AccountID, Code: a.Code, Name: a.Name, Amount: mv})
				cf.NetFinancing = cf.NetFinancing.Add(mv)
			}
		}
	}
	cf.WorkingCapital = []ReportLine{
		{Name: "Accounts receivable", Amount: receivable.Neg()},
		{Name: "Inventory", Amount: inventory.Neg()},
		{Name: "Accounts payable", Amount: payable},
		{Name: "Other current liabilities", Amount: otherCurrent},
	}
	workingCapital := receivable.Neg().Add(inventory.Neg()).Add(payable).Add(otherCurrent)
	cf.NetOperating = cf.NetIncome.Add(addbacks).Add(workingCapital)
	cf.NetChange = cf.NetOperating.Add(cf.NetInvesting).Add(cf.NetFinancing)
	cf.IsReconciled = money.WithinTolerance(cf.BeginningCash.Add(cf.NetChange).Sub(cf.EndingCash))
	return cf
}
