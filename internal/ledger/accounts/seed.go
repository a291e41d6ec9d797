package accounts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedAccount describes one row of a chart template. Parent references an
// earlier code in the same template, so a single ordered pass can compute
// level and path while inserting.
type SeedAccount struct {
	Code     string
	Name     string
	Type     AccountType
	Normal   NormalBalance
	SubType  string
	Parent   string
	IsHeader bool
	IsSystem bool
}

// DefaultChart is the standard small-business chart template. Codes follow
// the numbering conventions the report classifier defaults to: cash
// 1000-1099, receivables 11xx, inventory 12xx, fixed assets from 1500,
// payables 21xx, long-term debt from 2600, retained earnings 3200, current
// year earnings 3300, COGS 5000-5199, operating expenses 5200-5899.
var DefaultChart = []SeedAccount{
	{Code: "1000", Name: "Current Assets", Type: TypeAsset, SubType: SubTypeCurrentAsset, IsHeader: true},
	{Code: "1010", Name: "Cash on Hand", Type: TypeAsset, SubType: SubTypeCurrentAsset, Parent: "1000"},
	{Code: "1020", Name: "Bank Account", Type: TypeAsset, SubType: SubTypeCurrentAsset, Parent: "1000"},
	{Code: "1100", Name: "Accounts Receivable", Type: TypeAsset, SubType: SubTypeCurrentAsset, Parent: "1000", IsSystem: true},
	{Code: "1200", Name: "Inventory", Type: TypeAsset, SubType: SubTypeCurrentAsset, Parent: "1000", IsSystem: true},
	{Code: "1300", Name: "Prepaid Expenses", Type: TypeAsset, SubType: SubTypeCurrentAsset, Parent: "1000"},
	{Code: "1500", Name: "Fixed Assets", Type: TypeAsset, SubType: SubTypeFixedAsset, IsHeader: true},
	{Code: "1510", Name: "Equipment", Type: TypeAsset, SubType: SubTypeFixedAsset, Parent: "1500"},
	{Code: "1520", Name: "Accumulated Depreciation", Type: TypeAsset, Normal: NormalCredit, SubType: SubTypeFixedAsset, Parent: "1500"},
	{Code: "2000", Name: "Current Liabilities", Type: TypeLiability, SubType: SubTypeCurrentLiability, IsHeader: true},
	{Code: "2100", Name: "Accounts Payable", Type: TypeLiability, SubType: SubTypeCurrentLiability, Parent: "2000", IsSystem: true},
	{Code: "2200", Name: "Accrued Liabilities", Type: TypeLiability, SubType: SubTypeCurrentLiability, Parent: "2000"},
	{Code: "2300", Name: "Taxes Payable", Type: TypeLiability, SubType: SubTypeCurrentLiability, Parent: "2000"},
	{Code: "2600", Name: "Long-Term Liabilities", Type: TypeLiability, SubType: SubTypeNonCurrentLiability, IsHeader: true},
	{Code: "2610", Name: "Bank Loan", Type: TypeLiability, SubType: SubTypeNonCurrentLiability, Parent: "2600"},
	{Code: "3000", Name: "Equity", Type: TypeEquity, IsHeader: true},
	{Code: "3100", Name: "Owner's Capital", Type: TypeEquity, Parent: "3000"},
	{Code: "3200", Name: "Retained Earnings", Type: TypeEquity, Parent: "3000", IsSystem: true},
	{Code: "3300", Name: "Current Year Earnings", Type: TypeEquity, Parent: "3000", IsSystem: true},
	{Code: "4000", Name: "Revenue", Type: TypeRevenue, IsHeader: true},
	{Code: "4100", Name: "Sales Revenue", Type: TypeRevenue, Parent: "4000"},
	{Code: "4200", Name: "Service Revenue", Type: TypeRevenue, Parent: "4000"},
	{Code: "4900", Name: "Other Income", Type: TypeRevenue, Parent: "4000"},
	{Code: "5000", Name: "Cost of Goods Sold", Type: TypeExpense, SubType: SubTypeCostOfGoodsSold, IsHeader: true},
	{Code: "5100", Name: "Cost of Goods Sold", Type: TypeExpense, SubType: SubTypeCostOfGoodsSold, Parent: "5000"},
	{Code: "5200", Name: "Operating Expenses", Type: TypeExpense, SubType: SubTypeOperatingExpense, IsHeader: true},
	{Code: "5210", Name: "Salaries and Wages", Type: TypeExpense, SubType: SubTypeOperatingExpense, Parent: "5200"},
	{Code: "5220", Name: "Rent Expense", Type: TypeExpense, SubType: SubTypeOperatingExpense, Parent: "5200"},
	{Code: "5230", Name: "Utilities Expense", Type: TypeExpense, SubType: SubTypeOperatingExpense, Parent: "5200"},
	{Code: "5800", Name: "Depreciation Expense", Type: TypeExpense, SubType: SubTypeOperatingExpense, Parent: "5200"},
	{Code: "5900", Name: "Other Expenses", Type: TypeExpense, SubType: SubTypeOtherExpense, IsHeader: true},
	{Code: "5910", Name: "Interest Expense", Type: TypeExpense, SubType: SubTypeOtherExpense, Parent: "5900"},
}

// SeedDefaultChart installs the default chart for a tenant in one
// transaction, parents before children. Tenants that already have any
// account are left untouched.
func (s *Service) SeedDefaultChart(ctx context.Context, tenant uuid.UUID) ([]Account, error) {
	return s.SeedChart(ctx, tenant, DefaultChart)
}

// SeedChart installs an arbitrary chart template.
func (s *Service) SeedChart(ctx context.Context, tenant uuid.UUID, template []SeedAccount) ([]Account, error) {
	if tenant == uuid.Nil {
		return nil, fmt.Errorf("accounts: tenant required")
	}
	var created []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.AnyAccountExists(ctx, tenant)
		if err != nil {
			return err
		}
		if exists {
			return ErrSeeded
		}
		byCode := make(map[string]Account, len(template))
		for _, seed := range template {
			normal := seed.Normal
			if normal == "" {
				normal = DefaultNormalBalance(seed.Type)
			}
			account := Account{
				TenantID:       tenant,
				Code:           seed.Code,
				Name:           seed.Name,
				Type:           seed.Type,
				NormalBalance:  normal,
				SubType:        seed.SubType,
				IsHeader:       seed.IsHeader,
				IsSystem:       seed.IsSystem,
				Level:          1,
				Path:           seed.Code,
				OpeningBalance: decimal.Zero,
			}
			if seed.Parent != "" {
				parent, ok := byCode[seed.Parent]
				if !ok {
					return fmt.Errorf("accounts: seed %s references unknown parent %s", seed.Code, seed.Parent)
				}
				account.ParentID = &parent.ID
				account.Level = parent.Level + 1
				account.Path = ChildPath(parent.Path, seed.Code)
			}
			inserted, err := tx.Insert(ctx, account)
			if err != nil {
				return fmt.Errorf("accounts: seed %s: %w", seed.Code, err)
			}
			byCode[seed.Code] = inserted
			created = append(created, inserted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, tenant, uuid.Nil, "account.seed", tenant.String(), map[string]any{"accounts": len(created)})
	return created, nil
}
