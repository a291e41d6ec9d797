package accounts

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	TypeAsset     AccountType = "asset"
	TypeLiability AccountType = "liability"
	TypeEquity    AccountType = "equity"
	TypeRevenue   AccountType = "revenue"
	TypeExpense   AccountType = "expense"
)

// NormalBalance marks the side on which an account conventionally increases.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "debit"
	NormalCredit NormalBalance = "credit"
)

// Finer categories used by report classification. Empty means unset; reports
// fall back to code-range heuristics.
const (
	SubTypeCurrentAsset        = "current_asset"
	SubTypeFixedAsset          = "fixed_asset"
	SubTypeCurrentLiability    = "current_liability"
	SubTypeNonCurrentLiability = "non_current_liability"
	SubTypeCostOfGoodsSold     = "cost_of_goods_sold"
	SubTypeOperatingExpense    = "operating_expense"
	SubTypeOtherExpense        = "other_expense"
)

// Account models a node in the chart of accounts tree. Level and Path are
// materialised from the parent chain and kept consistent on every mutation.
type Account struct {
	ID             int64
	TenantID       uuid.UUID
	Code           string
	Name           string
	Type           AccountType
	NormalBalance  NormalBalance
	SubType        string
	IsHeader       bool
	IsSystem       bool
	ParentID       *int64
	Level          int
	Path           string
	OpeningBalance decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// CreateInput carries the fields accepted when registering an account.
type CreateInput struct {
	TenantID       uuid.UUID
	Code           string      `validate:"required,max=20"`
	Name           string      `validate:"required,max=120"`
	Type           AccountType `validate:"required,oneof=asset liability equity revenue expense"`
	NormalBalance  NormalBalance
	SubType        string `validate:"omitempty,oneof=current_asset fixed_asset current_liability non_current_liability cost_of_goods_sold operating_expense other_expense"`
	IsHeader       bool
	IsSystem       bool
	ParentCode     string
	OpeningBalance decimal.Decimal
}

// UpdateInput carries mutable fields. Nil pointers leave a field untouched.
type UpdateInput struct {
	Code       *string `validate:"omitempty,max=20"`
	Name       *string `validate:"omitempty,max=120"`
	SubType    *string `validate:"omitempty,oneof=current_asset fixed_asset current_liability non_current_liability cost_of_goods_sold operating_expense other_expense"`
	ParentCode *string
}

var (
	// ErrNotFound indicates the account does not exist for the tenant.
	ErrNotFound = errors.New("accounts: account not found")
	// ErrCodeTaken indicates the code is already used by a live account.
	ErrCodeTaken = errors.New("accounts: code already in use")
	// ErrParentNotFound indicates the referenced parent is missing.
	ErrParentNotFound = errors.New("accounts: parent account not found")
	// ErrParentCycle indicates re-parenting would create a cycle.
	ErrParentCycle = errors.New("accounts: account cannot be its own ancestor")
	// ErrHasChildren blocks deletion of accounts with live children.
	ErrHasChildren = errors.New("accounts: account has child accounts")
	// ErrHasPostings blocks deletion of accounts referenced by journal lines.
	ErrHasPostings = errors.New("accounts: account has journal postings")
	// ErrSystemAccount blocks deletion of protected accounts.
	ErrSystemAccount = errors.New("accounts: system account cannot be deleted")
	// ErrSeeded indicates the tenant already has a chart of accounts.
	ErrSeeded = errors.New("accounts: chart already seeded")
)

// DefaultNormalBalance returns the conventional balance side for a type.
func DefaultNormalBalance(t AccountType) NormalBalance {
	switch t {
	case TypeAsset, TypeExpense:
		return NormalDebit
	default:
		return NormalCredit
	}
}

// SignedDelta converts a debit/credit pair into the balance movement for an
// account with the given normal side.
func SignedDelta(normal NormalBalance, debit, credit decimal.Decimal) decimal.Decimal {
	if normal == NormalDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// ChildPath joins a parent path with an account code.
func ChildPath(parentPath, code string) string {
	if parentPath == "" {
		return code
	}
	return parentPath + "/" + code
}
