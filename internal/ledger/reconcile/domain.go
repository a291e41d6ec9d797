package reconcile

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-gl/meridian-gl/internal/ledger/projection"
)

// AccountDrift describes one account whose projected ledger disagrees with
// the posted journal. The journal side is the truth; Difference is how far
// the projection sits from it.
type AccountDrift struct {
	AccountID int64  `json:"accountId"`
	Code      string `json:"code"`
	Name      string `json:"name"`

	JournalLines  int64           `json:"journalLines"`
	LedgerRows    int64           `json:"ledgerRows"`
	JournalDebit  decimal.Decimal `json:"journalDebit"`
	JournalCredit decimal.Decimal `json:"journalCredit"`
	LedgerDebit   decimal.Decimal `json:"ledgerDebit"`
	LedgerCredit  decimal.Decimal `json:"ledgerCredit"`

	ImpliedBalance   decimal.Decimal `json:"impliedBalance"`
	ProjectedBalance decimal.Decimal `json:"projectedBalance"`
	Difference       decimal.Decimal `json:"difference"`
}

// Report is one reconciliation run over a tenant (or a single account).
type Report struct {
	TenantID        uuid.UUID      `json:"tenantId"`
	RanAt           time.Time      `json:"ranAt"`
	AccountsChecked int            `json:"accountsChecked"`
	Drifts          []AccountDrift `json:"drifts"`
	InSync          bool           `json:"inSync"`
}

// FixResult is the outcome of a detect-rebuild-verify cycle.
type FixResult struct {
	Before   Report                   `json:"before"`
	Rebuild  projection.RebuildResult `json:"rebuild"`
	After    Report                   `json:"after"`
	Repaired bool                     `json:"repaired"`
}
