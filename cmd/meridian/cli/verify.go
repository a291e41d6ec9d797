package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/meridian-gl/meridian-gl/internal/ledger/reconcile"
	"github.com/meridian-gl/meridian-gl/internal/money"
)

// Checker is the slice of the reconciliation service the verify command uses.
type Checker interface {
	Reconcile(ctx context.Context, tenant uuid.UUID, accountID *int64) (reconcile.Report, error)
	AutoFix(ctx context.Context, tenant uuid.UUID, accountID *int64, actor uuid.UUID) (reconcile.FixResult, error)
}

// VerifyOpsCLI checks a tenant's ledger projection against its posted journal.
type VerifyOpsCLI struct {
	checker Checker
}

// NewVerifyOpsCLI constructs the helper around a reconciliation service.
func NewVerifyOpsCLI(checker Checker) (*VerifyOpsCLI, error) {
	if checker == nil {
		return nil, errors.New("verify cli: checker is required")
	}
	return &VerifyOpsCLI{checker: checker}, nil
}

// VerifyOptions defines available flags for the verify command.
type VerifyOptions struct {
	TenantID   string
	AccountID  int64
	Fix        bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// VerifySummary describes the JSON response for verify.
type VerifySummary struct {
	TenantID        string        `json:"tenant_id"`
	AccountsChecked int           `json:"accounts_checked"`
	InSync          bool          `json:"in_sync"`
	Repaired        bool          `json:"repaired"`
	Drifts          []VerifyDrift `json:"drifts"`
}

// VerifyDrift captures one account whose projection disagrees with the journal.
type VerifyDrift struct {
	AccountID  int64  `json:"account_id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Implied    string `json:"implied_balance"`
	Projected  string `json:"projected_balance"`
	Difference string `json:"difference"`
}

// VerifyCommand executes the reconciliation workflow and prints the outcome.
// Exit code 0 means the projection is in sync, 10 means drift remains, 1 is
// a usage or runtime error.
func (c *VerifyOpsCLI) VerifyCommand(ctx context.Context, opts VerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	tenant, err := uuid.Parse(strings.TrimSpace(opts.TenantID))
	if err != nil || tenant == uuid.Nil {
		_, _ = fmt.Fprintln(opts.Stderr, "verify: --tenant is required and must be a UUID")
		return 1
	}
	var accountID *int64
	if opts.AccountID > 0 {
		accountID = &opts.AccountID
	}

	var (
		report   reconcile.Report
		repaired bool
	)
	if opts.Fix {
		fix, fixErr := c.checker.AutoFix(ctx, tenant, accountID, uuid.Nil)
		if fixErr != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "verify: %v\n", fixErr)
			return 1
		}
		report = fix.After
		repaired = fix.Repaired
	} else {
		report, err = c.checker.Reconcile(ctx, tenant, accountID)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "verify: %v\n", err)
			return 1
		}
	}

	if opts.JSONOutput {
		summary := buildVerifySummary(report, repaired)
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "verify: encode json: %v\n", err)
			return 1
		}
	} else {
		renderVerifyHuman(opts.Stdout, report, repaired)
	}
	if !report.InSync {
		return 10
	}
	return 0
}

func buildVerifySummary(report reconcile.Report, repaired bool) VerifySummary {
	drifts := make([]VerifyDrift, 0, len(report.Drifts))
	for _, d := range report.Drifts {
		drifts = append(drifts, VerifyDrift{
			AccountID:  d.AccountID,
			Code:       d.Code,
			Name:       d.Name,
			Implied:    money.Format(d.ImpliedBalance),
			Projected:  money.Format(d.ProjectedBalance),
			Difference: money.Format(d.Difference),
		})
	}
	return VerifySummary{
		TenantID:        report.TenantID.String(),
		AccountsChecked: report.AccountsChecked,
		InSync:          report.InSync,
		Repaired:        repaired,
		Drifts:          drifts,
	}
}

func renderVerifyHuman(out io.Writer, report reconcile.Report, repaired bool) {
	_, _ = fmt.Fprintf(out, "Reconciliation for tenant %s: %d account(s) checked\n", report.TenantID, report.AccountsChecked)
	if repaired {
		_, _ = fmt.Fprintln(out, "Projection was rebuilt during this run.")
	}
	if report.InSync {
		_, _ = fmt.Fprintln(out, "Ledger projection matches the posted journal.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d account(s) out of sync:\n", len(report.Drifts))
	for _, d := range report.Drifts {
		_, _ = fmt.Fprintf(out, " - %s %s: journal implies %s, projection holds %s (off by %s)\n",
			d.Code, d.Name, money.Format(d.ImpliedBalance), money.Format(d.ProjectedBalance), money.Format(d.Difference))
	}
}
