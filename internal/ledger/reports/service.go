package reports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// ErrBadWindow rejects reports over an empty or inverted date window.
var ErrBadWindow = errors.New("reports: invalid date window")

// Service builds the financial statements. Built reports are cached per
// tenant and concurrent builds of the same report collapse into one.
type Service struct {
	repo       Repository
	cache      *Cache
	classifier *Classifier
	group      singleflight.Group
}

// NewService wires the report generator. A nil classifier falls back to the
// default chart conventions.
func NewService(repo Repository, cache *Cache, classifier *Classifier) *Service {
	if classifier == nil {
		classifier = NewClassifier(DefaultRangeTable())
	}
	return &Service{repo: repo, cache: cache, classifier: classifier}
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func validateAsOf(asOf time.Time) error {
	if asOf.IsZero() {
		return ErrBadWindow
	}
	return nil
}

func validateWindow(from, to time.Time) error {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return ErrBadWindow
	}
	return nil
}

// TrialBalance returns the trial balance as of a date.
func (s *Service) TrialBalance(ctx context.Context, tenant uuid.UUID, asOf time.Time) (TrialBalance, error) {
	if err := validateAsOf(asOf); err != nil {
		return TrialBalance{}, err
	}
	key, err := s.cache.BuildKey(ctx, tenant, "tb", dayKey(asOf))
	if err != nil {
		return TrialBalance{}, err
	}
	var out TrialBalance
	err = s.fetch(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		rows, err := s.repo.ActivityWindow(ctx, tenant, time.Time{}, asOf)
		if err != nil {
			return nil, err
		}
		return BuildTrialBalance(tenant, asOf, rows), nil
	})
	return out, err
}

// ProfitAndLoss returns the income statement over a date range.
func (s *Service) ProfitAndLoss(ctx context.Context, tenant uuid.UUID, from, to time.Time) (ProfitAndLoss, error) {
	if err := validateWindow(from, to); err != nil {
		return ProfitAndLoss{}, err
	}
	key, err := s.cache.BuildKey(ctx, tenant, "pl", dayKey(from), dayKey(to))
	if err != nil {
		return ProfitAndLoss{}, err
	}
	var out ProfitAndLoss
	err = s.fetch(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		rows, err := s.repo.ActivityWindow(ctx, tenant, from, to)
		if err != nil {
			return nil, err
		}
		return BuildProfitAndLoss(tenant, from, to, rows, s.classifier), nil
	})
	return out, err
}

// ProfitAndLossComparison runs two windows and lines up the variance.
func (s *Service) ProfitAndLossComparison(ctx context.Context, tenant uuid.UUID, curFrom, curTo, prevFrom, prevTo time.Time) (PLComparison, error) {
	current, err := s.ProfitAndLoss(ctx, tenant, curFrom, curTo)
	if err != nil {
		return PLComparison{}, err
	}
	previous, err := s.ProfitAndLoss(ctx, tenant, prevFrom, prevTo)
	if err != nil {
		return PLComparison{}, err
	}
	return CompareProfitAndLoss(current, previous), nil
}

// BalanceSheet returns the statement of financial position as of a date.
func (s *Service) BalanceSheet(ctx context.Context, tenant uuid.UUID, asOf time.Time) (BalanceSheet, error) {
	if err := validateAsOf(asOf); err != nil {
		return BalanceSheet{}, err
	}
	key, err := s.cache.BuildKey(ctx, tenant, "bs", dayKey(asOf))
	if err != nil {
		return BalanceSheet{}, err
	}
	var out BalanceSheet
	err = s.fetch(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		rows, err := s.repo.ActivityWindow(ctx, tenant, time.Time{}, asOf)
		if err != nil {
			return nil, err
		}
		return BuildBalanceSheet(tenant, asOf, rows, s.classifier), nil
	})
	return out, err
}

// CashFlow returns the indirect-method cash flow statement over a range.
func (s *Service) CashFlow(ctx context.Context, tenant uuid.UUID, from, to time.Time) (CashFlow, error) {
	if err := validateWindow(from, to); err != nil {
		return CashFlow{}, err
	}
	key, err := s.cache.BuildKey(ctx, tenant, "cf", dayKey(from), dayKey(to))
	if err != nil {
		return CashFlow{}, err
	}
	var out CashFlow
	err = s.fetch(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		rows, err := s.repo.ActivityWindow(ctx, tenant, from, to)
		if err != nil {
			return nil, err
		}
		return BuildCashFlow(tenant, from, to, rows, s.classifier), nil
	})
	return out, err
}

// TrialBalanceTotals recomputes the as-of debit/credit totals straight from
// the ledger. Period closes call this under the posting lock and must not
// trust a cached copy.
func (s *Service) TrialBalanceTotals(ctx context.Context, tenant uuid.UUID, asOf time.Time) (decimal.Decimal, decimal.Decimal, error) {
	rows, err := s.repo.ActivityWindow(ctx, tenant, time.Time{}, asOf)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	tb := BuildTrialBalance(tenant, asOf, rows)
	return tb.TotalDebit, tb.TotalCredit, nil
}

// NetIncome recomputes net profit for a window, bypassing the cache. The
// year-end close sizes its closing entry from this.
func (s *Service) NetIncome(ctx context.Context, tenant uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	rows, err := s.repo.ActivityWindow(ctx, tenant, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return BuildProfitAndLoss(tenant, from, to, rows, s.classifier).NetProfit, nil
}

// fetch runs the cache read-through inside a singleflight group so that
// concurrent requests for the same key share one build. The shared value is
// the JSON form; each caller unmarshals its own copy.
func (s *Service) fetch(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	ch := s.group.DoChan(key, func() (interface{}, error) {
		var raw json.RawMessage
		if err := s.cache.FetchJSON(ctx, key, &raw, loader); err != nil {
			return nil, err
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.(json.RawMessage), dest)
	}
}
