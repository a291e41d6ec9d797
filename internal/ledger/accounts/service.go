package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-gl/meridian-gl/internal/shared"
)

// AuditPort records chart mutations for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates chart of accounts maintenance.
type Service struct {
	repo     Repository
	audit    AuditPort
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs the chart of accounts service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, validate: validator.New(), now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create registers a new account, deriving level and path from the parent.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if in.TenantID == uuid.Nil {
		return Account{}, errors.New("accounts: tenant required")
	}
	if err := s.validate.Struct(in); err != nil {
		return Account{}, fmt.Errorf("accounts: invalid input: %w", err)
	}
	normal := in.NormalBalance
	if normal == "" {
		normal = DefaultNormalBalance(in.Type)
	}
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, found, err := tx.FindByCode(ctx, in.TenantID, in.Code); err != nil {
			return err
		} else if found {
			return ErrCodeTaken
		}
		account := Account{
			TenantID:       in.TenantID,
			Code:           in.Code,
			Name:           in.Name,
			Type:           in.Type,
			NormalBalance:  normal,
			SubType:        in.SubType,
			IsHeader:       in.IsHeader,
			IsSystem:       in.IsSystem,
			Level:          1,
			Path:           in.Code,
			OpeningBalance: in.OpeningBalance,
		}
		if in.ParentCode != "" {
			parent, found, err := tx.FindByCode(ctx, in.TenantID, in.ParentCode)
			if err != nil {
				return err
			}
			if !found {
				return ErrParentNotFound
			}
			account.ParentID = &parent.ID
			account.Level = parent.Level + 1
			account.Path = ChildPath(parent.Path, in.Code)
		}
		var err error
		created, err = tx.Insert(ctx, account)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.TenantID, uuid.Nil, "account.create", fmt.Sprintf("%d", created.ID), map[string]any{"code": created.Code})
	return created, nil
}

// Update mutates an account. Code or parent changes cascade a path and level
// rewrite across every descendant so the materialised chain stays consistent.
func (s *Service) Update(ctx context.Context, tenant uuid.UUID, id int64, in UpdateInput) (Account, error) {
	if err := s.validate.Struct(in); err != nil {
		return Account{}, fmt.Errorf("accounts: invalid input: %w", err)
	}
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetForUpdate(ctx, tenant, id)
		if err != nil {
			return err
		}
		oldPath := account.Path
		oldLevel := account.Level

		if in.Name != nil {
			account.Name = *in.Name
		}
		if in.SubType != nil {
			account.SubType = *in.SubType
		}
		if in.Code != nil && *in.Code != account.Code {
			if _, found, err := tx.FindByCode(ctx, tenant, *in.Code); err != nil {
				return err
			} else if found {
				return ErrCodeTaken
			}
			account.Code = *in.Code
		}

		parentPath := parentPrefix(oldPath)
		parentLevel := oldLevel - 1
		if in.ParentCode != nil {
			if *in.ParentCode == "" {
				account.ParentID = nil
				parentPath = ""
				parentLevel = 0
			} else {
				parent, found, err := tx.FindByCode(ctx, tenant, *in.ParentCode)
				if err != nil {
					return err
				}
				if !found {
					return ErrParentNotFound
				}
				if parent.ID == account.ID || strings.HasPrefix(parent.Path+"/", oldPath+"/") {
					return ErrParentCycle
				}
				account.ParentID = &parent.ID
				parentPath = parent.Path
				parentLevel = parent.Level
			}
		}

		account.Level = parentLevel + 1
		account.Path = ChildPath(parentPath, account.Code)
		if err := tx.UpdateNode(ctx, account); err != nil {
			return err
		}
		if account.Path != oldPath || account.Level != oldLevel {
			if _, err := tx.RepathDescendants(ctx, tenant, oldPath, account.Path, account.Level-oldLevel); err != nil {
				return err
			}
		}
		updated = account
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, tenant, uuid.Nil, "account.update", fmt.Sprintf("%d", updated.ID), map[string]any{"code": updated.Code, "path": updated.Path})
	return updated, nil
}

// SoftDelete hides an account. System accounts, accounts with live children,
// and accounts referenced by journal lines are protected.
func (s *Service) SoftDelete(ctx context.Context, tenant uuid.UUID, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetForUpdate(ctx, tenant, id)
		if err != nil {
			return err
		}
		if account.IsSystem {
			return ErrSystemAccount
		}
		children, err := tx.LiveChildCount(ctx, tenant, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return ErrHasChildren
		}
		refs, err := tx.PostingRefCount(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrHasPostings
		}
		return tx.SoftDelete(ctx, tenant, id, s.now())
	})
	if err != nil {
		return err
	}
	s.record(ctx, tenant, uuid.Nil, "account.delete", fmt.Sprintf("%d", id), nil)
	return nil
}

// Get fetches an account by id.
func (s *Service) Get(ctx context.Context, tenant uuid.UUID, id int64) (Account, error) {
	return s.repo.Get(ctx, tenant, id)
}

// GetByCode fetches an account by code.
func (s *Service) GetByCode(ctx context.Context, tenant uuid.UUID, code string) (Account, error) {
	return s.repo.GetByCode(ctx, tenant, code)
}

// List returns live accounts ordered by path.
func (s *Service) List(ctx context.Context, tenant uuid.UUID) ([]Account, error) {
	return s.repo.List(ctx, tenant)
}

// BalanceAsOf returns the account balance on its normal side as of a date.
func (s *Service) BalanceAsOf(ctx context.Context, tenant uuid.UUID, id int64, asOf time.Time) (decimal.Decimal, error) {
	return s.repo.BalanceAsOf(ctx, tenant, id, asOf)
}

func (s *Service) record(ctx context.Context, tenant, actor uuid.UUID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenant,
		ActorID:  actor,
		Action:   action,
		Entity:   "account",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}

// parentPrefix strips the trailing code segment from a materialised path.
func parentPrefix(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[:idx]
	}
	return ""
}
