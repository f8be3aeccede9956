package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/bookkeeping/internal/account/domain"
	auditdomain "github.com/smallbiznis/bookkeeping/internal/audit/domain"
	"github.com/smallbiznis/bookkeeping/internal/clock"
	"github.com/smallbiznis/bookkeeping/pkg/db"
	"github.com/smallbiznis/bookkeeping/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxTreeDepth bounds the parent walk used for cycle detection.
const maxTreeDepth = 64

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("account.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateAccountRequest) (domain.Account, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return domain.Account{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Account{}, domain.ErrInvalidName
	}
	if !req.Type.Valid() {
		return domain.Account{}, domain.ErrInvalidAccountType
	}

	if !domain.FitsScale(req.OpeningBalance, domain.AmountScale) {
		return domain.Account{}, domain.ErrInvalidAmount
	}

	code := normalizeCode(req.Code)
	if code == "" {
		code = slug.Make(name)
	}
	if code == "" {
		return domain.Account{}, domain.ErrInvalidCode
	}

	now := s.clock.Now()
	account := domain.Account{
		ID:             s.genID.Generate(),
		TenantID:       tenantID,
		Code:           code,
		Name:           name,
		Type:           req.Type,
		Subtype:        domain.AccountSubtype(strings.TrimSpace(string(req.Subtype))),
		CurrentBalance: req.OpeningBalance,
		OpeningBalance: req.OpeningBalance,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if parentRef := strings.TrimSpace(req.ParentID); parentRef != "" {
			parentID, err := parseID(parentRef)
			if err != nil {
				return domain.ErrInvalidParent
			}
			parent, err := s.repo.FindByID(ctx, tx, tenantID, parentID)
			if err != nil {
				return err
			}
			if parent == nil {
				return domain.ErrInvalidParent
			}
			account.ParentID = &parent.ID
		}

		if err := s.repo.Insert(ctx, tx, &account); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateCode
			}
			return err
		}

		return s.audit(ctx, tx, "account.created", account.ID, map[string]any{
			"code":            account.Code,
			"type":            string(account.Type),
			"opening_balance": account.OpeningBalance.String(),
		})
	})
	if err != nil {
		return domain.Account{}, err
	}

	return account, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Account, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	accountID, err := parseID(id)
	if err != nil {
		return domain.Account{}, err
	}
	return s.load(ctx, s.db, tenantID, accountID)
}

func (s *Service) GetByCode(ctx context.Context, code string) (domain.Account, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	code = normalizeCode(code)
	if code == "" {
		return domain.Account{}, domain.ErrInvalidCode
	}

	item, err := s.repo.FindByCode(ctx, s.db, tenantID, code)
	if err != nil {
		return domain.Account{}, err
	}
	if item == nil {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListAccountRequest) ([]domain.Account, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}

	filter := domain.ListAccountFilter{
		IsActive: req.IsActive,
		RootOnly: req.RootOnly,
	}
	if value := strings.TrimSpace(req.Type); value != "" {
		accountType := domain.AccountType(strings.ToLower(value))
		if !accountType.Valid() {
			return nil, domain.ErrInvalidAccountType
		}
		filter.Type = &accountType
	}
	if value := strings.TrimSpace(req.ParentID); value != "" {
		parentID, err := parseID(value)
		if err != nil {
			return nil, err
		}
		filter.ParentID = &parentID
	}

	items, err := s.repo.List(ctx, s.db, tenantID, filter)
	if err != nil {
		return nil, err
	}
	return flatten(items), nil
}

func (s *Service) Children(ctx context.Context, id string) ([]domain.Account, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}
	parentID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, s.db, tenantID, parentID); err != nil {
		return nil, err
	}

	items, err := s.repo.List(ctx, s.db, tenantID, domain.ListAccountFilter{ParentID: &parentID})
	if err != nil {
		return nil, err
	}
	return flatten(items), nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateAccountRequest) (domain.Account, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	accountID, err := parseID(req.ID)
	if err != nil {
		return domain.Account{}, err
	}

	var updated domain.Account
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.load(ctx, tx, tenantID, accountID)
		if err != nil {
			return err
		}

		if req.Type != nil && *req.Type != account.Type {
			return domain.ErrAccountTypeImmutable
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			account.Name = name
		}
		if req.Code != nil {
			code := normalizeCode(*req.Code)
			if code == "" {
				return domain.ErrInvalidCode
			}
			account.Code = code
		}
		if req.Subtype != nil {
			account.Subtype = domain.AccountSubtype(strings.TrimSpace(string(*req.Subtype)))
		}
		if req.ParentID != nil {
			parentID, err := s.resolveParent(ctx, tx, tenantID, account.ID, *req.ParentID)
			if err != nil {
				return err
			}
			account.ParentID = parentID
		}

		account.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, &account); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateCode
			}
			return err
		}
		updated = account

		return s.audit(ctx, tx, "account.updated", account.ID, map[string]any{
			"code": account.Code,
			"name": account.Name,
		})
	})
	if err != nil {
		return domain.Account{}, err
	}
	return updated, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) (domain.Account, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) Activate(ctx context.Context, id string) (domain.Account, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id string, active bool) (domain.Account, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	accountID, err := parseID(id)
	if err != nil {
		return domain.Account{}, err
	}

	var updated domain.Account
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.load(ctx, tx, tenantID, accountID)
		if err != nil {
			return err
		}
		if account.IsActive == active {
			updated = account
			return nil
		}

		account.IsActive = active
		account.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, &account); err != nil {
			return err
		}
		updated = account

		action := "account.deactivated"
		if active {
			action = "account.activated"
		}
		return s.audit(ctx, tx, action, account.ID, nil)
	})
	if err != nil {
		return domain.Account{}, err
	}
	return updated, nil
}

// resolveParent validates a new parent reference. Walking up from the candidate parent
// must never reach the account itself.
func (s *Service) resolveParent(ctx context.Context, tx *gorm.DB, tenantID, accountID snowflake.ID, ref string) (*snowflake.ID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	parentID, err := parseID(ref)
	if err != nil {
		return nil, domain.ErrInvalidParent
	}
	if parentID == accountID {
		return nil, domain.ErrAccountCycle
	}

	cursor := parentID
	for depth := 0; depth < maxTreeDepth; depth++ {
		node, err := s.repo.FindByID(ctx, tx, tenantID, cursor)
		if err != nil {
			return nil, err
		}
		if node == nil {
			return nil, domain.ErrInvalidParent
		}
		if node.ParentID == nil {
			return &parentID, nil
		}
		if *node.ParentID == accountID {
			return nil, domain.ErrAccountCycle
		}
		cursor = *node.ParentID
	}
	return nil, domain.ErrAccountCycle
}

func (s *Service) load(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (domain.Account, error) {
	item, err := s.repo.FindByID(ctx, tx, tenantID, id)
	if err != nil {
		return domain.Account{}, err
	}
	if item == nil {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return *item, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, id snowflake.ID, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	targetID := id.String()
	return s.auditSvc.AuditLogTx(ctx, tx, action, "account", &targetID, metadata)
}

func (s *Service) tenant(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return 0, domain.ErrInvalidTenant
	}
	return tenantID, nil
}

func flatten(items []*domain.Account) []domain.Account {
	accounts := make([]domain.Account, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		accounts = append(accounts, *item)
	}
	return accounts
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

