package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/bookkeeping/internal/audit/domain"
	"github.com/smallbiznis/bookkeeping/internal/clock"
	obsmetrics "github.com/smallbiznis/bookkeeping/internal/observability/metrics"
	taxdomain "github.com/smallbiznis/bookkeeping/internal/tax/domain"
	"github.com/smallbiznis/bookkeeping/pkg/db"
	"github.com/smallbiznis/bookkeeping/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       taxdomain.Repository
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       taxdomain.Repository
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) taxdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("tax.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateTax(ctx context.Context, req taxdomain.CreateTaxRequest) (taxdomain.Tax, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return taxdomain.Tax{}, err
	}

	taxType := normalizeTaxType(req.Type)
	if taxType == "" {
		taxType = taxdomain.TaxTypeNormal
	}

	now := s.clock.Now()
	tax := taxdomain.Tax{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Code:      strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:      strings.TrimSpace(req.Name),
		Rate:      req.Rate,
		Type:      taxType,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tax.Validate(); err != nil {
		return taxdomain.Tax{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertTax(ctx, tx, &tax); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return taxdomain.ErrDuplicateTaxCode
			}
			return err
		}
		return s.audit(ctx, tx, "tax.created", "tax", tax.ID, map[string]any{
			"code": tax.Code,
			"rate": tax.Rate.String(),
			"type": string(tax.Type),
		})
	})
	if err != nil {
		return taxdomain.Tax{}, err
	}
	return tax, nil
}

func (s *Service) GetTax(ctx context.Context, id string) (taxdomain.Tax, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return taxdomain.Tax{}, err
	}
	taxID, err := parseID(id)
	if err != nil {
		return taxdomain.Tax{}, err
	}
	return s.loadTax(ctx, s.db, tenantID, taxID)
}

func (s *Service) ListTaxes(ctx context.Context, req taxdomain.ListTaxRequest) ([]taxdomain.Tax, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}

	filter := taxdomain.ListTaxFilter{
		Code:     strings.ToUpper(strings.TrimSpace(req.Code)),
		IsActive: req.IsActive,
	}
	if value := strings.TrimSpace(req.Type); value != "" {
		taxType := normalizeTaxType(taxdomain.TaxType(value))
		if !taxType.Valid() {
			return nil, taxdomain.ErrInvalidTaxType
		}
		filter.Type = &taxType
	}
	return s.repo.ListTaxes(ctx, s.db, tenantID, filter)
}

func (s *Service) UpdateTax(ctx context.Context, req taxdomain.UpdateTaxRequest) (taxdomain.Tax, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return taxdomain.Tax{}, err
	}
	taxID, err := parseID(req.ID)
	if err != nil {
		return taxdomain.Tax{}, err
	}

	var updated taxdomain.Tax
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tax, err := s.loadTax(ctx, tx, tenantID, taxID)
		if err != nil {
			return err
		}
		if req.Name != nil {
			tax.Name = strings.TrimSpace(*req.Name)
		}
		if req.Rate != nil {
			tax.Rate = *req.Rate
		}
		if req.Type != nil {
			tax.Type = normalizeTaxType(*req.Type)
		}
		if err := tax.Validate(); err != nil {
			return err
		}

		tax.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateTax(ctx, tx, &tax); err != nil {
			return err
		}
		updated = tax
		return s.audit(ctx, tx, "tax.updated", "tax", tax.ID, map[string]any{
			"rate": tax.Rate.String(),
			"type": string(tax.Type),
		})
	})
	if err != nil {
		return taxdomain.Tax{}, err
	}
	return updated, nil
}

func (s *Service) DeactivateTax(ctx context.Context, id string) (taxdomain.Tax, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return taxdomain.Tax{}, err
	}
	taxID, err := parseID(id)
	if err != nil {
		return taxdomain.Tax{}, err
	}

	var updated taxdomain.Tax
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tax, err := s.loadTax(ctx, tx, tenantID, taxID)
		if err != nil {
			return err
		}
		if !tax.IsActive {
			updated = tax
			return nil
		}
		tax.IsActive = false
		tax.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateTax(ctx, tx, &tax); err != nil {
			return err
		}
		updated = tax
		return s.audit(ctx, tx, "tax.deactivated", "tax", tax.ID, nil)
	})
	if err != nil {
		return taxdomain.Tax{}, err
	}
	return updated, nil
}

func (s *Service) CreateGroup(ctx context.Context, req taxdomain.CreateGroupRequest) (taxdomain.TaxGroupDetail, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return taxdomain.TaxGroupDetail{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return taxdomain.TaxGroupDetail{}, taxdomain.ErrInvalidName
	}

	taxIDs := make([]snowflake.ID, 0, len(req.TaxIDs))
	seen := make(map[snowflake.ID]struct{}, len(req.TaxIDs))
	for _, raw := range req.TaxIDs {
		taxID, err := parseID(raw)
		if err != nil {
			return taxdomain.TaxGroupDetail{}, err
		}
		if _, ok := seen[taxID]; ok {
			return taxdomain.TaxGroupDetail{}, taxdomain.ErrDuplicateMember
		}
		seen[taxID] = struct{}{}
		taxIDs = append(taxIDs, taxID)
	}

	now := s.clock.Now()
	group := taxdomain.TaxGroup{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var detail taxdomain.TaxGroupDetail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertGroup(ctx, tx, &group); err != nil {
			return err
		}
		for idx, taxID := range taxIDs {
			if _, err := s.loadTax(ctx, tx, tenantID, taxID); err != nil {
				return err
			}
			member := taxdomain.TaxGroupMember{
				TaxGroupID: group.ID,
				TaxID:      taxID,
				TenantID:   tenantID,
				OrderIndex: idx,
				CreatedAt:  now,
			}
			if err := s.repo.InsertMember(ctx, tx, &member); err != nil {
				return err
			}
		}

		loaded, err := s.loadGroupDetail(ctx, tx, tenantID, group.ID)
		if err != nil {
			return err
		}
		detail = loaded
		return s.audit(ctx, tx, "tax.group_created", "tax_group", group.ID, map[string]any{
			"members": len(taxIDs),
		})
	})
	if err != nil {
		return taxdomain.TaxGroupDetail{}, err
	}
	return detail, nil
}

func (s *Service) GetGroup(ctx context.Context, id string) (taxdomain.TaxGroupDetail, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return taxdomain.TaxGroupDetail{}, err
	}
	groupID, err := parseID(id)
	if err != nil {
		return taxdomain.TaxGroupDetail{}, err
	}
	return s.loadGroupDetail(ctx, s.db, tenantID, groupID)
}

func (s *Service) ListGroups(ctx context.Context) ([]taxdomain.TaxGroup, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListGroups(ctx, s.db, tenantID)
}

func (s *Service) AddGroupMember(ctx context.Context, req taxdomain.AddMemberRequest) (taxdomain.TaxGroupDetail, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return taxdomain.TaxGroupDetail{}, err
	}
	groupID, err := parseID(req.GroupID)
	if err != nil {
		return taxdomain.TaxGroupDetail{}, err
	}
	taxID, err := parseID(req.TaxID)
	if err != nil {
		return taxdomain.TaxGroupDetail{}, err
	}

	var detail taxdomain.TaxGroupDetail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadGroupDetail(ctx, tx, tenantID, groupID); err != nil {
			return err
		}
		if _, err := s.loadTax(ctx, tx, tenantID, taxID); err != nil {
			return err
		}

		orderIndex := 0
		if req.OrderIndex != nil {
			orderIndex = *req.OrderIndex
		} else {
			max, ok, err := s.repo.MaxOrderIndex(ctx, tx, groupID)
			if err != nil {
				return err
			}
			if ok {
				orderIndex = max + 1
			}
		}

		member := taxdomain.TaxGroupMember{
			TaxGroupID: groupID,
			TaxID:      taxID,
			TenantID:   tenantID,
			OrderIndex: orderIndex,
			CreatedAt:  s.clock.Now(),
		}
		if err := s.repo.InsertMember(ctx, tx, &member); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return taxdomain.ErrDuplicateMember
			}
			return err
		}

		loaded, err := s.loadGroupDetail(ctx, tx, tenantID, groupID)
		if err != nil {
			return err
		}
		detail = loaded
		return s.audit(ctx, tx, "tax.group_member_added", "tax_group", groupID, map[string]any{
			"tax_id":      taxID.String(),
			"order_index": orderIndex,
		})
	})
	if err != nil {
		return taxdomain.TaxGroupDetail{}, err
	}
	return detail, nil
}

func (s *Service) RemoveGroupMember(ctx context.Context, groupRef, taxRef string) (taxdomain.TaxGroupDetail, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return taxdomain.TaxGroupDetail{}, err
	}
	groupID, err := parseID(groupRef)
	if err != nil {
		return taxdomain.TaxGroupDetail{}, err
	}
	taxID, err := parseID(taxRef)
	if err != nil {
		return taxdomain.TaxGroupDetail{}, err
	}

	var detail taxdomain.TaxGroupDetail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed, err := s.repo.DeleteMember(ctx, tx, tenantID, groupID, taxID)
		if err != nil {
			return err
		}
		if !removed {
			return taxdomain.ErrTaxNotFound
		}
		loaded, err := s.loadGroupDetail(ctx, tx, tenantID, groupID)
		if err != nil {
			return err
		}
		detail = loaded
		return s.audit(ctx, tx, "tax.group_member_removed", "tax_group", groupID, map[string]any{
			"tax_id": taxID.String(),
		})
	})
	if err != nil {
		return taxdomain.TaxGroupDetail{}, err
	}
	return detail, nil
}

func (s *Service) EffectiveRate(ctx context.Context, groupRef string) (decimal.Decimal, error) {
	detail, err := s.GetGroup(ctx, groupRef)
	if err != nil {
		return decimal.Zero, err
	}
	return taxdomain.EffectiveRate(detail.Taxes), nil
}

func (s *Service) CreateExemption(ctx context.Context, req taxdomain.CreateExemptionRequest) (taxdomain.TaxExemption, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return taxdomain.TaxExemption{}, err
	}
	contactID, err := snowflake.ParseString(strings.TrimSpace(req.ContactID))
	if err != nil || contactID == 0 {
		return taxdomain.TaxExemption{}, taxdomain.ErrInvalidContact
	}
	exemptionType := taxdomain.ExemptionType(strings.ToLower(strings.TrimSpace(string(req.ExemptionType))))
	if !exemptionType.Valid() {
		return taxdomain.TaxExemption{}, taxdomain.ErrInvalidExemptionType
	}

	now := s.clock.Now()
	exemption := taxdomain.TaxExemption{
		ID:                s.genID.Generate(),
		TenantID:          tenantID,
		ContactID:         contactID,
		ExemptionType:     exemptionType,
		CertificateExpiry: req.CertificateExpiry,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if certificate := strings.TrimSpace(req.CertificateNumber); certificate != "" {
		exemption.CertificateNumber = &certificate
	}
	if exemption.CertificateExpiry != nil {
		expiry := exemption.CertificateExpiry.UTC()
		exemption.CertificateExpiry = &expiry
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ref := strings.TrimSpace(req.TaxID); ref != "" {
			taxID, err := parseID(ref)
			if err != nil {
				return err
			}
			if _, err := s.loadTax(ctx, tx, tenantID, taxID); err != nil {
				return err
			}
			exemption.TaxID = &taxID
		}
		if err := s.repo.InsertExemption(ctx, tx, &exemption); err != nil {
			return err
		}

		metadata := map[string]any{
			"contact_id":     contactID.String(),
			"exemption_type": string(exemption.ExemptionType),
		}
		if exemption.CertificateNumber != nil {
			metadata["certificate_number"] = *exemption.CertificateNumber
		}
		return s.audit(ctx, tx, "tax.exemption_created", "tax_exemption", exemption.ID, metadata)
	})
	if err != nil {
		return taxdomain.TaxExemption{}, err
	}
	return exemption, nil
}

func (s *Service) ListExemptions(ctx context.Context, contactRef string) ([]taxdomain.TaxExemption, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}
	contactID, err := snowflake.ParseString(strings.TrimSpace(contactRef))
	if err != nil || contactID == 0 {
		return nil, taxdomain.ErrInvalidContact
	}
	return s.repo.ListExemptions(ctx, s.db, tenantID, contactID)
}

func (s *Service) DeactivateExemption(ctx context.Context, id string) (taxdomain.TaxExemption, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return taxdomain.TaxExemption{}, err
	}
	exemptionID, err := parseID(id)
	if err != nil {
		return taxdomain.TaxExemption{}, err
	}

	var updated taxdomain.TaxExemption
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exemption, err := s.repo.FindExemptionByID(ctx, tx, tenantID, exemptionID)
		if err != nil {
			return err
		}
		if exemption == nil {
			return taxdomain.ErrExemptionNotFound
		}
		if !exemption.IsActive {
			updated = *exemption
			return nil
		}
		exemption.IsActive = false
		exemption.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateExemption(ctx, tx, exemption); err != nil {
			return err
		}
		updated = *exemption
		return s.audit(ctx, tx, "tax.exemption_deactivated", "tax_exemption", exemption.ID, nil)
	})
	if err != nil {
		return taxdomain.TaxExemption{}, err
	}
	return updated, nil
}

func (s *Service) loadTax(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (taxdomain.Tax, error) {
	item, err := s.repo.FindTaxByID(ctx, tx, tenantID, id)
	if err != nil {
		return taxdomain.Tax{}, err
	}
	if item == nil {
		return taxdomain.Tax{}, taxdomain.ErrTaxNotFound
	}
	return *item, nil
}

func (s *Service) loadGroupDetail(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (taxdomain.TaxGroupDetail, error) {
	group, err := s.repo.FindGroupByID(ctx, tx, tenantID, id)
	if err != nil {
		return taxdomain.TaxGroupDetail{}, err
	}
	if group == nil {
		return taxdomain.TaxGroupDetail{}, taxdomain.ErrGroupNotFound
	}
	taxes, err := s.repo.ListGroupTaxes(ctx, tx, tenantID, id)
	if err != nil {
		return taxdomain.TaxGroupDetail{}, err
	}
	if taxes == nil {
		taxes = []taxdomain.Tax{}
	}
	return taxdomain.TaxGroupDetail{TaxGroup: *group, Taxes: taxes}, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action, targetType string, id snowflake.ID, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	targetID := id.String()
	return s.auditSvc.AuditLogTx(ctx, tx, action, targetType, &targetID, metadata)
}

func (s *Service) tenant(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return 0, taxdomain.ErrInvalidTenant
	}
	return tenantID, nil
}

func normalizeTaxType(value taxdomain.TaxType) taxdomain.TaxType {
	return taxdomain.TaxType(strings.ToLower(strings.TrimSpace(string(value))))
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, taxdomain.ErrInvalidID
	}
	return id, nil
}
