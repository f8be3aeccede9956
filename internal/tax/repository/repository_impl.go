package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/smallbiznis/bookkeeping/internal/tax/domain"
	"gorm.io/gorm"
)

const taxColumns = `id, tenant_id, code, name, rate, type, is_active, created_at, updated_at`

const exemptionColumns = `id, tenant_id, contact_id, tax_id, exemption_type, certificate_number,
	certificate_expiry, is_active, created_at, updated_at`

type repo struct{}

func Provide() taxdomain.Repository {
	return &repo{}
}

func (r *repo) InsertTax(ctx context.Context, db *gorm.DB, tax *taxdomain.Tax) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO taxes (`+taxColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tax.ID,
		tax.TenantID,
		tax.Code,
		tax.Name,
		tax.Rate,
		tax.Type,
		tax.IsActive,
		tax.CreatedAt,
		tax.UpdatedAt,
	).Error
}

func (r *repo) FindTaxByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*taxdomain.Tax, error) {
	var tax taxdomain.Tax
	err := db.WithContext(ctx).Raw(
		`SELECT `+taxColumns+` FROM taxes WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&tax).Error
	if err != nil {
		return nil, err
	}
	if tax.ID == 0 {
		return nil, nil
	}
	return &tax, nil
}

func (r *repo) ListTaxes(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter taxdomain.ListTaxFilter) ([]taxdomain.Tax, error) {
	var items []taxdomain.Tax
	stmt := db.WithContext(ctx).
		Model(&taxdomain.Tax{}).
		Where("tenant_id = ?", tenantID)
	if code := strings.TrimSpace(filter.Code); code != "" {
		stmt = stmt.Where("code = ?", code)
	}
	if filter.Type != nil {
		stmt = stmt.Where("type = ?", *filter.Type)
	}
	if filter.IsActive != nil {
		stmt = stmt.Where("is_active = ?", *filter.IsActive)
	}
	if err := stmt.Order("code asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateTax(ctx context.Context, db *gorm.DB, tax *taxdomain.Tax) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE taxes SET name = ?, rate = ?, type = ?, is_active = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		tax.Name,
		tax.Rate,
		tax.Type,
		tax.IsActive,
		tax.UpdatedAt,
		tax.TenantID,
		tax.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return taxdomain.ErrTaxNotFound
	}
	return nil
}

func (r *repo) InsertGroup(ctx context.Context, db *gorm.DB, group *taxdomain.TaxGroup) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tax_groups (id, tenant_id, name, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		group.ID,
		group.TenantID,
		group.Name,
		group.IsActive,
		group.CreatedAt,
		group.UpdatedAt,
	).Error
}

func (r *repo) FindGroupByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*taxdomain.TaxGroup, error) {
	var group taxdomain.TaxGroup
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, is_active, created_at, updated_at
		 FROM tax_groups WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&group).Error
	if err != nil {
		return nil, err
	}
	if group.ID == 0 {
		return nil, nil
	}
	return &group, nil
}

func (r *repo) ListGroups(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]taxdomain.TaxGroup, error) {
	var groups []taxdomain.TaxGroup
	err := db.WithContext(ctx).
		Model(&taxdomain.TaxGroup{}).
		Where("tenant_id = ?", tenantID).
		Order("name asc, id asc").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *repo) InsertMember(ctx context.Context, db *gorm.DB, member *taxdomain.TaxGroupMember) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tax_group_members (tax_group_id, tax_id, tenant_id, order_index, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		member.TaxGroupID,
		member.TaxID,
		member.TenantID,
		member.OrderIndex,
		member.CreatedAt,
	).Error
}

func (r *repo) DeleteMember(ctx context.Context, db *gorm.DB, tenantID, groupID, taxID snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM tax_group_members WHERE tenant_id = ? AND tax_group_id = ? AND tax_id = ?`,
		tenantID,
		groupID,
		taxID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListGroupTaxes(ctx context.Context, db *gorm.DB, tenantID, groupID snowflake.ID) ([]taxdomain.Tax, error) {
	var items []taxdomain.Tax
	err := db.WithContext(ctx).Raw(
		`SELECT t.id, t.tenant_id, t.code, t.name, t.rate, t.type, t.is_active, t.created_at, t.updated_at
		 FROM tax_group_members m
		 JOIN taxes t ON t.id = m.tax_id AND t.tenant_id = m.tenant_id
		 WHERE m.tenant_id = ? AND m.tax_group_id = ?
		 ORDER BY m.order_index ASC`,
		tenantID,
		groupID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MaxOrderIndex(ctx context.Context, db *gorm.DB, groupID snowflake.ID) (int, bool, error) {
	var max sql.NullInt64
	err := db.WithContext(ctx).Raw(
		`SELECT MAX(order_index) FROM tax_group_members WHERE tax_group_id = ?`,
		groupID,
	).Scan(&max).Error
	if err != nil {
		return 0, false, err
	}
	return int(max.Int64), max.Valid, nil
}

func (r *repo) InsertExemption(ctx context.Context, db *gorm.DB, exemption *taxdomain.TaxExemption) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tax_exemptions (`+exemptionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exemption.ID,
		exemption.TenantID,
		exemption.ContactID,
		exemption.TaxID,
		exemption.ExemptionType,
		exemption.CertificateNumber,
		exemption.CertificateExpiry,
		exemption.IsActive,
		exemption.CreatedAt,
		exemption.UpdatedAt,
	).Error
}

func (r *repo) FindExemptionByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*taxdomain.TaxExemption, error) {
	var exemption taxdomain.TaxExemption
	err := db.WithContext(ctx).Raw(
		`SELECT `+exemptionColumns+` FROM tax_exemptions WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&exemption).Error
	if err != nil {
		return nil, err
	}
	if exemption.ID == 0 {
		return nil, nil
	}
	return &exemption, nil
}

func (r *repo) ListExemptions(ctx context.Context, db *gorm.DB, tenantID, contactID snowflake.ID) ([]taxdomain.TaxExemption, error) {
	var items []taxdomain.TaxExemption
	err := db.WithContext(ctx).
		Model(&taxdomain.TaxExemption{}).
		Where("tenant_id = ? AND contact_id = ?", tenantID, contactID).
		Order("created_at asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateExemption(ctx context.Context, db *gorm.DB, exemption *taxdomain.TaxExemption) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE tax_exemptions SET is_active = ?, certificate_expiry = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		exemption.IsActive,
		exemption.CertificateExpiry,
		exemption.UpdatedAt,
		exemption.TenantID,
		exemption.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return taxdomain.ErrExemptionNotFound
	}
	return nil
}
