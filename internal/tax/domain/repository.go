package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListTaxFilter struct {
	Code     string
	Type     *TaxType
	IsActive *bool
}

type Repository interface {
	InsertTax(ctx context.Context, db *gorm.DB, tax *Tax) error
	FindTaxByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Tax, error)
	ListTaxes(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListTaxFilter) ([]Tax, error)
	UpdateTax(ctx context.Context, db *gorm.DB, tax *Tax) error

	InsertGroup(ctx context.Context, db *gorm.DB, group *TaxGroup) error
	FindGroupByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*TaxGroup, error)
	ListGroups(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]TaxGroup, error)
	InsertMember(ctx context.Context, db *gorm.DB, member *TaxGroupMember) error
	DeleteMember(ctx context.Context, db *gorm.DB, tenantID, groupID, taxID snowflake.ID) (bool, error)
	// ListGroupTaxes returns the member taxes of a group in ascending order index.
	ListGroupTaxes(ctx context.Context, db *gorm.DB, tenantID, groupID snowflake.ID) ([]Tax, error)
	MaxOrderIndex(ctx context.Context, db *gorm.DB, groupID snowflake.ID) (int, bool, error)

	InsertExemption(ctx context.Context, db *gorm.DB, exemption *TaxExemption) error
	FindExemptionByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*TaxExemption, error)
	ListExemptions(ctx context.Context, db *gorm.DB, tenantID, contactID snowflake.ID) ([]TaxExemption, error)
	UpdateExemption(ctx context.Context, db *gorm.DB, exemption *TaxExemption) error
}
