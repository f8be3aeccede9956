package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// TaxType controls how a tax interacts with the running base inside a group.
type TaxType string

const (
	TaxTypeNormal      TaxType = "normal"
	TaxTypeCompound    TaxType = "compound"    // amount is added to the base of later taxes
	TaxTypeWithholding TaxType = "withholding" // computed like normal, reported separately
)

func (t TaxType) Valid() bool {
	switch t {
	case TaxTypeNormal, TaxTypeCompound, TaxTypeWithholding:
		return true
	default:
		return false
	}
}

var maxRate = decimal.NewFromInt(100)

// rateScale matches the numeric(7,4) rate column.
const rateScale int32 = 4

// Tax is a tenant-scoped rate definition. Rate is a percentage between 0 and 100.
type Tax struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_taxes_tenant_code,priority:1" json:"tenant_id"`
	Code      string          `gorm:"type:text;not null;uniqueIndex:ux_taxes_tenant_code,priority:2" json:"code"`
	Name      string          `gorm:"type:text;not null" json:"name"`
	Rate      decimal.Decimal `gorm:"type:numeric(7,4);not null" json:"rate"`
	Type      TaxType         `gorm:"type:text;not null" json:"type"`
	IsActive  bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Tax) TableName() string { return "taxes" }

func (t *Tax) Validate() error {
	if strings.TrimSpace(t.Code) == "" {
		return ErrInvalidTaxCode
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrInvalidName
	}
	if t.Rate.IsNegative() || t.Rate.GreaterThan(maxRate) || !t.Rate.Equal(t.Rate.Round(rateScale)) {
		return ErrInvalidTaxRate
	}
	if !t.Type.Valid() {
		return ErrInvalidTaxType
	}
	return nil
}

// TaxGroup is an ordered set of taxes applied together.
type TaxGroup struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	IsActive  bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (TaxGroup) TableName() string { return "tax_groups" }

// TaxGroupMember places a tax inside a group. OrderIndex is unique per group and decides
// the stacking order.
type TaxGroupMember struct {
	TaxGroupID snowflake.ID `gorm:"primaryKey;uniqueIndex:ux_tax_group_members_order,priority:1" json:"tax_group_id"`
	TaxID      snowflake.ID `gorm:"primaryKey" json:"tax_id"`
	TenantID   snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	OrderIndex int          `gorm:"not null;uniqueIndex:ux_tax_group_members_order,priority:2" json:"order_index"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (TaxGroupMember) TableName() string { return "tax_group_members" }

// TaxGroupDetail is a group with its member taxes in stacking order.
type TaxGroupDetail struct {
	TaxGroup
	Taxes []Tax `json:"taxes"`
}
