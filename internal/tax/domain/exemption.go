package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type ExemptionType string

const (
	ExemptionTypeResale     ExemptionType = "resale"
	ExemptionTypeNonprofit  ExemptionType = "nonprofit"
	ExemptionTypeGovernment ExemptionType = "government"
	ExemptionTypeDiplomatic ExemptionType = "diplomatic"
	ExemptionTypeOther      ExemptionType = "other"
)

func (t ExemptionType) Valid() bool {
	switch t {
	case ExemptionTypeResale, ExemptionTypeNonprofit, ExemptionTypeGovernment, ExemptionTypeDiplomatic, ExemptionTypeOther:
		return true
	default:
		return false
	}
}

// TaxExemption exempts a contact from one tax, or from every tax when TaxID is nil.
type TaxExemption struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID          snowflake.ID  `gorm:"not null;index:ix_tax_exemptions_contact,priority:1" json:"tenant_id"`
	ContactID         snowflake.ID  `gorm:"not null;index:ix_tax_exemptions_contact,priority:2" json:"contact_id"`
	TaxID             *snowflake.ID `gorm:"index" json:"tax_id,omitempty"`
	ExemptionType     ExemptionType `gorm:"type:text;not null" json:"exemption_type"`
	CertificateNumber *string       `gorm:"type:text" json:"certificate_number,omitempty"`
	CertificateExpiry *time.Time    `json:"certificate_expiry,omitempty"`
	IsActive          bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (TaxExemption) TableName() string { return "tax_exemptions" }

// AppliesTo reports whether the exemption covers taxID.
func (e *TaxExemption) AppliesTo(taxID snowflake.ID) bool {
	return e.TaxID == nil || *e.TaxID == taxID
}

// IsExpired is true only when an expiry is set and lies strictly before now.
func (e *TaxExemption) IsExpired(now time.Time) bool {
	return e.CertificateExpiry != nil && e.CertificateExpiry.Before(now)
}

// Suppresses reports whether the exemption currently removes taxID.
func (e *TaxExemption) Suppresses(taxID snowflake.ID, now time.Time) bool {
	return e.IsActive && !e.IsExpired(now) && e.AppliesTo(taxID)
}

// ExemptedTax records a tax removed by an exemption.
type ExemptedTax struct {
	TaxID       snowflake.ID `json:"tax_id"`
	ExemptionID snowflake.ID `json:"exemption_id"`
}

// ExemptionNote reports an exemption that matched a tax but did not suppress it.
type ExemptionNote struct {
	TaxID       snowflake.ID `json:"tax_id"`
	ExemptionID snowflake.ID `json:"exemption_id"`
	Reason      string       `json:"reason"`
}

// FilterResult is the outcome of FilterExempt.
type FilterResult struct {
	Applicable []Tax
	Exempted   []ExemptedTax
	Notes      []ExemptionNote
}

// FilterExempt removes taxes covered by an active, unexpired exemption. Order of the
// remaining taxes is preserved. Expired or inactive exemptions that would otherwise match
// are reported as notes.
func FilterExempt(taxes []Tax, exemptions []TaxExemption, now time.Time) FilterResult {
	result := FilterResult{Applicable: make([]Tax, 0, len(taxes))}
	for _, tax := range taxes {
		var notes []ExemptionNote
		suppressed := false
		for i := range exemptions {
			exemption := &exemptions[i]
			if !exemption.AppliesTo(tax.ID) {
				continue
			}
			if exemption.Suppresses(tax.ID, now) {
				result.Exempted = append(result.Exempted, ExemptedTax{TaxID: tax.ID, ExemptionID: exemption.ID})
				suppressed = true
				break
			}
			notes = append(notes, ExemptionNote{
				TaxID:       tax.ID,
				ExemptionID: exemption.ID,
				Reason:      ErrExpiredOrInactiveExemption.Error(),
			})
		}
		if suppressed {
			continue
		}
		result.Applicable = append(result.Applicable, tax)
		result.Notes = append(result.Notes, notes...)
	}
	return result
}
