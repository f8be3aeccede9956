package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateTaxRequest struct {
	Code string          `json:"code"`
	Name string          `json:"name"`
	Rate decimal.Decimal `json:"rate"`
	Type TaxType         `json:"type"`
}

type UpdateTaxRequest struct {
	ID   string           `json:"-"`
	Name *string          `json:"name,omitempty"`
	Rate *decimal.Decimal `json:"rate,omitempty"`
	Type *TaxType         `json:"type,omitempty"`
}

type ListTaxRequest struct {
	Code     string
	Type     string
	IsActive *bool
}

type CreateGroupRequest struct {
	Name   string   `json:"name"`
	TaxIDs []string `json:"tax_ids"`
}

// AddMemberRequest appends a tax to a group. A nil OrderIndex places it last.
type AddMemberRequest struct {
	GroupID    string `json:"-"`
	TaxID      string `json:"tax_id"`
	OrderIndex *int   `json:"order_index,omitempty"`
}

type CreateExemptionRequest struct {
	ContactID         string        `json:"contact_id"`
	TaxID             string        `json:"tax_id"`
	ExemptionType     ExemptionType `json:"exemption_type"`
	CertificateNumber string        `json:"certificate_number"`
	CertificateExpiry *time.Time    `json:"certificate_expiry"`
}

// CalculateRequest selects exactly one of TaxID or GroupID. ContactID is optional and
// enables exemption filtering.
type CalculateRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	TaxID     string          `json:"tax_id"`
	GroupID   string          `json:"group_id"`
	ContactID string          `json:"contact_id"`
}

type CalculationResult struct {
	BaseAmount decimal.Decimal `json:"base_amount"`
	Lines      []GroupLine     `json:"lines"`
	TotalTax   decimal.Decimal `json:"total_tax"`
	Total      decimal.Decimal `json:"total"`
	Exempted   []ExemptedTax   `json:"exempted,omitempty"`
	Notes      []ExemptionNote `json:"notes,omitempty"`
	Skipped    []SkippedTax    `json:"skipped,omitempty"`
}

// SkippedTax is a group member left out of a calculation.
type SkippedTax struct {
	TaxID  snowflake.ID `json:"tax_id"`
	Code   string       `json:"code"`
	Reason string       `json:"reason"`
}

type Service interface {
	CreateTax(ctx context.Context, req CreateTaxRequest) (Tax, error)
	GetTax(ctx context.Context, id string) (Tax, error)
	ListTaxes(ctx context.Context, req ListTaxRequest) ([]Tax, error)
	UpdateTax(ctx context.Context, req UpdateTaxRequest) (Tax, error)
	DeactivateTax(ctx context.Context, id string) (Tax, error)

	CreateGroup(ctx context.Context, req CreateGroupRequest) (TaxGroupDetail, error)
	GetGroup(ctx context.Context, id string) (TaxGroupDetail, error)
	ListGroups(ctx context.Context) ([]TaxGroup, error)
	AddGroupMember(ctx context.Context, req AddMemberRequest) (TaxGroupDetail, error)
	RemoveGroupMember(ctx context.Context, groupID, taxID string) (TaxGroupDetail, error)
	EffectiveRate(ctx context.Context, groupID string) (decimal.Decimal, error)

	CreateExemption(ctx context.Context, req CreateExemptionRequest) (TaxExemption, error)
	ListExemptions(ctx context.Context, contactID string) ([]TaxExemption, error)
	DeactivateExemption(ctx context.Context, id string) (TaxExemption, error)

	Calculate(ctx context.Context, req CalculateRequest) (CalculationResult, error)
}
