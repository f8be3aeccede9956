package domain

import "errors"

var (
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidTaxCode       = errors.New("invalid_tax_code")
	ErrInvalidTaxRate       = errors.New("invalid_tax_rate")
	ErrInvalidTaxType       = errors.New("invalid_tax_type")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidContact       = errors.New("invalid_contact")
	ErrInvalidExemptionType = errors.New("invalid_exemption_type")
	ErrInvalidTaxSelection  = errors.New("invalid_tax_selection")
	ErrDuplicateTaxCode     = errors.New("duplicate_tax_code")
	ErrDuplicateMember      = errors.New("duplicate_group_member")
	ErrTaxNotFound          = errors.New("tax_not_found")
	ErrTaxInactive          = errors.New("tax_inactive")
	ErrGroupNotFound        = errors.New("tax_group_not_found")
	ErrExemptionNotFound    = errors.New("tax_exemption_not_found")

	// ErrExpiredOrInactiveExemption is informational. It is attached to calculation notes
	// for exemptions that exist but no longer suppress tax, and is never returned as a failure.
	ErrExpiredOrInactiveExemption = errors.New("expired_or_inactive_exemption")
)
