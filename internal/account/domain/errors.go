package domain

import "errors"

var (
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidCode          = errors.New("invalid_code")
	ErrInvalidAccountType   = errors.New("invalid_account_type")
	ErrInvalidParent        = errors.New("invalid_parent")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrAccountInactive      = errors.New("account_inactive")
	ErrAccountTypeImmutable = errors.New("account_type_immutable")
	ErrAccountCycle         = errors.New("account_cycle")
	ErrDuplicateCode        = errors.New("duplicate_account_code")
	ErrVersionConflict      = errors.New("account_version_conflict")
)
