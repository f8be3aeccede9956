package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type CreateAccountRequest struct {
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Type           AccountType     `json:"type"`
	Subtype        AccountSubtype  `json:"subtype"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ParentID       string          `json:"parent_id"`
}

// UpdateAccountRequest changes descriptive fields. An empty ParentID detaches the account
// from its parent. Type is accepted only so that an attempted change can be rejected.
type UpdateAccountRequest struct {
	ID       string          `json:"-"`
	Code     *string         `json:"code,omitempty"`
	Name     *string         `json:"name,omitempty"`
	Type     *AccountType    `json:"type,omitempty"`
	Subtype  *AccountSubtype `json:"subtype,omitempty"`
	ParentID *string         `json:"parent_id,omitempty"`
}

type ListAccountRequest struct {
	Type     string
	IsActive *bool
	ParentID string
	RootOnly bool
}

type Service interface {
	Create(ctx context.Context, req CreateAccountRequest) (Account, error)
	Get(ctx context.Context, id string) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	List(ctx context.Context, req ListAccountRequest) ([]Account, error)
	Children(ctx context.Context, id string) ([]Account, error)
	Update(ctx context.Context, req UpdateAccountRequest) (Account, error)
	Deactivate(ctx context.Context, id string) (Account, error)
	Activate(ctx context.Context, id string) (Account, error)
}
