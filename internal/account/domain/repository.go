package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ListAccountFilter narrows List results. Nil fields do not filter.
type ListAccountFilter struct {
	Type     *AccountType
	IsActive *bool
	ParentID *snowflake.ID
	RootOnly bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Account, error)
	FindByCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*Account, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListAccountFilter) ([]*Account, error)
	Update(ctx context.Context, db *gorm.DB, account *Account) error

	// LockForUpdate loads the accounts in ascending id order, taking row locks where the
	// dialect supports them.
	LockForUpdate(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) ([]*Account, error)

	// UpdateBalance writes newBalance if the stored version still matches account.Version,
	// and advances the in-memory account on success. A stale version yields ErrVersionConflict.
	UpdateBalance(ctx context.Context, db *gorm.DB, account *Account, newBalance decimal.Decimal, now time.Time) error
}
