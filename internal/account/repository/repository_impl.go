package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bookkeeping/internal/account/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const accountColumns = `id, tenant_id, code, name, type, subtype, current_balance, opening_balance,
	is_active, parent_id, version, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.TenantID,
		account.Code,
		account.Name,
		account.Type,
		account.Subtype,
		account.CurrentBalance,
		account.OpeningBalance,
		account.IsActive,
		account.ParentID,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM accounts WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM accounts WHERE tenant_id = ? AND code = ?`,
		tenantID,
		code,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.ListAccountFilter) ([]*domain.Account, error) {
	var accounts []*domain.Account
	stmt := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("tenant_id = ?", tenantID)
	if filter.Type != nil {
		stmt = stmt.Where("type = ?", *filter.Type)
	}
	if filter.IsActive != nil {
		stmt = stmt.Where("is_active = ?", *filter.IsActive)
	}
	if filter.ParentID != nil {
		stmt = stmt.Where("parent_id = ?", *filter.ParentID)
	}
	if filter.RootOnly {
		stmt = stmt.Where("parent_id IS NULL")
	}
	if err := stmt.Order("code asc, id asc").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET code = ?, name = ?, subtype = ?, parent_id = ?, is_active = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		account.Code,
		account.Name,
		account.Subtype,
		account.ParentID,
		account.IsActive,
		account.UpdatedAt,
		account.TenantID,
		account.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *repo) LockForUpdate(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) ([]*domain.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var accounts []*domain.Account
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Order("id asc").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) UpdateBalance(ctx context.Context, db *gorm.DB, account *domain.Account, newBalance decimal.Decimal, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET current_balance = ?, version = version + 1, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND version = ?`,
		newBalance,
		now,
		account.TenantID,
		account.ID,
		account.Version,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}

	account.CurrentBalance = newBalance
	account.Version++
	account.UpdatedAt = now
	return nil
}
