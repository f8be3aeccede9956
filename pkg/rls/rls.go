package rls

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// WithTenant scopes the current postgres transaction to a tenant so row-level security
// policies keyed on app.current_tenant_id apply to every statement that follows.
func WithTenant(tx *gorm.DB, tenantID snowflake.ID) error {
	return tx.Exec(
		"SELECT set_config('app.current_tenant_id', ?, true)",
		fmt.Sprintf("%d", int64(tenantID)),
	).Error
}
