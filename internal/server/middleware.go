package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bookkeeping/internal/actorcontext"
	"github.com/smallbiznis/bookkeeping/pkg/tenantctx"
)

const (
	HeaderTenant = "X-Tenant-ID"
	HeaderActor  = "X-Actor-ID"
)

// TenantContext resolves the tenant and actor headers into the request context.
// Authentication happens upstream; the headers are trusted as given.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderTenant))
		tenantID, err := snowflake.ParseString(raw)
		if raw == "" || err != nil || tenantID == 0 {
			AbortWithError(c, newValidationError("tenant_id", "invalid_tenant", "missing or invalid "+HeaderTenant+" header"))
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
		ctx = actorcontext.WithActorID(ctx, c.GetHeader(HeaderActor))
		c.Request = c.Request.WithContext(ctx)
		c.Set("tenant_id", tenantID.String())
		c.Next()
	}
}
