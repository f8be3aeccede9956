package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/bookkeeping/internal/actorcontext"
	auditdomain "github.com/smallbiznis/bookkeeping/internal/audit/domain"
	"github.com/smallbiznis/bookkeeping/internal/audit/repository"
	"github.com/smallbiznis/bookkeeping/internal/clock"
	"github.com/smallbiznis/bookkeeping/internal/observability/obscontext"
	"github.com/smallbiznis/bookkeeping/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAuditTest(t *testing.T) (*gorm.DB, *Service, *snowflake.Node) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, _ := snowflake.NewNode(1)
	svc := &Service{
		db:    db,
		log:   zap.NewNop(),
		genID: node,
		clock: clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		repo:  repository.Provide(),
	}
	return db, svc, node
}

func TestAuditLogTxRecordsActorAndMasksMetadata(t *testing.T) {
	db, svc, node := setupAuditTest(t)
	tenantID := node.Generate()
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)
	ctx = actorcontext.WithActorID(ctx, "user_42")
	ctx = obscontext.WithRequestID(ctx, "req-1")

	target := "123"
	err := svc.AuditLogTx(ctx, db, "tax.exemption_created", "tax_exemption", &target, map[string]any{
		"certificate_number": "CERT-00001234",
		"exemption_type":     "resale",
	})
	require.NoError(t, err)

	logs, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, logs, 1)

	log := logs[0]
	assert.Equal(t, tenantID, log.TenantID)
	assert.Equal(t, "user_42", log.ActorID)
	assert.Equal(t, "tax_exemption", log.TargetType)
	require.NotNil(t, log.TargetID)
	assert.Equal(t, "123", *log.TargetID)
	assert.Equal(t, "****1234", log.Metadata["certificate_number"])
	assert.Equal(t, "resale", log.Metadata["exemption_type"])
	assert.Equal(t, "req-1", log.Metadata["request_id"])
}

func TestAuditLogTxRollsBackWithTransaction(t *testing.T) {
	db, svc, node := setupAuditTest(t)
	ctx := tenantctx.WithTenantID(context.Background(), node.Generate())

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.AuditLogTx(ctx, tx, "ledger.entry_posted", "journal_entry", nil, nil); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	logs, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestAuditLogTxValidation(t *testing.T) {
	db, svc, node := setupAuditTest(t)

	err := svc.AuditLogTx(context.Background(), db, "account.created", "account", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTenant)

	ctx := tenantctx.WithTenantID(context.Background(), node.Generate())
	err = svc.AuditLogTx(ctx, db, "  ", "account", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestAuditLogIsAppendOnly(t *testing.T) {
	db, svc, node := setupAuditTest(t)
	ctx := tenantctx.WithTenantID(context.Background(), node.Generate())
	require.NoError(t, svc.AuditLogTx(ctx, db, "account.created", "account", nil, nil))

	var log auditdomain.AuditLog
	require.NoError(t, db.First(&log).Error)

	log.Action = "rewritten"
	assert.ErrorIs(t, db.Save(&log).Error, auditdomain.ErrAuditLogImmutable)
	assert.ErrorIs(t, db.Delete(&log).Error, auditdomain.ErrAuditLogImmutable)
}

func TestListRejectsInvertedRange(t *testing.T) {
	_, svc, node := setupAuditTest(t)
	ctx := tenantctx.WithTenantID(context.Background(), node.Generate())

	start := time.Now()
	end := start.Add(-time.Hour)
	_, err := svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
