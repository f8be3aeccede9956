package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bookkeeping/internal/account/domain"
	"github.com/smallbiznis/bookkeeping/internal/account/repository"
	auditdomain "github.com/smallbiznis/bookkeeping/internal/audit/domain"
	"github.com/smallbiznis/bookkeeping/internal/clock"
	"github.com/smallbiznis/bookkeeping/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type auditSvcMock struct {
	mock.Mock
}

func (m *auditSvcMock) AuditLogTx(ctx context.Context, tx *gorm.DB, action string, targetType string, targetID *string, metadata map[string]any) error {
	args := m.Called(action, targetType)
	return args.Error(0)
}

func (m *auditSvcMock) List(ctx context.Context, req auditdomain.ListAuditLogRequest) ([]auditdomain.AuditLog, error) {
	return nil, nil
}

func setupAccountTest(t *testing.T) (*gorm.DB, *Service, context.Context) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Account{}))

	node, _ := snowflake.NewNode(1)
	svc := &Service{
		db:    db,
		log:   zap.NewNop(),
		genID: node,
		clock: clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		repo:  repository.Provide(),
	}
	ctx := tenantctx.WithTenantID(context.Background(), node.Generate())
	return db, svc, ctx
}

func TestCreateDefaultsCodeAndBalance(t *testing.T) {
	_, svc, ctx := setupAccountTest(t)

	account, err := svc.Create(ctx, domain.CreateAccountRequest{
		Name:           "Cash on Hand",
		Type:           domain.AccountTypeAsset,
		Subtype:        domain.SubtypeCash,
		OpeningBalance: decimal.RequireFromString("1500.25"),
	})
	require.NoError(t, err)
	assert.Equal(t, "cash-on-hand", account.Code)
	assert.True(t, account.IsActive)
	assert.True(t, account.CurrentBalance.Equal(account.OpeningBalance))

	stored, err := svc.GetByCode(ctx, "CASH-ON-HAND")
	require.NoError(t, err)
	assert.Equal(t, account.ID, stored.ID)
	assert.True(t, stored.CurrentBalance.Equal(decimal.RequireFromString("1500.25")))
	assert.Equal(t, int64(0), stored.Version)
}

func TestCreateValidation(t *testing.T) {
	_, svc, ctx := setupAccountTest(t)

	_, err := svc.Create(ctx, domain.CreateAccountRequest{Name: " ", Type: domain.AccountTypeAsset})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, domain.CreateAccountRequest{Name: "Cash", Type: "contra"})
	assert.ErrorIs(t, err, domain.ErrInvalidAccountType)

	_, err = svc.Create(context.Background(), domain.CreateAccountRequest{Name: "Cash", Type: domain.AccountTypeAsset})
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)

	_, err = svc.Create(ctx, domain.CreateAccountRequest{Name: "Cash", Type: domain.AccountTypeAsset, ParentID: "12345"})
	assert.ErrorIs(t, err, domain.ErrInvalidParent)

	_, err = svc.Create(ctx, domain.CreateAccountRequest{Name: "Cash", Type: domain.AccountTypeAsset, OpeningBalance: decimal.RequireFromString("10.00005")})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	account, err := svc.Create(ctx, domain.CreateAccountRequest{Name: "Cash", Type: domain.AccountTypeAsset, OpeningBalance: decimal.RequireFromString("10.12340")})
	require.NoError(t, err)
	assert.True(t, account.OpeningBalance.Equal(decimal.RequireFromString("10.1234")))
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	_, svc, ctx := setupAccountTest(t)

	_, err := svc.Create(ctx, domain.CreateAccountRequest{Code: "1000", Name: "Cash", Type: domain.AccountTypeAsset})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateAccountRequest{Code: "1000", Name: "Bank", Type: domain.AccountTypeAsset})
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)
}

func TestTenantIsolation(t *testing.T) {
	_, svc, ctx := setupAccountTest(t)

	account, err := svc.Create(ctx, domain.CreateAccountRequest{Name: "Cash", Type: domain.AccountTypeAsset})
	require.NoError(t, err)

	node, _ := snowflake.NewNode(2)
	otherCtx := tenantctx.WithTenantID(context.Background(), node.Generate())
	_, err = svc.Get(otherCtx, account.ID.String())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	items, err := svc.List(otherCtx, domain.ListAccountRequest{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestListFiltersAndChildren(t *testing.T) {
	_, svc, ctx := setupAccountTest(t)

	assets, err := svc.Create(ctx, domain.CreateAccountRequest{Code: "1000", Name: "Current Assets", Type: domain.AccountTypeAsset})
	require.NoError(t, err)
	cash, err := svc.Create(ctx, domain.CreateAccountRequest{Code: "1010", Name: "Cash", Type: domain.AccountTypeAsset, ParentID: assets.ID.String()})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateAccountRequest{Code: "4000", Name: "Sales", Type: domain.AccountTypeRevenue})
	require.NoError(t, err)

	items, err := svc.List(ctx, domain.ListAccountRequest{Type: "asset"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	roots, err := svc.List(ctx, domain.ListAccountRequest{RootOnly: true})
	require.NoError(t, err)
	assert.Len(t, roots, 2)

	children, err := svc.Children(ctx, assets.ID.String())
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, cash.ID, children[0].ID)

	_, err = svc.Deactivate(ctx, cash.ID.String())
	require.NoError(t, err)
	active := true
	items, err = svc.List(ctx, domain.ListAccountRequest{IsActive: &active})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = svc.List(ctx, domain.ListAccountRequest{Type: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidAccountType)
}

func TestUpdateRejectsTypeChange(t *testing.T) {
	_, svc, ctx := setupAccountTest(t)

	account, err := svc.Create(ctx, domain.CreateAccountRequest{Name: "Cash", Type: domain.AccountTypeAsset})
	require.NoError(t, err)

	liability := domain.AccountTypeLiability
	_, err = svc.Update(ctx, domain.UpdateAccountRequest{ID: account.ID.String(), Type: &liability})
	assert.ErrorIs(t, err, domain.ErrAccountTypeImmutable)

	same := domain.AccountTypeAsset
	name := "Petty Cash"
	updated, err := svc.Update(ctx, domain.UpdateAccountRequest{ID: account.ID.String(), Type: &same, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Petty Cash", updated.Name)
	assert.Equal(t, domain.AccountTypeAsset, updated.Type)
}

func TestUpdateRejectsParentCycle(t *testing.T) {
	_, svc, ctx := setupAccountTest(t)

	root, err := svc.Create(ctx, domain.CreateAccountRequest{Code: "a", Name: "A", Type: domain.AccountTypeAsset})
	require.NoError(t, err)
	mid, err := svc.Create(ctx, domain.CreateAccountRequest{Code: "b", Name: "B", Type: domain.AccountTypeAsset, ParentID: root.ID.String()})
	require.NoError(t, err)
	leaf, err := svc.Create(ctx, domain.CreateAccountRequest{Code: "c", Name: "C", Type: domain.AccountTypeAsset, ParentID: mid.ID.String()})
	require.NoError(t, err)

	leafRef := leaf.ID.String()
	_, err = svc.Update(ctx, domain.UpdateAccountRequest{ID: root.ID.String(), ParentID: &leafRef})
	assert.ErrorIs(t, err, domain.ErrAccountCycle)

	selfRef := root.ID.String()
	_, err = svc.Update(ctx, domain.UpdateAccountRequest{ID: root.ID.String(), ParentID: &selfRef})
	assert.ErrorIs(t, err, domain.ErrAccountCycle)

	detach := ""
	updated, err := svc.Update(ctx, domain.UpdateAccountRequest{ID: leaf.ID.String(), ParentID: &detach})
	require.NoError(t, err)
	assert.Nil(t, updated.ParentID)
}

func TestDeactivateAndActivate(t *testing.T) {
	_, svc, ctx := setupAccountTest(t)
	auditSvc := &auditSvcMock{}
	auditSvc.On("AuditLogTx", "account.created", "account").Return(nil).Once()
	auditSvc.On("AuditLogTx", "account.deactivated", "account").Return(nil).Once()
	auditSvc.On("AuditLogTx", "account.activated", "account").Return(nil).Once()
	svc.auditSvc = auditSvc

	account, err := svc.Create(ctx, domain.CreateAccountRequest{Name: "Cash", Type: domain.AccountTypeAsset})
	require.NoError(t, err)

	deactivated, err := svc.Deactivate(ctx, account.ID.String())
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	// repeated deactivation is a no-op and writes no audit row
	_, err = svc.Deactivate(ctx, account.ID.String())
	require.NoError(t, err)

	activated, err := svc.Activate(ctx, account.ID.String())
	require.NoError(t, err)
	assert.True(t, activated.IsActive)

	auditSvc.AssertExpectations(t)
}

func TestAuditFailureRollsBackCreate(t *testing.T) {
	_, svc, ctx := setupAccountTest(t)
	auditSvc := &auditSvcMock{}
	auditSvc.On("AuditLogTx", "account.created", "account").Return(assert.AnError)
	svc.auditSvc = auditSvc

	_, err := svc.Create(ctx, domain.CreateAccountRequest{Code: "1000", Name: "Cash", Type: domain.AccountTypeAsset})
	require.ErrorIs(t, err, assert.AnError)

	_, err = svc.GetByCode(ctx, "1000")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
