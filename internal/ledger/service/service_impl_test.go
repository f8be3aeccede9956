package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/bookkeeping/internal/account/domain"
	accountrepo "github.com/smallbiznis/bookkeeping/internal/account/repository"
	"github.com/smallbiznis/bookkeeping/internal/actorcontext"
	auditdomain "github.com/smallbiznis/bookkeeping/internal/audit/domain"
	"github.com/smallbiznis/bookkeeping/internal/clock"
	"github.com/smallbiznis/bookkeeping/internal/config"
	ledgerdomain "github.com/smallbiznis/bookkeeping/internal/ledger/domain"
	"github.com/smallbiznis/bookkeeping/internal/ledger/lock"
	"github.com/smallbiznis/bookkeeping/internal/ledger/posting"
	ledgerrepo "github.com/smallbiznis/bookkeeping/internal/ledger/repository"
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

// conflictingRepo fails the first failures status writes with a conflict.
type conflictingRepo struct {
	ledgerdomain.Repository

	mu       sync.Mutex
	failures int
	calls    int
}

func (r *conflictingRepo) UpdateEntry(ctx context.Context, db *gorm.DB, entry *ledgerdomain.JournalEntry, expected ledgerdomain.EntryStatus) error {
	r.mu.Lock()
	r.calls++
	fail := r.calls <= r.failures
	r.mu.Unlock()
	if fail {
		return ledgerdomain.ErrTransactionConflict
	}
	return r.Repository.UpdateEntry(ctx, db, entry, expected)
}

type ledgerFixture struct {
	db    *gorm.DB
	svc   *Service
	ctx   context.Context
	node  *snowflake.Node
	clock *clock.FakeClock
}

func testLedgerConfig() config.LedgerConfig {
	cfg := config.DefaultLedgerConfig()
	cfg.Posting.MaxAttempts = 3
	cfg.Posting.InitialInterval = time.Millisecond
	cfg.Posting.MaxInterval = 2 * time.Millisecond
	return cfg
}

func setupLedgerTest(t *testing.T, cfg config.LedgerConfig) *ledgerFixture {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&ledgerdomain.JournalEntry{},
		&ledgerdomain.JournalEntryLine{},
		&ledgerdomain.AccountBalanceHistory{},
		&ledgerdomain.JournalEntrySequence{},
	))

	node, _ := snowflake.NewNode(1)
	fakeClock := clock.NewFakeClock(time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC))
	repo := ledgerrepo.Provide()
	accounts := accountrepo.Provide()

	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fakeClock,
		Repo:        repo,
		AccountRepo: accounts,
		Engine: posting.New(posting.Params{
			Log:         zap.NewNop(),
			GenID:       node,
			Clock:       fakeClock,
			AccountRepo: accounts,
			LedgerRepo:  repo,
		}),
		LedgerCfg: config.NewStaticLedgerConfigHolder(cfg),
	}).(*Service)

	ctx := tenantctx.WithTenantID(context.Background(), node.Generate())
	ctx = actorcontext.WithActorID(ctx, "clerk")
	return &ledgerFixture{db: db, svc: svc, ctx: ctx, node: node, clock: fakeClock}
}

func (f *ledgerFixture) account(t *testing.T, code string, accountType accountdomain.AccountType, opening string) *accountdomain.Account {
	t.Helper()
	tenantID, _ := tenantctx.TenantID(f.ctx)
	now := f.clock.Now()
	account := &accountdomain.Account{
		ID:             f.node.Generate(),
		TenantID:       tenantID,
		Code:           code,
		Name:           code,
		Type:           accountType,
		CurrentBalance: decimal.RequireFromString(opening),
		OpeningBalance: decimal.RequireFromString(opening),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, accountrepo.Provide().Insert(context.Background(), f.db, account))
	return account
}

func (f *ledgerFixture) balance(t *testing.T, account *accountdomain.Account) decimal.Decimal {
	t.Helper()
	stored, err := accountrepo.Provide().FindByID(context.Background(), f.db, account.TenantID, account.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	return stored.CurrentBalance
}

func (f *ledgerFixture) draft(t *testing.T, lines ...ledgerdomain.LineRequest) ledgerdomain.JournalEntry {
	t.Helper()
	entry, err := f.svc.CreateDraft(f.ctx, ledgerdomain.CreateEntryRequest{
		Date:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Memo:  "test",
		Lines: lines,
	})
	require.NoError(t, err)
	return entry
}

func dr(account *accountdomain.Account, amount string) ledgerdomain.LineRequest {
	return ledgerdomain.LineRequest{AccountID: account.ID.String(), Debit: decimal.RequireFromString(amount)}
}

func cr(account *accountdomain.Account, amount string) ledgerdomain.LineRequest {
	return ledgerdomain.LineRequest{AccountID: account.ID.String(), Credit: decimal.RequireFromString(amount)}
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func TestCreateDraftAssignsNumbersAndTotals(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")

	first := f.draft(t, dr(cash, "100"), cr(sales, "100"))
	second := f.draft(t, dr(cash, "5"), cr(sales, "4"))

	assert.Equal(t, "JE-000001", first.EntryNumber)
	assert.Equal(t, "JE-000002", second.EntryNumber)
	assert.Equal(t, ledgerdomain.EntryStatusDraft, first.Status)
	assert.Equal(t, ledgerdomain.EntryTypeStandard, first.Type)
	assert.Equal(t, "clerk", first.CreatedBy)
	assertDecimal(t, "5", second.TotalDebit)
	assertDecimal(t, "4", second.TotalCredit)

	stored, err := f.svc.Get(f.ctx, first.ID.String())
	require.NoError(t, err)
	require.Len(t, stored.Lines, 2)
	assert.Equal(t, 1, stored.Lines[0].LineNumber)
	assert.Equal(t, cash.ID, stored.Lines[0].AccountID)
	assertDecimal(t, "100", stored.Lines[0].Debit)
}

func TestCreateDraftValidation(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.svc.CreateDraft(f.ctx, ledgerdomain.CreateEntryRequest{Lines: []ledgerdomain.LineRequest{dr(cash, "1")}})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidDate)

	_, err = f.svc.CreateDraft(f.ctx, ledgerdomain.CreateEntryRequest{Date: date, Type: "bogus"})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidEntryType)

	_, err = f.svc.CreateDraft(f.ctx, ledgerdomain.CreateEntryRequest{Date: date, Lines: []ledgerdomain.LineRequest{
		dr(cash, "1"),
		{AccountID: cash.ID.String(), Debit: decimal.RequireFromString("1"), Credit: decimal.RequireFromString("1")},
	}})
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidLine)
	assert.Contains(t, err.Error(), "line 2")

	_, err = f.svc.CreateDraft(f.ctx, ledgerdomain.CreateEntryRequest{Date: date, Lines: []ledgerdomain.LineRequest{
		dr(cash, "1"),
		{AccountID: f.node.Generate().String(), Credit: decimal.RequireFromString("1")},
	}})
	assert.ErrorIs(t, err, accountdomain.ErrAccountNotFound)

	_, err = f.svc.CreateDraft(f.ctx, ledgerdomain.CreateEntryRequest{Date: date, SourceModule: "invoices"})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidSource)

	_, err = f.svc.CreateDraft(context.Background(), ledgerdomain.CreateEntryRequest{Date: date})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidTenant)
}

func TestCreateDraftIsIdempotentPerSource(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")

	req := ledgerdomain.CreateEntryRequest{
		Date:         time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		SourceModule: "invoices",
		SourceID:     "INV-7",
		Lines:        []ledgerdomain.LineRequest{dr(cash, "10"), cr(sales, "10")},
	}
	first, err := f.svc.CreateDraft(f.ctx, req)
	require.NoError(t, err)
	second, err := f.svc.CreateDraft(f.ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	entries, err := f.svc.List(f.ctx, ledgerdomain.ListEntryRequest{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPostAppliesBalancesAndHistory(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "1000")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")
	vat := f.account(t, "vat", accountdomain.AccountTypeLiability, "0")

	draft := f.draft(t, dr(cash, "110"), cr(sales, "100"), cr(vat, "10"))

	posted, err := f.svc.Post(f.ctx, draft.ID.String())
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.EntryStatusPosted, posted.Status)
	require.NotNil(t, posted.PostedBy)
	assert.Equal(t, "clerk", *posted.PostedBy)

	assertDecimal(t, "1110", f.balance(t, cash))
	assertDecimal(t, "100", f.balance(t, sales))
	assertDecimal(t, "10", f.balance(t, vat))

	history, err := f.svc.History(f.ctx, ledgerdomain.HistoryRequest{JournalEntryID: draft.ID.String()})
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, cash.ID, history[0].AccountID)
	assertDecimal(t, "1000", history[0].PreviousBalance)
	assertDecimal(t, "1110", history[0].NewBalance)
	assertDecimal(t, "110", history[0].ChangeAmount)
	assert.Equal(t, accountdomain.ChangeTypeDebit, history[0].ChangeType)

	_, err = f.svc.Post(f.ctx, draft.ID.String())
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidStatusTransition)
	assertDecimal(t, "1110", f.balance(t, cash))
}

func TestHistoryReconstructsBalances(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "50")
	rent := f.account(t, "rent", accountdomain.AccountTypeExpense, "0")
	loan := f.account(t, "loan", accountdomain.AccountTypeLiability, "0")

	for _, lines := range [][]ledgerdomain.LineRequest{
		{dr(cash, "500"), cr(loan, "500")},
		{dr(rent, "120.25"), cr(cash, "120.25")},
		{dr(loan, "75.5"), cr(cash, "75.5")},
	} {
		draft := f.draft(t, lines...)
		_, err := f.svc.Post(f.ctx, draft.ID.String())
		require.NoError(t, err)
	}

	for _, account := range []*accountdomain.Account{cash, rent, loan} {
		history, err := f.svc.History(f.ctx, ledgerdomain.HistoryRequest{AccountID: account.ID.String()})
		require.NoError(t, err)

		running := account.OpeningBalance
		for _, row := range history {
			assert.True(t, running.Equal(row.PreviousBalance))
			running = row.NewBalance
		}
		assert.Truef(t, running.Equal(f.balance(t, account)), "account %s", account.Code)
	}
	assertDecimal(t, "354.25", f.balance(t, cash))
	assertDecimal(t, "424.5", f.balance(t, loan))
}

func TestPostFailureLeavesNoTrace(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "10")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")

	unbalanced := f.draft(t, dr(cash, "10"), cr(sales, "9"))
	_, err := f.svc.Post(f.ctx, unbalanced.ID.String())
	require.ErrorIs(t, err, ledgerdomain.ErrUnbalanced)
	assert.NotErrorIs(t, err, ledgerdomain.ErrRetriesExhausted)

	single := f.draft(t, dr(cash, "10"))
	_, err = f.svc.Post(f.ctx, single.ID.String())
	require.ErrorIs(t, err, ledgerdomain.ErrInsufficientLines)

	balanced := f.draft(t, dr(cash, "10"), cr(sales, "10"))
	sales.IsActive = false
	require.NoError(t, accountrepo.Provide().Update(context.Background(), f.db, sales))
	_, err = f.svc.Post(f.ctx, balanced.ID.String())
	require.ErrorIs(t, err, accountdomain.ErrAccountInactive)

	stored, err := f.svc.Get(f.ctx, balanced.ID.String())
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.EntryStatusDraft, stored.Status)
	assert.Nil(t, stored.PostedAt)
	assertDecimal(t, "10", f.balance(t, cash))

	history, err := f.svc.History(f.ctx, ledgerdomain.HistoryRequest{})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPostRollsBackWhenAuditFails(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	auditSvc := &auditSvcMock{}
	auditSvc.On("AuditLogTx", "ledger.entry_created", "journal_entry").Return(nil).Once()
	auditSvc.On("AuditLogTx", "ledger.entry_posted", "journal_entry").Return(errors.New("audit down")).Once()
	f.svc.auditSvc = auditSvc

	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")
	draft := f.draft(t, dr(cash, "10"), cr(sales, "10"))

	_, err := f.svc.Post(f.ctx, draft.ID.String())
	require.Error(t, err)
	auditSvc.AssertExpectations(t)

	stored, err := f.svc.Get(f.ctx, draft.ID.String())
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.EntryStatusDraft, stored.Status)
	assertDecimal(t, "0", f.balance(t, cash))
}

func TestPostRequiresApprovalWhenConfigured(t *testing.T) {
	cfg := testLedgerConfig()
	cfg.RequireApproval = true
	f := setupLedgerTest(t, cfg)
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")
	draft := f.draft(t, dr(cash, "10"), cr(sales, "10"))

	_, err := f.svc.Post(f.ctx, draft.ID.String())
	require.ErrorIs(t, err, ledgerdomain.ErrApprovalRequired)

	approverCtx := actorcontext.WithActorID(f.ctx, "controller")
	approved, err := f.svc.Approve(approverCtx, draft.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "controller", *approved.ApprovedBy)

	posted, err := f.svc.Post(f.ctx, draft.ID.String())
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.EntryStatusPosted, posted.Status)
	assertDecimal(t, "10", f.balance(t, cash))
}

func TestEditingApprovedDraftRevokesApproval(t *testing.T) {
	cfg := testLedgerConfig()
	cfg.RequireApproval = true
	f := setupLedgerTest(t, cfg)
	auditSvc := &auditSvcMock{}
	auditSvc.On("AuditLogTx", mock.Anything, "journal_entry").Return(nil)
	f.svc.auditSvc = auditSvc

	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")
	draft := f.draft(t, dr(cash, "10"), cr(sales, "10"))

	_, err := f.svc.Approve(actorcontext.WithActorID(f.ctx, "controller"), draft.ID.String())
	require.NoError(t, err)

	edited, err := f.svc.UpdateDraft(f.ctx, ledgerdomain.UpdateEntryRequest{
		ID:    draft.ID.String(),
		Lines: []ledgerdomain.LineRequest{dr(cash, "1000000"), cr(sales, "1000000")},
	})
	require.NoError(t, err)
	assert.Nil(t, edited.ApprovedBy)
	assert.Nil(t, edited.ApprovedAt)
	auditSvc.AssertCalled(t, "AuditLogTx", "ledger.entry_approval_revoked", "journal_entry")

	_, err = f.svc.Post(f.ctx, draft.ID.String())
	require.ErrorIs(t, err, ledgerdomain.ErrApprovalRequired)
	assertDecimal(t, "0", f.balance(t, cash))

	stored, err := f.svc.Get(f.ctx, draft.ID.String())
	require.NoError(t, err)
	assert.Nil(t, stored.ApprovedAt)

	// A memo-only edit also drops a fresh approval.
	_, err = f.svc.Approve(actorcontext.WithActorID(f.ctx, "controller"), draft.ID.String())
	require.NoError(t, err)
	memo := "adjusted"
	_, err = f.svc.UpdateDraft(f.ctx, ledgerdomain.UpdateEntryRequest{ID: draft.ID.String(), Memo: &memo})
	require.NoError(t, err)
	_, err = f.svc.Post(f.ctx, draft.ID.String())
	require.ErrorIs(t, err, ledgerdomain.ErrApprovalRequired)

	_, err = f.svc.Approve(actorcontext.WithActorID(f.ctx, "controller"), draft.ID.String())
	require.NoError(t, err)
	posted, err := f.svc.Post(f.ctx, draft.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "controller", *posted.ApprovedBy)
	assertDecimal(t, "1000000", f.balance(t, cash))
}

func TestDraftRejectsAmountsBeyondStoredScale(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for _, lines := range [][]ledgerdomain.LineRequest{
		{dr(cash, "0.00003"), cr(sales, "0.00003")},
		{dr(cash, "1.00045"), cr(sales, "1.0000")},
	} {
		_, err := f.svc.CreateDraft(f.ctx, ledgerdomain.CreateEntryRequest{Date: date, Lines: lines})
		require.ErrorIs(t, err, ledgerdomain.ErrInvalidLine)
		assert.Contains(t, err.Error(), "decimal places")
	}

	draft := f.draft(t, dr(cash, "1.00000"), cr(sales, "1"))
	_, err := f.svc.UpdateDraft(f.ctx, ledgerdomain.UpdateEntryRequest{
		ID:    draft.ID.String(),
		Lines: []ledgerdomain.LineRequest{dr(cash, "2.12345"), cr(sales, "2.12345")},
	})
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidLine)

	_, err = f.svc.Post(f.ctx, draft.ID.String())
	require.NoError(t, err)
	assertDecimal(t, "1", f.balance(t, cash))
}

func TestVoidChangesOnlyStatus(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")
	draft := f.draft(t, dr(cash, "10"), cr(sales, "10"))

	_, err := f.svc.Void(f.ctx, ledgerdomain.VoidRequest{ID: draft.ID.String(), Reason: "dup"})
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidStatusTransition)

	_, err = f.svc.Post(f.ctx, draft.ID.String())
	require.NoError(t, err)
	before, err := f.svc.History(f.ctx, ledgerdomain.HistoryRequest{})
	require.NoError(t, err)

	voided, err := f.svc.Void(f.ctx, ledgerdomain.VoidRequest{ID: draft.ID.String(), Reason: " dup "})
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.EntryStatusVoided, voided.Status)
	assert.Equal(t, "dup", *voided.VoidReason)
	assert.Equal(t, "clerk", *voided.VoidedBy)

	assertDecimal(t, "10", f.balance(t, cash))
	after, err := f.svc.History(f.ctx, ledgerdomain.HistoryRequest{})
	require.NoError(t, err)
	assert.Len(t, after, len(before))

	_, err = f.svc.Void(f.ctx, ledgerdomain.VoidRequest{ID: draft.ID.String()})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidStatusTransition)
}

func TestReverseNetsToZero(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "200")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")
	draft := f.draft(t, dr(cash, "75"), cr(sales, "75"))

	_, err := f.svc.Reverse(f.ctx, ledgerdomain.ReverseRequest{ID: draft.ID.String()})
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidStatusTransition)

	_, err = f.svc.Post(f.ctx, draft.ID.String())
	require.NoError(t, err)

	reversal, err := f.svc.Reverse(f.ctx, ledgerdomain.ReverseRequest{ID: draft.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.EntryTypeReversing, reversal.Type)
	assert.Equal(t, ledgerdomain.EntryStatusPosted, reversal.Status)
	require.NotNil(t, reversal.ReversedEntryID)
	assert.Equal(t, draft.ID, *reversal.ReversedEntryID)
	assert.Equal(t, "Reversal of "+draft.EntryNumber, reversal.Memo)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), reversal.Date)

	assertDecimal(t, "200", f.balance(t, cash))
	assertDecimal(t, "0", f.balance(t, sales))

	stored, err := f.svc.Get(f.ctx, reversal.ID.String())
	require.NoError(t, err)
	require.Len(t, stored.Lines, 2)
	assertDecimal(t, "75", stored.Lines[0].Credit)

	_, err = f.svc.Reverse(f.ctx, ledgerdomain.ReverseRequest{ID: draft.ID.String()})
	assert.ErrorIs(t, err, ledgerdomain.ErrAlreadyReversed)

	_, err = f.svc.Reverse(f.ctx, ledgerdomain.ReverseRequest{ID: reversal.ID.String()})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidStatusTransition)
}

func TestReverseUsesScheduledReversalDate(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	accrued := f.account(t, "accrued", accountdomain.AccountTypeLiability, "0")

	reversalDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	draft, err := f.svc.CreateDraft(f.ctx, ledgerdomain.CreateEntryRequest{
		Date:         time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
		Type:         ledgerdomain.EntryTypeAdjusting,
		ReversalDate: &reversalDate,
		Lines:        []ledgerdomain.LineRequest{dr(cash, "30"), cr(accrued, "30")},
	})
	require.NoError(t, err)
	_, err = f.svc.Post(f.ctx, draft.ID.String())
	require.NoError(t, err)

	reversal, err := f.svc.Reverse(f.ctx, ledgerdomain.ReverseRequest{ID: draft.ID.String(), Memo: "auto"})
	require.NoError(t, err)
	assert.True(t, reversal.Date.Equal(reversalDate))
	assert.Equal(t, "auto", reversal.Memo)
}

func TestUpdateAndDeleteDraft(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")
	draft := f.draft(t, dr(cash, "10"), cr(sales, "9"))

	memo := "fixed"
	updated, err := f.svc.UpdateDraft(f.ctx, ledgerdomain.UpdateEntryRequest{
		ID:    draft.ID.String(),
		Memo:  &memo,
		Lines: []ledgerdomain.LineRequest{dr(cash, "10"), cr(sales, "10")},
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed", updated.Memo)
	assertDecimal(t, "10", updated.TotalCredit)

	stored, err := f.svc.Get(f.ctx, draft.ID.String())
	require.NoError(t, err)
	require.Len(t, stored.Lines, 2)
	assertDecimal(t, "10", stored.Lines[1].Credit)

	_, err = f.svc.Post(f.ctx, draft.ID.String())
	require.NoError(t, err)

	_, err = f.svc.UpdateDraft(f.ctx, ledgerdomain.UpdateEntryRequest{ID: draft.ID.String(), Memo: &memo})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidStatusTransition)
	assert.ErrorIs(t, f.svc.DeleteDraft(f.ctx, draft.ID.String()), ledgerdomain.ErrInvalidStatusTransition)

	other := f.draft(t, dr(cash, "1"), cr(sales, "1"))
	require.NoError(t, f.svc.DeleteDraft(f.ctx, other.ID.String()))
	_, err = f.svc.Get(f.ctx, other.ID.String())
	assert.ErrorIs(t, err, ledgerdomain.ErrEntryNotFound)
}

func TestListFilters(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")

	posted := f.draft(t, dr(cash, "1"), cr(sales, "1"))
	_, err := f.svc.Post(f.ctx, posted.ID.String())
	require.NoError(t, err)
	f.draft(t, dr(cash, "2"), cr(sales, "2"))

	drafts, err := f.svc.List(f.ctx, ledgerdomain.ListEntryRequest{Status: "draft"})
	require.NoError(t, err)
	assert.Len(t, drafts, 1)

	all, err := f.svc.List(f.ctx, ledgerdomain.ListEntryRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.List(f.ctx, ledgerdomain.ListEntryRequest{Status: "archived"})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidStatus)

	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	none, err := f.svc.List(f.ctx, ledgerdomain.ListEntryRequest{DateFrom: &from})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTenantIsolation(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")
	draft := f.draft(t, dr(cash, "1"), cr(sales, "1"))

	otherCtx := tenantctx.WithTenantID(context.Background(), f.node.Generate())
	_, err := f.svc.Get(otherCtx, draft.ID.String())
	assert.ErrorIs(t, err, ledgerdomain.ErrEntryNotFound)
	_, err = f.svc.Post(otherCtx, draft.ID.String())
	assert.ErrorIs(t, err, ledgerdomain.ErrEntryNotFound)
}

func TestPostRetriesConflicts(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")
	draft := f.draft(t, dr(cash, "10"), cr(sales, "10"))

	repo := &conflictingRepo{Repository: f.svc.repo, failures: 2}
	f.svc.repo = repo

	posted, err := f.svc.Post(f.ctx, draft.ID.String())
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.EntryStatusPosted, posted.Status)
	assert.Equal(t, 3, repo.calls)
	assertDecimal(t, "10", f.balance(t, cash))
}

func TestPostReportsExhaustedRetries(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")
	draft := f.draft(t, dr(cash, "10"), cr(sales, "10"))

	repo := &conflictingRepo{Repository: f.svc.repo, failures: 100}
	f.svc.repo = repo

	_, err := f.svc.Post(f.ctx, draft.ID.String())
	require.ErrorIs(t, err, ledgerdomain.ErrRetriesExhausted)
	assert.ErrorIs(t, err, ledgerdomain.ErrTransactionConflict)
	assert.Equal(t, 3, repo.calls)
	assertDecimal(t, "0", f.balance(t, cash))
}

func TestConcurrentPostsDoNotLoseUpdates(t *testing.T) {
	f := setupLedgerTest(t, testLedgerConfig())
	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")

	const posters = 8
	ids := make([]string, 0, posters)
	for i := 0; i < posters; i++ {
		draft := f.draft(t, dr(cash, "12.5"), cr(sales, "12.5"))
		ids = append(ids, draft.ID.String())
	}

	var wg sync.WaitGroup
	errs := make(chan error, posters)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.svc.Post(f.ctx, id); err != nil {
				errs <- fmt.Errorf("post %s: %w", id, err)
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	assertDecimal(t, "100", f.balance(t, cash))
	assertDecimal(t, "100", f.balance(t, sales))

	history, err := f.svc.History(f.ctx, ledgerdomain.HistoryRequest{AccountID: cash.ID.String()})
	require.NoError(t, err)
	assert.Len(t, history, posters)
}

func TestPostWithAccountLocks(t *testing.T) {
	cfg := testLedgerConfig()
	cfg.Lock.Enabled = true
	cfg.Lock.TTL = time.Second
	cfg.Lock.Wait = 100 * time.Millisecond
	f := setupLedgerTest(t, cfg)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.svc.locker = lock.NewLocker(client)

	cash := f.account(t, "cash", accountdomain.AccountTypeAsset, "0")
	sales := f.account(t, "sales", accountdomain.AccountTypeRevenue, "0")
	draft := f.draft(t, dr(cash, "10"), cr(sales, "10"))

	_, err := f.svc.Post(f.ctx, draft.ID.String())
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())

	blocked := f.draft(t, dr(cash, "5"), cr(sales, "5"))
	require.NoError(t, mr.Set(fmt.Sprintf("ledger:lock:%s:%s", cash.TenantID, sales.ID), "other"))

	_, err = f.svc.Post(f.ctx, blocked.ID.String())
	require.ErrorIs(t, err, ledgerdomain.ErrRetriesExhausted)
	assert.ErrorIs(t, err, lock.ErrLockNotAcquired)
	assertDecimal(t, "10", f.balance(t, cash))
}
