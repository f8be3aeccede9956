package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/bookkeeping/internal/account/domain"
	"github.com/smallbiznis/bookkeeping/internal/actorcontext"
	auditdomain "github.com/smallbiznis/bookkeeping/internal/audit/domain"
	"github.com/smallbiznis/bookkeeping/internal/clock"
	"github.com/smallbiznis/bookkeeping/internal/config"
	ledgerdomain "github.com/smallbiznis/bookkeeping/internal/ledger/domain"
	"github.com/smallbiznis/bookkeeping/internal/ledger/lock"
	"github.com/smallbiznis/bookkeeping/internal/ledger/posting"
	obsmetrics "github.com/smallbiznis/bookkeeping/internal/observability/metrics"
	"github.com/smallbiznis/bookkeeping/pkg/db"
	"github.com/smallbiznis/bookkeeping/pkg/rls"
	"github.com/smallbiznis/bookkeeping/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
	defaultListLimit    = 50
	maxListLimit        = 500
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        ledgerdomain.Repository
	AccountRepo accountdomain.Repository
	Engine      *posting.Engine
	LedgerCfg   *config.LedgerConfigHolder
	AuditSvc    auditdomain.Service `optional:"true"`
	Locker      *lock.Locker        `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        ledgerdomain.Repository
	accountRepo accountdomain.Repository
	engine      *posting.Engine
	ledgerCfg   *config.LedgerConfigHolder
	auditSvc    auditdomain.Service
	locker      *lock.Locker
	obsMetrics  *obsmetrics.Metrics
}

func New(p Params) ledgerdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		engine:      p.Engine,
		ledgerCfg:   p.LedgerCfg,
		auditSvc:    p.AuditSvc,
		locker:      p.Locker,
		obsMetrics:  p.ObsMetrics,
	}
}

// CreateDraft stores a new draft. Lines must be well formed and reference existing
// accounts, but the entry does not need to balance until it is posted. A request carrying
// a source module and id returns the existing entry for that document instead of creating
// a second one.
func (s *Service) CreateDraft(ctx context.Context, req ledgerdomain.CreateEntryRequest) (ledgerdomain.JournalEntry, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	actor := actorcontext.ActorOrSystem(ctx)

	entryType := req.Type
	if strings.TrimSpace(string(entryType)) == "" {
		entryType = ledgerdomain.EntryTypeStandard
	}
	entryType = ledgerdomain.EntryType(strings.ToLower(strings.TrimSpace(string(entryType))))
	if !entryType.Valid() {
		return ledgerdomain.JournalEntry{}, ledgerdomain.ErrInvalidEntryType
	}
	if req.Date.IsZero() {
		return ledgerdomain.JournalEntry{}, ledgerdomain.ErrInvalidDate
	}

	sourceModule := strings.TrimSpace(req.SourceModule)
	sourceID := strings.TrimSpace(req.SourceID)
	if (sourceModule == "") != (sourceID == "") {
		return ledgerdomain.JournalEntry{}, ledgerdomain.ErrInvalidSource
	}

	now := s.clock.Now().UTC()
	entry := ledgerdomain.JournalEntry{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Date:      req.Date.UTC(),
		Type:      entryType,
		Status:    ledgerdomain.EntryStatusDraft,
		Memo:      strings.TrimSpace(req.Memo),
		CreatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.ReversalDate != nil {
		reversal := req.ReversalDate.UTC()
		if reversal.Before(entry.Date) {
			return ledgerdomain.JournalEntry{}, ledgerdomain.ErrInvalidDate
		}
		entry.ReversalDate = &reversal
	}
	if sourceModule != "" {
		entry.SourceModule = &sourceModule
		entry.SourceID = &sourceID
	}

	lines, err := s.buildLines(tenantID, entry.ID, req.Lines, now)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	entry.Lines = lines
	entry.TotalDebit, entry.TotalCredit = entry.ComputeTotals()

	var created ledgerdomain.JournalEntry
	err = s.retry(ctx, "create", func() error {
		return s.transaction(ctx, tenantID, func(tx *gorm.DB) error {
			if sourceModule != "" {
				existing, err := s.repo.FindBySource(ctx, tx, tenantID, sourceModule, sourceID)
				if err != nil {
					return err
				}
				if existing != nil {
					created = *existing
					return nil
				}
			}

			if err := s.ensureAccounts(ctx, tx, tenantID, entry.Lines); err != nil {
				return err
			}

			seq, err := s.repo.NextEntryNumber(ctx, tx, tenantID)
			if err != nil {
				return err
			}
			draft := entry
			draft.EntryNumber = ledgerdomain.FormatEntryNumber(seq)

			if err := s.repo.InsertEntry(ctx, tx, &draft); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return ledgerdomain.ErrTransactionConflict
				}
				return err
			}
			if err := s.repo.InsertLines(ctx, tx, draft.Lines); err != nil {
				return err
			}

			created = draft
			return s.audit(ctx, tx, "ledger.entry_created", draft.ID, map[string]any{
				"entry_number": draft.EntryNumber,
				"type":         string(draft.Type),
				"lines":        len(draft.Lines),
			})
		})
	})
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	return created, nil
}

// UpdateDraft replaces the date, memo or lines of a draft.
func (s *Service) UpdateDraft(ctx context.Context, req ledgerdomain.UpdateEntryRequest) (ledgerdomain.JournalEntry, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	entryID, err := parseID(req.ID)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	if req.Date != nil && req.Date.IsZero() {
		return ledgerdomain.JournalEntry{}, ledgerdomain.ErrInvalidDate
	}

	var updated ledgerdomain.JournalEntry
	err = s.transaction(ctx, tenantID, func(tx *gorm.DB) error {
		entry, err := s.load(ctx, tx, tenantID, entryID)
		if err != nil {
			return err
		}
		if entry.Status != ledgerdomain.EntryStatusDraft {
			return fmt.Errorf("%w: cannot edit a %s entry", ledgerdomain.ErrInvalidStatusTransition, entry.Status)
		}

		now := s.clock.Now().UTC()
		if req.Date != nil {
			entry.Date = req.Date.UTC()
		}
		if req.Memo != nil {
			entry.Memo = strings.TrimSpace(*req.Memo)
		}
		if req.Lines != nil {
			lines, err := s.buildLines(tenantID, entry.ID, req.Lines, now)
			if err != nil {
				return err
			}
			if err := s.ensureAccounts(ctx, tx, tenantID, lines); err != nil {
				return err
			}
			if err := s.repo.DeleteLines(ctx, tx, tenantID, entry.ID); err != nil {
				return err
			}
			if err := s.repo.InsertLines(ctx, tx, lines); err != nil {
				return err
			}
			entry.Lines = lines
		}
		entry.TotalDebit, entry.TotalCredit = entry.ComputeTotals()
		entry.UpdatedAt = now

		changed := req.Date != nil || req.Memo != nil || req.Lines != nil
		var revokedBy string
		if changed && entry.ApprovedBy != nil {
			revokedBy = *entry.ApprovedBy
		}
		revoked := changed && entry.RevokeApproval()

		if err := s.repo.UpdateEntry(ctx, tx, &entry, ledgerdomain.EntryStatusDraft); err != nil {
			return err
		}
		updated = entry

		if err := s.audit(ctx, tx, "ledger.entry_updated", entry.ID, map[string]any{
			"entry_number":     entry.EntryNumber,
			"lines":            len(entry.Lines),
			"approval_revoked": revoked,
		}); err != nil {
			return err
		}
		if !revoked {
			return nil
		}
		return s.audit(ctx, tx, "ledger.entry_approval_revoked", entry.ID, map[string]any{
			"entry_number":     entry.EntryNumber,
			"previous_approver": revokedBy,
		})
	})
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	return updated, nil
}

// DeleteDraft removes a draft. Posted and voided entries are permanent.
func (s *Service) DeleteDraft(ctx context.Context, id string) error {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return err
	}
	entryID, err := parseID(id)
	if err != nil {
		return err
	}

	return s.transaction(ctx, tenantID, func(tx *gorm.DB) error {
		entry, err := s.load(ctx, tx, tenantID, entryID)
		if err != nil {
			return err
		}
		if entry.Status != ledgerdomain.EntryStatusDraft {
			return fmt.Errorf("%w: cannot delete a %s entry", ledgerdomain.ErrInvalidStatusTransition, entry.Status)
		}

		deleted, err := s.repo.DeleteDraft(ctx, tx, tenantID, entryID)
		if err != nil {
			return err
		}
		if !deleted {
			return ledgerdomain.ErrTransactionConflict
		}

		return s.audit(ctx, tx, "ledger.entry_deleted", entryID, map[string]any{
			"entry_number": entry.EntryNumber,
		})
	})
}

func (s *Service) Get(ctx context.Context, id string) (ledgerdomain.JournalEntry, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	entryID, err := parseID(id)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	return s.load(ctx, s.db, tenantID, entryID)
}

func (s *Service) List(ctx context.Context, req ledgerdomain.ListEntryRequest) ([]ledgerdomain.JournalEntry, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}

	filter := ledgerdomain.ListEntryFilter{
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
		Limit:    clampLimit(req.Limit, defaultListLimit, maxListLimit),
	}
	if value := strings.TrimSpace(req.Status); value != "" {
		status := ledgerdomain.EntryStatus(strings.ToLower(value))
		switch status {
		case ledgerdomain.EntryStatusDraft, ledgerdomain.EntryStatusPosted, ledgerdomain.EntryStatusVoided:
		default:
			return nil, ledgerdomain.ErrInvalidStatus
		}
		filter.Status = &status
	}
	if value := strings.TrimSpace(req.Type); value != "" {
		entryType := ledgerdomain.EntryType(strings.ToLower(value))
		if !entryType.Valid() {
			return nil, ledgerdomain.ErrInvalidEntryType
		}
		filter.Type = &entryType
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return nil, ledgerdomain.ErrInvalidDate
	}

	return s.repo.ListEntries(ctx, s.db, tenantID, filter)
}

// History lists balance movements for an account or an entry in the order they were written.
func (s *Service) History(ctx context.Context, req ledgerdomain.HistoryRequest) ([]ledgerdomain.AccountBalanceHistory, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}

	filter := ledgerdomain.ListHistoryFilter{
		Limit: clampLimit(req.Limit, defaultHistoryLimit, maxHistoryLimit),
	}
	if value := strings.TrimSpace(req.AccountID); value != "" {
		accountID, err := parseID(value)
		if err != nil {
			return nil, err
		}
		filter.AccountID = &accountID
	}
	if value := strings.TrimSpace(req.JournalEntryID); value != "" {
		entryID, err := parseID(value)
		if err != nil {
			return nil, err
		}
		filter.JournalEntryID = &entryID
	}

	return s.repo.ListHistory(ctx, s.db, tenantID, filter)
}

func (s *Service) buildLines(tenantID, entryID snowflake.ID, reqs []ledgerdomain.LineRequest, now time.Time) ([]ledgerdomain.JournalEntryLine, error) {
	lines := make([]ledgerdomain.JournalEntryLine, 0, len(reqs))
	for i, req := range reqs {
		number := i + 1
		accountID, err := parseID(req.AccountID)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d has an invalid account id", ledgerdomain.ErrInvalidLine, number)
		}

		line := ledgerdomain.JournalEntryLine{
			ID:             s.genID.Generate(),
			TenantID:       tenantID,
			JournalEntryID: entryID,
			LineNumber:     number,
			AccountID:      accountID,
			Debit:          req.Debit,
			Credit:         req.Credit,
			CreatedAt:      now,
		}
		if memo := strings.TrimSpace(req.Memo); memo != "" {
			line.Memo = &memo
		}
		if ref := strings.TrimSpace(req.ContactID); ref != "" {
			contactID, err := parseID(ref)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d has an invalid contact id", ledgerdomain.ErrInvalidLine, number)
			}
			line.ContactID = &contactID
		}
		if err := line.Validate(); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *Service) ensureAccounts(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, lines []ledgerdomain.JournalEntryLine) error {
	seen := make(map[snowflake.ID]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}

		account, err := s.accountRepo.FindByID(ctx, tx, tenantID, line.AccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return fmt.Errorf("%w: line %d", accountdomain.ErrAccountNotFound, line.LineNumber)
		}
	}
	return nil
}

// transaction runs fn in one database transaction scoped to the tenant.
func (s *Service) transaction(ctx context.Context, tenantID snowflake.ID, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if db.IsPostgres(tx) {
			if err := rls.WithTenant(tx, tenantID); err != nil {
				return err
			}
		}
		return fn(tx)
	})
}

func (s *Service) load(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (ledgerdomain.JournalEntry, error) {
	entry, err := s.repo.FindEntryByID(ctx, tx, tenantID, id)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	if entry == nil {
		return ledgerdomain.JournalEntry{}, ledgerdomain.ErrEntryNotFound
	}
	return *entry, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, id snowflake.ID, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	targetID := id.String()
	return s.auditSvc.AuditLogTx(ctx, tx, action, "journal_entry", &targetID, metadata)
}

func (s *Service) tenant(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok {
		return 0, ledgerdomain.ErrInvalidTenant
	}
	return tenantID, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, ledgerdomain.ErrInvalidID
	}
	return id, nil
}
