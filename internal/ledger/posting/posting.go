package posting

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/bookkeeping/internal/account/domain"
	"github.com/smallbiznis/bookkeeping/internal/clock"
	ledgerdomain "github.com/smallbiznis/bookkeeping/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	AccountRepo accountdomain.Repository
	LedgerRepo  ledgerdomain.Repository
}

// Engine applies the balance effects of an entry. It never opens a transaction; callers
// pass the one the entry's status change is written in.
type Engine struct {
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	accountRepo accountdomain.Repository
	ledgerRepo  ledgerdomain.Repository
}

func New(p Params) *Engine {
	return &Engine{
		log:         p.Log.Named("ledger.posting"),
		genID:       p.GenID,
		clock:       p.Clock,
		accountRepo: p.AccountRepo,
		ledgerRepo:  p.LedgerRepo,
	}
}

// AccountIDs returns the distinct accounts touched by entry in ascending order.
func AccountIDs(entry *ledgerdomain.JournalEntry) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(entry.Lines))
	ids := make([]snowflake.ID, 0, len(entry.Lines))
	for _, line := range entry.Lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Apply moves every account touched by entry and writes one history row per line.
// Accounts are locked in ascending id order before any balance is written.
func (e *Engine) Apply(ctx context.Context, tx *gorm.DB, entry *ledgerdomain.JournalEntry, actor string) ([]ledgerdomain.AccountBalanceHistory, error) {
	ids := AccountIDs(entry)
	accounts, err := e.accountRepo.LockForUpdate(ctx, tx, entry.TenantID, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[snowflake.ID]*accountdomain.Account, len(accounts))
	for _, account := range accounts {
		byID[account.ID] = account
	}
	for _, id := range ids {
		account, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", accountdomain.ErrAccountNotFound, id)
		}
		if !account.IsActive {
			return nil, fmt.Errorf("%w: %s", accountdomain.ErrAccountInactive, account.Code)
		}
	}

	lines := make([]ledgerdomain.JournalEntryLine, len(entry.Lines))
	copy(lines, entry.Lines)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })

	now := e.clock.Now().UTC()
	entryID := entry.ID
	history := make([]ledgerdomain.AccountBalanceHistory, 0, len(lines))

	for i := range lines {
		line := &lines[i]
		account := byID[line.AccountID]
		changeType, amount := line.Change()

		previous := account.CurrentBalance
		next := account.ApplyChange(amount, changeType)
		if err := e.accountRepo.UpdateBalance(ctx, tx, account, next, now); err != nil {
			if errors.Is(err, accountdomain.ErrVersionConflict) {
				return nil, fmt.Errorf("%w: account %s", ledgerdomain.ErrTransactionConflict, account.ID)
			}
			return nil, err
		}

		lineID := line.ID
		row := ledgerdomain.AccountBalanceHistory{
			ID:                 e.genID.Generate(),
			TenantID:           entry.TenantID,
			AccountID:          account.ID,
			PreviousBalance:    previous,
			NewBalance:         next,
			ChangeAmount:       amount,
			ChangeType:         changeType,
			JournalEntryID:     &entryID,
			JournalEntryLineID: &lineID,
			CreatedBy:          actor,
			CreatedAt:          now,
		}
		if err := e.ledgerRepo.InsertHistory(ctx, tx, &row); err != nil {
			return nil, err
		}
		history = append(history, row)
	}

	e.log.Debug("entry applied",
		zap.String("entry_id", entry.ID.String()),
		zap.Int("accounts", len(ids)),
		zap.Int("lines", len(lines)),
	)
	return history, nil
}
