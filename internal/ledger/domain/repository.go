package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListEntryFilter struct {
	Status   *EntryStatus
	Type     *EntryType
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
}

type ListHistoryFilter struct {
	AccountID      *snowflake.ID
	JournalEntryID *snowflake.ID
	Limit          int
}

type Repository interface {
	// NextEntryNumber advances the tenant sequence inside db and returns the new value.
	NextEntryNumber(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (int64, error)

	InsertEntry(ctx context.Context, db *gorm.DB, entry *JournalEntry) error
	InsertLines(ctx context.Context, db *gorm.DB, lines []JournalEntryLine) error
	DeleteLines(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID) error
	// DeleteDraft removes a draft entry and its lines. Returns false when no draft matched.
	DeleteDraft(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID) (bool, error)
	FindEntryByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*JournalEntry, error)
	// FindBySource returns the entry created for an external document, if any.
	FindBySource(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, module, sourceID string) (*JournalEntry, error)
	// FindReversal returns the reversing entry that points at entryID, if any.
	FindReversal(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID) (*JournalEntry, error)
	ListEntries(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListEntryFilter) ([]JournalEntry, error)
	// UpdateEntry writes the mutable header columns when the stored status still equals
	// expected. A mismatch yields ErrTransactionConflict.
	UpdateEntry(ctx context.Context, db *gorm.DB, entry *JournalEntry, expected EntryStatus) error

	InsertHistory(ctx context.Context, db *gorm.DB, history *AccountBalanceHistory) error
	ListHistory(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListHistoryFilter) ([]AccountBalanceHistory, error)
}
