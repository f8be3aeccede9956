package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/bookkeeping/internal/ledger/domain"
	"github.com/smallbiznis/bookkeeping/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) NextEntryNumber(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID) (int64, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE journal_entry_sequences SET last_value = last_value + 1 WHERE tenant_id = ?`,
		tenantID,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		err := conn.WithContext(ctx).Exec(
			`INSERT INTO journal_entry_sequences (tenant_id, last_value) VALUES (?, 1)`,
			tenantID,
		).Error
		if err != nil {
			if db.IsDuplicateKeyErr(err) {
				return 0, ledgerdomain.ErrTransactionConflict
			}
			return 0, err
		}
		return 1, nil
	}

	var value int64
	err := conn.WithContext(ctx).Raw(
		`SELECT last_value FROM journal_entry_sequences WHERE tenant_id = ?`,
		tenantID,
	).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (r *repo) InsertEntry(ctx context.Context, conn *gorm.DB, entry *ledgerdomain.JournalEntry) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO journal_entries (
			id, tenant_id, entry_number, date, type, status, memo, total_debit, total_credit,
			reversal_date, reversed_entry_id, source_module, source_id, created_by,
			approved_by, approved_at, posted_by, posted_at, voided_by, voided_at, void_reason,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.TenantID,
		entry.EntryNumber,
		entry.Date,
		entry.Type,
		entry.Status,
		entry.Memo,
		entry.TotalDebit,
		entry.TotalCredit,
		entry.ReversalDate,
		entry.ReversedEntryID,
		entry.SourceModule,
		entry.SourceID,
		entry.CreatedBy,
		entry.ApprovedBy,
		entry.ApprovedAt,
		entry.PostedBy,
		entry.PostedAt,
		entry.VoidedBy,
		entry.VoidedAt,
		entry.VoidReason,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Error
}

func (r *repo) InsertLines(ctx context.Context, conn *gorm.DB, lines []ledgerdomain.JournalEntryLine) error {
	for _, line := range lines {
		err := conn.WithContext(ctx).Exec(
			`INSERT INTO journal_entry_lines (
				id, tenant_id, journal_entry_id, line_number, account_id, debit, credit,
				memo, contact_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			line.TenantID,
			line.JournalEntryID,
			line.LineNumber,
			line.AccountID,
			line.Debit,
			line.Credit,
			line.Memo,
			line.ContactID,
			line.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) DeleteLines(ctx context.Context, conn *gorm.DB, tenantID, entryID snowflake.ID) error {
	return conn.WithContext(ctx).Exec(
		`DELETE FROM journal_entry_lines WHERE tenant_id = ? AND journal_entry_id = ?`,
		tenantID,
		entryID,
	).Error
}

func (r *repo) DeleteDraft(ctx context.Context, conn *gorm.DB, tenantID, entryID snowflake.ID) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`DELETE FROM journal_entries WHERE tenant_id = ? AND id = ? AND status = ?`,
		tenantID,
		entryID,
		ledgerdomain.EntryStatusDraft,
	)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	if err := r.DeleteLines(ctx, conn, tenantID, entryID); err != nil {
		return false, err
	}
	return true, nil
}

func (r *repo) FindEntryByID(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*ledgerdomain.JournalEntry, error) {
	return r.findOne(ctx, conn, tenantID, "id = ?", id)
}

func (r *repo) FindBySource(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, module, sourceID string) (*ledgerdomain.JournalEntry, error) {
	return r.findOne(ctx, conn, tenantID, "source_module = ? AND source_id = ?", module, sourceID)
}

func (r *repo) FindReversal(ctx context.Context, conn *gorm.DB, tenantID, entryID snowflake.ID) (*ledgerdomain.JournalEntry, error) {
	return r.findOne(ctx, conn, tenantID, "reversed_entry_id = ?", entryID)
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, query string, args ...any) (*ledgerdomain.JournalEntry, error) {
	var entries []ledgerdomain.JournalEntry
	err := conn.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where(query, args...).
		Order("id asc").
		Limit(1).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	entry := entries[0]

	var lines []ledgerdomain.JournalEntryLine
	err = conn.WithContext(ctx).
		Where("tenant_id = ? AND journal_entry_id = ?", tenantID, entry.ID).
		Order("line_number asc").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	entry.Lines = lines
	return &entry, nil
}

func (r *repo) ListEntries(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, filter ledgerdomain.ListEntryFilter) ([]ledgerdomain.JournalEntry, error) {
	var entries []ledgerdomain.JournalEntry
	stmt := conn.WithContext(ctx).
		Model(&ledgerdomain.JournalEntry{}).
		Where("tenant_id = ?", tenantID)
	if filter.Status != nil {
		stmt = stmt.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		stmt = stmt.Where("type = ?", *filter.Type)
	}
	if filter.DateFrom != nil {
		stmt = stmt.Where("date >= ?", filter.DateFrom.UTC())
	}
	if filter.DateTo != nil {
		stmt = stmt.Where("date <= ?", filter.DateTo.UTC())
	}
	stmt = stmt.Order("date desc, entry_number desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) UpdateEntry(ctx context.Context, conn *gorm.DB, entry *ledgerdomain.JournalEntry, expected ledgerdomain.EntryStatus) error {
	result := conn.WithContext(ctx).Exec(
		`UPDATE journal_entries SET
			date = ?, memo = ?, status = ?, total_debit = ?, total_credit = ?,
			approved_by = ?, approved_at = ?, posted_by = ?, posted_at = ?,
			voided_by = ?, voided_at = ?, void_reason = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = ?`,
		entry.Date,
		entry.Memo,
		entry.Status,
		entry.TotalDebit,
		entry.TotalCredit,
		entry.ApprovedBy,
		entry.ApprovedAt,
		entry.PostedBy,
		entry.PostedAt,
		entry.VoidedBy,
		entry.VoidedAt,
		entry.VoidReason,
		entry.UpdatedAt,
		entry.TenantID,
		entry.ID,
		expected,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrTransactionConflict
	}
	return nil
}

func (r *repo) InsertHistory(ctx context.Context, conn *gorm.DB, history *ledgerdomain.AccountBalanceHistory) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO account_balance_histories (
			id, tenant_id, account_id, previous_balance, new_balance, change_amount, change_type,
			journal_entry_id, journal_entry_line_id, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		history.ID,
		history.TenantID,
		history.AccountID,
		history.PreviousBalance,
		history.NewBalance,
		history.ChangeAmount,
		history.ChangeType,
		history.JournalEntryID,
		history.JournalEntryLineID,
		history.CreatedBy,
		history.CreatedAt,
	).Error
}

func (r *repo) ListHistory(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, filter ledgerdomain.ListHistoryFilter) ([]ledgerdomain.AccountBalanceHistory, error) {
	var items []ledgerdomain.AccountBalanceHistory
	stmt := conn.WithContext(ctx).
		Model(&ledgerdomain.AccountBalanceHistory{}).
		Where("tenant_id = ?", tenantID)
	if filter.AccountID != nil {
		stmt = stmt.Where("account_id = ?", *filter.AccountID)
	}
	if filter.JournalEntryID != nil {
		stmt = stmt.Where("journal_entry_id = ?", *filter.JournalEntryID)
	}
	stmt = stmt.Order("created_at asc, id asc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
