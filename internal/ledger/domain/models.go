package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/bookkeeping/internal/account/domain"
	"gorm.io/gorm"
)

// BalanceTolerance is the largest debit/credit difference still considered balanced.
var BalanceTolerance = decimal.RequireFromString("0.0005")

const MinLines = 2

type EntryType string

const (
	EntryTypeStandard  EntryType = "standard"
	EntryTypeAdjusting EntryType = "adjusting"
	EntryTypeClosing   EntryType = "closing"
	EntryTypeReversing EntryType = "reversing"
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeStandard, EntryTypeAdjusting, EntryTypeClosing, EntryTypeReversing:
		return true
	default:
		return false
	}
}

// EntryStatus only moves forward: draft -> posted -> voided.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "draft"
	EntryStatusPosted EntryStatus = "posted"
	EntryStatusVoided EntryStatus = "voided"
)

// JournalEntry is the header of a double-entry transaction.
type JournalEntry struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID        snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_journal_entries_tenant_number,priority:1;uniqueIndex:ux_journal_entries_source,priority:1" json:"tenant_id"`
	EntryNumber     string          `gorm:"type:text;not null;uniqueIndex:ux_journal_entries_tenant_number,priority:2" json:"entry_number"`
	Date            time.Time       `gorm:"not null;index" json:"date"`
	Type            EntryType       `gorm:"type:text;not null" json:"type"`
	Status          EntryStatus     `gorm:"type:text;not null;index" json:"status"`
	Memo            string          `gorm:"type:text" json:"memo,omitempty"`
	TotalDebit      decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"total_debit"`
	TotalCredit     decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"total_credit"`
	ReversalDate    *time.Time      `json:"reversal_date,omitempty"`
	ReversedEntryID *snowflake.ID   `gorm:"index" json:"reversed_entry_id,omitempty"`
	SourceModule    *string         `gorm:"type:text;uniqueIndex:ux_journal_entries_source,priority:2" json:"source_module,omitempty"`
	SourceID        *string         `gorm:"type:text;uniqueIndex:ux_journal_entries_source,priority:3" json:"source_id,omitempty"`
	CreatedBy       string          `gorm:"type:text;not null" json:"created_by"`
	ApprovedBy      *string         `gorm:"type:text" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	PostedBy        *string         `gorm:"type:text" json:"posted_by,omitempty"`
	PostedAt        *time.Time      `json:"posted_at,omitempty"`
	VoidedBy        *string         `gorm:"type:text" json:"voided_by,omitempty"`
	VoidedAt        *time.Time      `json:"voided_at,omitempty"`
	VoidReason      *string         `gorm:"type:text" json:"void_reason,omitempty"`
	CreatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Lines []JournalEntryLine `gorm:"-" json:"lines"`
}

// TableName sets the database table name.
func (JournalEntry) TableName() string { return "journal_entries" }

// JournalEntryLine carries exactly one strictly positive side.
type JournalEntryLine struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID    `gorm:"not null;index" json:"tenant_id"`
	JournalEntryID snowflake.ID    `gorm:"not null;index" json:"journal_entry_id"`
	LineNumber     int             `gorm:"not null" json:"line_number"`
	AccountID      snowflake.ID    `gorm:"not null;index" json:"account_id"`
	Debit          decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"debit"`
	Credit         decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"credit"`
	Memo           *string         `gorm:"type:text" json:"memo,omitempty"`
	ContactID      *snowflake.ID   `json:"contact_id,omitempty"`
	CreatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (JournalEntryLine) TableName() string { return "journal_entry_lines" }

// Validate checks the debit-xor-credit rule for a single line.
func (l *JournalEntryLine) Validate() error {
	if l.AccountID == 0 {
		return fmt.Errorf("%w: line %d has no account", ErrInvalidLine, l.LineNumber)
	}
	if l.Debit.IsNegative() || l.Credit.IsNegative() {
		return fmt.Errorf("%w: line %d has a negative amount", ErrInvalidLine, l.LineNumber)
	}
	if l.Debit.IsPositive() == l.Credit.IsPositive() {
		return fmt.Errorf("%w: line %d must carry exactly one of debit or credit", ErrInvalidLine, l.LineNumber)
	}
	if !accountdomain.FitsScale(l.Debit, accountdomain.AmountScale) || !accountdomain.FitsScale(l.Credit, accountdomain.AmountScale) {
		return fmt.Errorf("%w: line %d has more than %d decimal places", ErrInvalidLine, l.LineNumber, accountdomain.AmountScale)
	}
	return nil
}

// Change returns the direction and amount this line moves its account by.
func (l *JournalEntryLine) Change() (accountdomain.ChangeType, decimal.Decimal) {
	if l.Debit.IsPositive() {
		return accountdomain.ChangeTypeDebit, l.Debit
	}
	return accountdomain.ChangeTypeCredit, l.Credit
}

// ComputeTotals sums the line sides without modifying the entry.
func (e *JournalEntry) ComputeTotals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for i := range e.Lines {
		debit = debit.Add(e.Lines[i].Debit)
		credit = credit.Add(e.Lines[i].Credit)
	}
	return debit, credit
}

// Validate enforces the double-entry invariants and, on success, stores the recomputed
// totals on the entry. It is safe to call repeatedly.
func (e *JournalEntry) Validate() error {
	if len(e.Lines) < MinLines {
		return ErrInsufficientLines
	}
	for i := range e.Lines {
		if err := e.Lines[i].Validate(); err != nil {
			return err
		}
	}

	debit, credit := e.ComputeTotals()
	if debit.Sub(credit).Abs().GreaterThanOrEqual(BalanceTolerance) {
		return fmt.Errorf("%w: debit %s credit %s", ErrUnbalanced, debit.StringFixed(4), credit.StringFixed(4))
	}

	e.TotalDebit = debit
	e.TotalCredit = credit
	return nil
}

// Approve records approval of a draft.
func (e *JournalEntry) Approve(actor string, at time.Time) error {
	if e.Status != EntryStatusDraft {
		return transitionError(e.Status, "approve")
	}
	e.ApprovedBy = &actor
	e.ApprovedAt = &at
	e.UpdatedAt = at
	return nil
}

// RevokeApproval clears a recorded approval and reports whether there was one. An approval
// covers the draft as it was approved, so any edit must drop it.
func (e *JournalEntry) RevokeApproval() bool {
	if e.ApprovedAt == nil && e.ApprovedBy == nil {
		return false
	}
	e.ApprovedBy = nil
	e.ApprovedAt = nil
	return true
}

// MarkPosted validates the entry and moves it from draft to posted. When requireApproval
// is set, an unapproved draft is rejected.
func (e *JournalEntry) MarkPosted(actor string, at time.Time, requireApproval bool) error {
	if e.Status != EntryStatusDraft {
		return transitionError(e.Status, "post")
	}
	if requireApproval && e.ApprovedAt == nil {
		return ErrApprovalRequired
	}
	if err := e.Validate(); err != nil {
		return err
	}
	e.Status = EntryStatusPosted
	e.PostedBy = &actor
	e.PostedAt = &at
	e.UpdatedAt = at
	return nil
}

// MarkVoided moves a posted entry to voided. Balances are not touched.
func (e *JournalEntry) MarkVoided(actor, reason string, at time.Time) error {
	if e.Status != EntryStatusPosted {
		return transitionError(e.Status, "void")
	}
	e.Status = EntryStatusVoided
	e.VoidedBy = &actor
	e.VoidedAt = &at
	if reason != "" {
		e.VoidReason = &reason
	}
	e.UpdatedAt = at
	return nil
}

// CanReverse reports whether a reversing entry may be created for e.
func (e *JournalEntry) CanReverse() error {
	if e.Status != EntryStatusPosted && e.Status != EntryStatusVoided {
		return transitionError(e.Status, "reverse")
	}
	if e.Type == EntryTypeReversing {
		return fmt.Errorf("%w: a reversing entry cannot itself be reversed", ErrInvalidStatusTransition)
	}
	return nil
}

// MirrorLines returns copies of the lines with debit and credit swapped. IDs and entry
// references are cleared for the caller to assign.
func (e *JournalEntry) MirrorLines() []JournalEntryLine {
	lines := make([]JournalEntryLine, 0, len(e.Lines))
	for _, line := range e.Lines {
		lines = append(lines, JournalEntryLine{
			TenantID:   line.TenantID,
			LineNumber: line.LineNumber,
			AccountID:  line.AccountID,
			Debit:      line.Credit,
			Credit:     line.Debit,
			Memo:       line.Memo,
			ContactID:  line.ContactID,
		})
	}
	return lines
}

func transitionError(from EntryStatus, action string) error {
	return fmt.Errorf("%w: cannot %s a %s entry", ErrInvalidStatusTransition, action, from)
}

// AccountBalanceHistory is one immutable balance movement produced by posting.
type AccountBalanceHistory struct {
	ID                 snowflake.ID             `gorm:"primaryKey" json:"id"`
	TenantID           snowflake.ID             `gorm:"not null;index" json:"tenant_id"`
	AccountID          snowflake.ID             `gorm:"not null;index" json:"account_id"`
	PreviousBalance    decimal.Decimal          `gorm:"type:numeric(20,4);not null" json:"previous_balance"`
	NewBalance         decimal.Decimal          `gorm:"type:numeric(20,4);not null" json:"new_balance"`
	ChangeAmount       decimal.Decimal          `gorm:"type:numeric(20,4);not null" json:"change_amount"`
	ChangeType         accountdomain.ChangeType `gorm:"type:text;not null" json:"change_type"`
	JournalEntryID     *snowflake.ID            `gorm:"index" json:"journal_entry_id,omitempty"`
	JournalEntryLineID *snowflake.ID            `json:"journal_entry_line_id,omitempty"`
	CreatedBy          string                   `gorm:"type:text;not null" json:"created_by"`
	CreatedAt          time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (AccountBalanceHistory) TableName() string { return "account_balance_histories" }

func (AccountBalanceHistory) BeforeUpdate(*gorm.DB) error { return ErrHistoryImmutable }

func (AccountBalanceHistory) BeforeDelete(*gorm.DB) error { return ErrHistoryImmutable }

// JournalEntrySequence holds the last entry number issued per tenant.
type JournalEntrySequence struct {
	TenantID  snowflake.ID `gorm:"primaryKey"`
	LastValue int64        `gorm:"not null;default:0"`
}

// TableName sets the database table name.
func (JournalEntrySequence) TableName() string { return "journal_entry_sequences" }

// FormatEntryNumber renders a sequence value as JE-000001.
func FormatEntryNumber(seq int64) string {
	return fmt.Sprintf("JE-%06d", seq)
}
