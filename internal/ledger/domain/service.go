package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type LineRequest struct {
	AccountID string          `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo"`
	ContactID string          `json:"contact_id"`
}

type CreateEntryRequest struct {
	Date         time.Time     `json:"date"`
	Type         EntryType     `json:"type"`
	Memo         string        `json:"memo"`
	ReversalDate *time.Time    `json:"reversal_date"`
	SourceModule string        `json:"source_module"`
	SourceID     string        `json:"source_id"`
	Lines        []LineRequest `json:"lines"`
}

// UpdateEntryRequest replaces the editable parts of a draft. Nil Lines keeps the current lines.
type UpdateEntryRequest struct {
	ID    string        `json:"-"`
	Date  *time.Time    `json:"date,omitempty"`
	Memo  *string       `json:"memo,omitempty"`
	Lines []LineRequest `json:"lines,omitempty"`
}

type ListEntryRequest struct {
	Status   string
	Type     string
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
}

type VoidRequest struct {
	ID     string `json:"-"`
	Reason string `json:"reason"`
}

// ReverseRequest creates a mirrored entry dated Date, or today when Date is nil.
type ReverseRequest struct {
	ID   string     `json:"-"`
	Date *time.Time `json:"date,omitempty"`
	Memo string     `json:"memo"`
}

type HistoryRequest struct {
	AccountID      string
	JournalEntryID string
	Limit          int
}

type Service interface {
	CreateDraft(ctx context.Context, req CreateEntryRequest) (JournalEntry, error)
	UpdateDraft(ctx context.Context, req UpdateEntryRequest) (JournalEntry, error)
	DeleteDraft(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (JournalEntry, error)
	List(ctx context.Context, req ListEntryRequest) ([]JournalEntry, error)

	Approve(ctx context.Context, id string) (JournalEntry, error)
	Post(ctx context.Context, id string) (JournalEntry, error)
	Void(ctx context.Context, req VoidRequest) (JournalEntry, error)
	Reverse(ctx context.Context, req ReverseRequest) (JournalEntry, error)

	History(ctx context.Context, req HistoryRequest) ([]AccountBalanceHistory, error)
}
