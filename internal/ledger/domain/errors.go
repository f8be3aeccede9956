package domain

import "errors"

var (
	ErrInvalidTenant           = errors.New("invalid_tenant")
	ErrInvalidID               = errors.New("invalid_id")
	ErrInvalidEntryType        = errors.New("invalid_entry_type")
	ErrInvalidDate             = errors.New("invalid_date")
	ErrEntryNotFound           = errors.New("journal_entry_not_found")
	ErrInsufficientLines       = errors.New("insufficient_lines")
	ErrInvalidLine             = errors.New("invalid_line")
	ErrUnbalanced              = errors.New("unbalanced")
	ErrInvalidStatusTransition = errors.New("invalid_status_transition")
	ErrApprovalRequired        = errors.New("approval_required")
	ErrHistoryImmutable        = errors.New("balance_history_immutable")
	ErrAlreadyReversed         = errors.New("entry_already_reversed")
	ErrInvalidSource           = errors.New("invalid_source")
	ErrInvalidStatus           = errors.New("invalid_status")

	// Retryable infrastructure failures.
	ErrTransactionConflict = errors.New("transaction_conflict")
	ErrStorageUnavailable  = errors.New("storage_unavailable")

	ErrRetriesExhausted = errors.New("retries_exhausted")
)
