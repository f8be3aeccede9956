package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/bookkeeping/internal/actorcontext"
	ledgerdomain "github.com/smallbiznis/bookkeeping/internal/ledger/domain"
	"github.com/smallbiznis/bookkeeping/internal/ledger/lock"
	"github.com/smallbiznis/bookkeeping/internal/ledger/posting"
	"github.com/smallbiznis/bookkeeping/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tracerName = "bookkeeping/ledger"

// Approve records the current actor as approver of a draft.
func (s *Service) Approve(ctx context.Context, id string) (ledgerdomain.JournalEntry, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	entryID, err := parseID(id)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	actor := actorcontext.ActorOrSystem(ctx)

	var approved ledgerdomain.JournalEntry
	err = s.transaction(ctx, tenantID, func(tx *gorm.DB) error {
		entry, err := s.load(ctx, tx, tenantID, entryID)
		if err != nil {
			return err
		}
		if err := entry.Approve(actor, s.clock.Now().UTC()); err != nil {
			return err
		}
		if err := s.repo.UpdateEntry(ctx, tx, &entry, ledgerdomain.EntryStatusDraft); err != nil {
			return err
		}
		approved = entry

		return s.audit(ctx, tx, "ledger.entry_approved", entry.ID, map[string]any{
			"entry_number": entry.EntryNumber,
		})
	})
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	return approved, nil
}

// Post validates a draft and applies it to account balances. The status change, every
// balance write and every history row commit together or not at all. Conflicts with
// concurrent posters are retried with backoff.
func (s *Service) Post(ctx context.Context, id string) (ledgerdomain.JournalEntry, error) {
	ctx, span := s.startSpan(ctx, "ledger.post", id)
	defer span.End()

	entry, err := s.post(ctx, id)
	endSpan(span, err)
	return entry, err
}

func (s *Service) post(ctx context.Context, id string) (ledgerdomain.JournalEntry, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	entryID, err := parseID(id)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	actor := actorcontext.ActorOrSystem(ctx)
	requireApproval := s.ledgerCfg.Get().RequireApproval
	started := time.Now()

	var posted ledgerdomain.JournalEntry
	err = s.retry(ctx, "post", func() error {
		return s.withEntryLocks(ctx, tenantID, entryID, func(locked []snowflake.ID) error {
			return s.transaction(ctx, tenantID, func(tx *gorm.DB) error {
				entry, err := s.load(ctx, tx, tenantID, entryID)
				if err != nil {
					return err
				}
				if locked != nil && !slices.Equal(locked, posting.AccountIDs(&entry)) {
					return ledgerdomain.ErrTransactionConflict
				}

				if err := entry.MarkPosted(actor, s.clock.Now().UTC(), requireApproval); err != nil {
					return err
				}
				if err := s.repo.UpdateEntry(ctx, tx, &entry, ledgerdomain.EntryStatusDraft); err != nil {
					return err
				}
				history, err := s.engine.Apply(ctx, tx, &entry, actor)
				if err != nil {
					return err
				}
				posted = entry

				return s.audit(ctx, tx, "ledger.entry_posted", entry.ID, map[string]any{
					"entry_number":    entry.EntryNumber,
					"total_debit":     entry.TotalDebit.String(),
					"total_credit":    entry.TotalCredit.String(),
					"balance_changes": len(history),
				})
			})
		})
	})
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}

	s.obsMetrics.RecordEntryPosted(ctx, string(posted.Type), time.Since(started))
	s.log.Info("journal entry posted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("entry_id", posted.ID.String()),
		zap.String("entry_number", posted.EntryNumber),
	)
	return posted, nil
}

// Void marks a posted entry as voided. Balances are left as they are; use Reverse to undo
// the financial effect.
func (s *Service) Void(ctx context.Context, req ledgerdomain.VoidRequest) (ledgerdomain.JournalEntry, error) {
	ctx, span := s.startSpan(ctx, "ledger.void", req.ID)
	defer span.End()

	entry, err := s.void(ctx, req)
	endSpan(span, err)
	return entry, err
}

func (s *Service) void(ctx context.Context, req ledgerdomain.VoidRequest) (ledgerdomain.JournalEntry, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	entryID, err := parseID(req.ID)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	actor := actorcontext.ActorOrSystem(ctx)
	reason := strings.TrimSpace(req.Reason)

	var voided ledgerdomain.JournalEntry
	err = s.retry(ctx, "void", func() error {
		return s.transaction(ctx, tenantID, func(tx *gorm.DB) error {
			entry, err := s.load(ctx, tx, tenantID, entryID)
			if err != nil {
				return err
			}
			if err := entry.MarkVoided(actor, reason, s.clock.Now().UTC()); err != nil {
				return err
			}
			if err := s.repo.UpdateEntry(ctx, tx, &entry, ledgerdomain.EntryStatusPosted); err != nil {
				return err
			}
			voided = entry

			return s.audit(ctx, tx, "ledger.entry_voided", entry.ID, map[string]any{
				"entry_number": entry.EntryNumber,
				"reason":       reason,
			})
		})
	})
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}

	s.log.Info("journal entry voided",
		zap.String("tenant_id", tenantID.String()),
		zap.String("entry_id", voided.ID.String()),
	)
	return voided, nil
}

// Reverse creates and posts a reversing entry whose lines mirror the original. The new
// entry is dated req.Date, the original's reversal date, or today, in that order.
func (s *Service) Reverse(ctx context.Context, req ledgerdomain.ReverseRequest) (ledgerdomain.JournalEntry, error) {
	ctx, span := s.startSpan(ctx, "ledger.reverse", req.ID)
	defer span.End()

	entry, err := s.reverse(ctx, req)
	endSpan(span, err)
	return entry, err
}

func (s *Service) reverse(ctx context.Context, req ledgerdomain.ReverseRequest) (ledgerdomain.JournalEntry, error) {
	tenantID, err := s.tenant(ctx)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	originalID, err := parseID(req.ID)
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}
	if req.Date != nil && req.Date.IsZero() {
		return ledgerdomain.JournalEntry{}, ledgerdomain.ErrInvalidDate
	}
	actor := actorcontext.ActorOrSystem(ctx)
	started := time.Now()

	var reversal ledgerdomain.JournalEntry
	err = s.retry(ctx, "reverse", func() error {
		return s.withEntryLocks(ctx, tenantID, originalID, func(locked []snowflake.ID) error {
			return s.transaction(ctx, tenantID, func(tx *gorm.DB) error {
				original, err := s.load(ctx, tx, tenantID, originalID)
				if err != nil {
					return err
				}
				if err := original.CanReverse(); err != nil {
					return err
				}
				if locked != nil && !slices.Equal(locked, posting.AccountIDs(&original)) {
					return ledgerdomain.ErrTransactionConflict
				}
				existing, err := s.repo.FindReversal(ctx, tx, tenantID, original.ID)
				if err != nil {
					return err
				}
				if existing != nil {
					return fmt.Errorf("%w: by %s", ledgerdomain.ErrAlreadyReversed, existing.EntryNumber)
				}

				seq, err := s.repo.NextEntryNumber(ctx, tx, tenantID)
				if err != nil {
					return err
				}

				now := s.clock.Now().UTC()
				entry := s.buildReversal(&original, req, seq, actor, now)
				if err := entry.MarkPosted(actor, now, false); err != nil {
					return err
				}
				if err := s.repo.InsertEntry(ctx, tx, &entry); err != nil {
					if db.IsDuplicateKeyErr(err) {
						return ledgerdomain.ErrTransactionConflict
					}
					return err
				}
				if err := s.repo.InsertLines(ctx, tx, entry.Lines); err != nil {
					return err
				}
				if _, err := s.engine.Apply(ctx, tx, &entry, actor); err != nil {
					return err
				}
				reversal = entry

				return s.audit(ctx, tx, "ledger.entry_reversed", original.ID, map[string]any{
					"entry_number":           original.EntryNumber,
					"reversing_entry_id":     entry.ID.String(),
					"reversing_entry_number": entry.EntryNumber,
				})
			})
		})
	})
	if err != nil {
		return ledgerdomain.JournalEntry{}, err
	}

	s.obsMetrics.RecordEntryPosted(ctx, string(reversal.Type), time.Since(started))
	s.log.Info("journal entry reversed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("entry_id", originalID.String()),
		zap.String("reversing_entry_id", reversal.ID.String()),
	)
	return reversal, nil
}

func (s *Service) buildReversal(original *ledgerdomain.JournalEntry, req ledgerdomain.ReverseRequest, seq int64, actor string, now time.Time) ledgerdomain.JournalEntry {
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch {
	case req.Date != nil:
		date = req.Date.UTC()
	case original.ReversalDate != nil:
		date = original.ReversalDate.UTC()
	}

	memo := strings.TrimSpace(req.Memo)
	if memo == "" {
		memo = "Reversal of " + original.EntryNumber
	}

	originalID := original.ID
	entry := ledgerdomain.JournalEntry{
		ID:              s.genID.Generate(),
		TenantID:        original.TenantID,
		EntryNumber:     ledgerdomain.FormatEntryNumber(seq),
		Date:            date,
		Type:            ledgerdomain.EntryTypeReversing,
		Status:          ledgerdomain.EntryStatusDraft,
		Memo:            memo,
		ReversedEntryID: &originalID,
		CreatedBy:       actor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	lines := original.MirrorLines()
	for i := range lines {
		lines[i].ID = s.genID.Generate()
		lines[i].JournalEntryID = entry.ID
		lines[i].CreatedAt = now
	}
	entry.Lines = lines
	return entry
}

// withEntryLocks holds the cross-process account locks for the entry's accounts while fn
// runs. fn receives the locked ids, or nil when locking is disabled.
func (s *Service) withEntryLocks(ctx context.Context, tenantID, entryID snowflake.ID, fn func(locked []snowflake.ID) error) error {
	cfg := s.ledgerCfg.Get().Lock
	if !cfg.Enabled || s.locker == nil {
		return fn(nil)
	}

	entry, err := s.load(ctx, s.db, tenantID, entryID)
	if err != nil {
		return err
	}
	ids := posting.AccountIDs(&entry)

	held, err := s.locker.LockAccounts(ctx, tenantID, ids, cfg.TTL, cfg.Wait)
	if err != nil {
		return err
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release account locks", zap.String("entry_id", entryID.String()), zap.Error(err))
		}
	}()

	return fn(ids)
}

// retry runs fn until it succeeds, fails with a non-retryable error, or the configured
// attempts are spent. Exhaustion is reported as ErrRetriesExhausted joined with the last cause.
func (s *Service) retry(ctx context.Context, operation string, fn func() error) error {
	cfg := s.ledgerCfg.Get().Posting

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialInterval
	policy.MaxInterval = cfg.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := classify(fn())
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, ledgerdomain.ErrTransactionConflict) {
			s.obsMetrics.RecordPostingConflict(ctx, operation)
		}
		if retryable(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(max(cfg.MaxAttempts, 1))),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.obsMetrics.RecordPostingRetry(ctx, operation)
			s.log.Debug("retrying ledger operation",
				zap.String("operation", operation),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	if retryable(err) {
		s.log.Warn("ledger operation retries exhausted", zap.String("operation", operation), zap.Error(err))
		return errors.Join(ledgerdomain.ErrRetriesExhausted, err)
	}
	return err
}

// classify maps storage and lock failures onto the ledger's retryable sentinels.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ledgerdomain.ErrTransactionConflict), errors.Is(err, ledgerdomain.ErrStorageUnavailable):
		return err
	case errors.Is(err, lock.ErrLockNotAcquired), db.IsConflictErr(err):
		return fmt.Errorf("%w: %w", ledgerdomain.ErrTransactionConflict, err)
	case db.IsUnavailableErr(err):
		return fmt.Errorf("%w: %w", ledgerdomain.ErrStorageUnavailable, err)
	default:
		return err
	}
}

func retryable(err error) bool {
	return errors.Is(err, ledgerdomain.ErrTransactionConflict) || errors.Is(err, ledgerdomain.ErrStorageUnavailable)
}

func (s *Service) startSpan(ctx context.Context, name, entryID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithAttributes(attribute.String("ledger.entry_id", strings.TrimSpace(entryID))),
	)
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
