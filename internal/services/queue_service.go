// Package services – QueueService
//
// This file implements QueueService, the application-level owner of the
// durable submission queue. Failed external writes arrive as
// SubmissionFailed events on the mediator bus; HandleSubmissionFailed records
// them durably, and the background processor drives retries through
// PendingReady / TryLock / RecordSuccess / RecordFailure.
//
// Retry policy: exponential backoff of 2^retryCount seconds (1s, 2s, 4s),
// at most MaxRetries attempts, then the item is failed terminally. The lock
// contract is optimistic: every transition is conditional on the version
// token, so multiple processor instances are safe against the same table.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/attendly/go-timeclock-backend/internal/config"
	"github.com/attendly/go-timeclock-backend/internal/domain"
	"github.com/attendly/go-timeclock-backend/internal/events"
)

// QueueRepo defines the repository contract required by QueueService.
type QueueRepo interface {
	// CreateQueueItem inserts a new pending item with the given TTL.
	CreateQueueItem(ctx context.Context, db *gorm.DB, item *domain.SubmissionQueueItem, ttl time.Duration) error

	// GetQueueItem fetches one item by id and owner identity.
	GetQueueItem(ctx context.Context, db *gorm.DB, id, identityID string) (*domain.SubmissionQueueItem, error)

	// ListQueueItems returns items owned by an identity, newest first.
	ListQueueItems(ctx context.Context, db *gorm.DB, identityID string, limit int) ([]domain.SubmissionQueueItem, error)

	// GetPendingReadyForRetry returns pending items eligible at now.
	GetPendingReadyForRetry(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.SubmissionQueueItem, error)

	// TryLockQueueItem attempts the pending -> processing transition.
	TryLockQueueItem(ctx context.Context, db *gorm.DB, item *domain.SubmissionQueueItem, lockedUntil time.Time) (bool, error)

	// UpdateQueueItemAfterRetry records the outcome of one locked attempt.
	UpdateQueueItemAfterRetry(ctx context.Context, db *gorm.DB, item *domain.SubmissionQueueItem) (bool, error)

	// ReclaimStaleQueueItems resets processing items with expired leases.
	ReclaimStaleQueueItems(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)

	// PurgeExpiredQueueItems hard-deletes terminal items past their TTL.
	PurgeExpiredQueueItems(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}

// QueueService owns durable recording and retry bookkeeping for failed HR
// submissions.
type QueueService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the queue repository used by this service.
	Repo QueueRepo
	// Audit receives one entry per queue lifecycle event.
	Audit AuditRepo

	// MaxRetries bounds automatic retries for newly enqueued items.
	MaxRetries int
	// ItemTTL is how long items are retained before garbage collection.
	ItemTTL time.Duration
	// AttemptTimeout is the per-attempt budget and the lock lease duration.
	AttemptTimeout time.Duration
}

// NewQueueService constructs a QueueService from queue configuration.
func NewQueueService(db *gorm.DB, r QueueRepo, audit AuditRepo, cfg config.QueueConfig) *QueueService {
	return &QueueService{
		DB:             db,
		Repo:           r,
		Audit:          audit,
		MaxRetries:     cfg.MaxRetries,
		ItemTTL:        cfg.ItemTTL,
		AttemptTimeout: cfg.AttemptTimeout,
	}
}

// HandleSubmissionFailed is the mediator-bus subscriber: it durably records a
// failed submission for retry. Errors are logged, never propagated; from the
// user's perspective the action is "queued" no matter what.
func (s *QueueService) HandleSubmissionFailed(ctx context.Context, ev events.SubmissionFailed) {
	if _, err := s.Enqueue(ctx, ev); err != nil {
		log.Error().Err(err).
			Str("identity_id", ev.IdentityID).
			Str("action", ev.ActionKind).
			Msg("failed to enqueue submission for retry")
	}
}

// Enqueue records one failed submission as a pending queue item. The first
// retry becomes eligible after the initial backoff (2^0 = 1s).
func (s *QueueService) Enqueue(ctx context.Context, ev events.SubmissionFailed) (*domain.SubmissionQueueItem, error) {
	tr := otel.Tracer("services/QueueService")
	ctx, span := tr.Start(ctx, "Enqueue",
		trace.WithAttributes(
			attribute.String("identity.id", ev.IdentityID),
			attribute.String("action.kind", ev.ActionKind),
		),
	)
	defer span.End()

	next := time.Now().UTC().Add(backoffFor(0))
	item := &domain.SubmissionQueueItem{
		IdentityID:      ev.IdentityID,
		ActionKind:      ev.ActionKind,
		TargetTimestamp: ev.TargetTimestamp.UTC(),
		ThreadID:        ev.ThreadID,
		MessageID:       ev.MessageID,
		MaxRetries:      s.MaxRetries,
		NextRetryAt:     &next,
		LastError:       ev.ErrorMessage,
		LastStatusCode:  ev.StatusCode,
		Context:         ev.Context,
	}
	if err := s.Repo.CreateQueueItem(ctx, s.DB, item, s.ItemTTL); err != nil {
		return nil, err
	}
	s.audit(ctx, item, "submission.queued")
	return item, nil
}

// PendingReady returns up to limit pending items eligible for a retry at now.
func (s *QueueService) PendingReady(ctx context.Context, now time.Time, limit int) ([]domain.SubmissionQueueItem, error) {
	return s.Repo.GetPendingReadyForRetry(ctx, s.DB, now, limit)
}

// TryLock attempts to claim one pending item for an attempt. Exactly one of
// several racing workers succeeds; the lease expires after AttemptTimeout so
// a crashed worker cannot strand the item.
func (s *QueueService) TryLock(ctx context.Context, item *domain.SubmissionQueueItem) (bool, error) {
	lease := time.Now().UTC().Add(s.AttemptTimeout)
	return s.Repo.TryLockQueueItem(ctx, s.DB, item, lease)
}

// RecordSuccess transitions a locked item to completed. The returned bool is
// false when the lease was reclaimed mid-flight and the outcome was discarded.
func (s *QueueService) RecordSuccess(ctx context.Context, item *domain.SubmissionQueueItem, statusCode int) (bool, error) {
	item.Status = domain.QueueStatusCompleted
	item.NextRetryAt = nil
	item.LastError = ""
	item.LastStatusCode = statusCode

	wrote, err := s.Repo.UpdateQueueItemAfterRetry(ctx, s.DB, item)
	if err != nil || !wrote {
		return wrote, err
	}
	s.audit(ctx, item, "submission.completed")
	return true, nil
}

// RecordFailure books one failed attempt on a locked item. With retries left
// the item returns to pending with the next exponential backoff; once
// exhausted it is failed terminally and never retried automatically.
func (s *QueueService) RecordFailure(ctx context.Context, item *domain.SubmissionQueueItem, errMsg string, statusCode int) (bool, error) {
	item.RetryCount++
	item.LastError = errMsg
	item.LastStatusCode = statusCode

	if item.RetriesExhausted() {
		item.Status = domain.QueueStatusFailed
		item.NextRetryAt = nil
	} else {
		item.Status = domain.QueueStatusPending
		next := time.Now().UTC().Add(backoffFor(item.RetryCount))
		item.NextRetryAt = &next
	}

	wrote, err := s.Repo.UpdateQueueItemAfterRetry(ctx, s.DB, item)
	if err != nil || !wrote {
		return wrote, err
	}
	if item.Status == domain.QueueStatusFailed {
		s.audit(ctx, item, "submission.failed")
	}
	return true, nil
}

// ReclaimStale returns processing items with expired leases to circulation,
// consuming one retry for the lost attempt.
func (s *QueueService) ReclaimStale(ctx context.Context, now time.Time) (int64, error) {
	return s.Repo.ReclaimStaleQueueItems(ctx, s.DB, now)
}

// Purge garbage-collects terminal items whose TTL elapsed.
func (s *QueueService) Purge(ctx context.Context, now time.Time) (int64, error) {
	return s.Repo.PurgeExpiredQueueItems(ctx, s.DB, now)
}

// ListForIdentity returns the identity's queue items, newest first.
func (s *QueueService) ListForIdentity(ctx context.Context, identityID string, limit int) ([]domain.SubmissionQueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.Repo.ListQueueItems(ctx, s.DB, identityID, limit)
}

// Get fetches one item, ensuring ownership.
func (s *QueueService) Get(ctx context.Context, identityID, id string) (*domain.SubmissionQueueItem, error) {
	item, err := s.Repo.GetQueueItem(ctx, s.DB, id, identityID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQueueItemNotFound
	}
	return item, err
}

// audit mirrors a queue lifecycle event into the audit trail. A lost audit
// row is logged, not fatal; the queue transition already committed.
func (s *QueueService) audit(ctx context.Context, item *domain.SubmissionQueueItem, eventType string) {
	payload, _ := json.Marshal(map[string]any{
		"queue_item_id": item.ID,
		"thread_id":     item.ThreadID,
		"action":        item.ActionKind,
		"retry_count":   item.RetryCount,
		"status":        item.Status,
	})
	if _, err := s.Audit.AppendAuditEntry(ctx, s.DB, item.IdentityID, eventType, string(payload)); err != nil {
		log.Error().Err(err).Str("queue_item_id", item.ID).Msg("audit append failed")
	}
}

// backoffFor returns the retry delay for the given attempt index.
func backoffFor(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 16 {
		retryCount = 16
	}
	return time.Duration(1<<uint(retryCount)) * time.Second
}
