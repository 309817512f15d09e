// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the durable
// submission queue.
//
// Concurrency model: multiple processor instances may poll the same table.
// Mutual exclusion per item is achieved with an optimistic version token:
// every state transition is a conditional UPDATE matching the version the
// caller read, and RowsAffected == 0 means another worker won the race.
// No external lock service is involved.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attendly/go-timeclock-backend/internal/domain"
)

// CreateQueueItem inserts a new pending queue item. NextRetryAt is set to
// the immediate first-retry eligibility time supplied by the caller and
// ExpiresAt to now+ttl for garbage collection.
func CreateQueueItem(ctx context.Context, db *gorm.DB, item *domain.SubmissionQueueItem, ttl time.Duration) error {
	now := time.Now().UTC()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.Status = domain.QueueStatusPending
	item.CreatedAt = now
	item.UpdatedAt = now
	exp := now.Add(ttl)
	item.ExpiresAt = &exp
	return db.WithContext(ctx).Create(item).Error
}

// GetQueueItem fetches one item by id and owner identity.
func GetQueueItem(ctx context.Context, db *gorm.DB, id, identityID string) (*domain.SubmissionQueueItem, error) {
	var item domain.SubmissionQueueItem
	err := db.WithContext(ctx).
		Where("id = ? AND identity_id = ?", id, identityID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListQueueItems returns all items owned by an identity, newest first.
func ListQueueItems(ctx context.Context, db *gorm.DB, identityID string, limit int) ([]domain.SubmissionQueueItem, error) {
	var out []domain.SubmissionQueueItem
	err := db.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetPendingReadyForRetry returns up to limit pending items whose
// NextRetryAt is at or before now, oldest eligibility first.
func GetPendingReadyForRetry(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.SubmissionQueueItem, error) {
	var out []domain.SubmissionQueueItem
	err := db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", domain.QueueStatusPending, now).
		Order("next_retry_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// TryLockQueueItem attempts the pending -> processing transition with a lock
// lease expiring at lockedUntil. The UPDATE is conditional on both the
// current status and the version token the caller read, so of two workers
// racing on the same item exactly one sees RowsAffected == 1.
//
// Returns true when this caller acquired the item. On success item.Version
// and item.Status are updated in place to the post-lock values.
func TryLockQueueItem(ctx context.Context, db *gorm.DB, item *domain.SubmissionQueueItem, lockedUntil time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.SubmissionQueueItem{}).
		Where("id = ? AND status = ? AND version = ?", item.ID, domain.QueueStatusPending, item.Version).
		Updates(map[string]any{
			"status":       domain.QueueStatusProcessing,
			"version":      item.Version + 1,
			"locked_until": lockedUntil,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	item.Version++
	item.Status = domain.QueueStatusProcessing
	item.LockedUntil = &lockedUntil
	return true, nil
}

// UpdateQueueItemAfterRetry records the outcome of one attempt on a locked
// item. The write is conditional on the caller's version token; losing the
// condition (e.g. the lease was reclaimed mid-flight) is reported as
// (false, nil) and the caller's outcome is discarded.
//
// Terminal transitions clear NextRetryAt; a scheduled retry sets it and
// returns the item to pending.
func UpdateQueueItemAfterRetry(ctx context.Context, db *gorm.DB, item *domain.SubmissionQueueItem) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.SubmissionQueueItem{}).
		Where("id = ? AND status = ? AND version = ?", item.ID, domain.QueueStatusProcessing, item.Version).
		Updates(map[string]any{
			"status":           item.Status,
			"retry_count":      item.RetryCount,
			"next_retry_at":    item.NextRetryAt,
			"last_error":       item.LastError,
			"last_status_code": item.LastStatusCode,
			"locked_until":     nil,
			"version":          item.Version + 1,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	item.Version++
	item.LockedUntil = nil
	return true, nil
}

// ReclaimStaleQueueItems resets processing items whose lock lease expired
// before now back to pending, counting the lost attempt as a failure.
// The next poller picks them up through GetPendingReadyForRetry. Items that
// already consumed their last retry are moved straight to failed.
//
// Returns the number of items reclaimed (either way).
func ReclaimStaleQueueItems(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	var stale []domain.SubmissionQueueItem
	err := db.WithContext(ctx).
		Where("status = ? AND locked_until IS NOT NULL AND locked_until < ?", domain.QueueStatusProcessing, now).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	var reclaimed int64
	for i := range stale {
		it := &stale[i]
		updates := map[string]any{
			"retry_count":  it.RetryCount + 1,
			"last_error":   "attempt timed out; lock lease expired",
			"locked_until": nil,
			"version":      it.Version + 1,
			"updated_at":   now,
		}
		if it.RetryCount+1 >= it.MaxRetries {
			updates["status"] = domain.QueueStatusFailed
			updates["next_retry_at"] = nil
		} else {
			updates["status"] = domain.QueueStatusPending
			updates["next_retry_at"] = now
		}
		res := db.WithContext(ctx).
			Model(&domain.SubmissionQueueItem{}).
			Where("id = ? AND status = ? AND version = ?", it.ID, domain.QueueStatusProcessing, it.Version).
			Updates(updates)
		if res.Error != nil {
			return reclaimed, res.Error
		}
		reclaimed += res.RowsAffected
	}
	return reclaimed, nil
}

// PurgeExpiredQueueItems hard-deletes items whose TTL elapsed. Only terminal
// items are purged; a pending item past its TTL indicates a stuck queue and
// is kept for inspection.
func PurgeExpiredQueueItems(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			[]string{domain.QueueStatusCompleted, domain.QueueStatusFailed}, now).
		Delete(&domain.SubmissionQueueItem{})
	return res.RowsAffected, res.Error
}
