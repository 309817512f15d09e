// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for conversation
// threads and their messages.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a thread is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Every query is keyed by the owner identity so lookups stay inside one
// partition. DeleteAllConversations is the only bulk write; it is reserved
// for the deletion lifecycle and removes rows permanently (no soft-delete
// resurrection).
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attendly/go-timeclock-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateThread inserts a new ConversationThread owned by identityID for the
// given client session. The thread ID is a randomly generated UUID and
// CreatedAt is set to UTC.
func CreateThread(ctx context.Context, db *gorm.DB, identityID, sessionID, title string) (*domain.ConversationThread, error) {
	now := time.Now().UTC()
	t := &domain.ConversationThread{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		SessionID:  sessionID,
		Title:      title,
		State:      domain.ConversationState{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// GetThread fetches a single thread by its ID and owner. If the record does
// not exist, it returns ErrNotFound.
func GetThread(ctx context.Context, db *gorm.DB, id, identityID string) (*domain.ConversationThread, error) {
	var t domain.ConversationThread
	err := db.WithContext(ctx).
		Where("id = ? AND identity_id = ?", id, identityID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateThread persists the mutable columns of a thread (title, state,
// session id, expiry), bumping UpdatedAt. Returns ErrNotFound when the
// thread is missing or not owned by the identity; a thread removed by the
// deletion lifecycle stays gone.
func UpdateThread(ctx context.Context, db *gorm.DB, t *domain.ConversationThread) error {
	res := db.WithContext(ctx).
		Model(&domain.ConversationThread{}).
		Where("id = ? AND identity_id = ?", t.ID, t.IdentityID).
		Updates(map[string]any{
			"title":      t.Title,
			"session_id": t.SessionID,
			"state":      t.State,
			"expires_at": t.ExpiresAt,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetRecentThreads returns up to limit threads for an identity ordered by
// most recent activity first.
func GetRecentThreads(ctx context.Context, db *gorm.DB, identityID string, limit int) ([]domain.ConversationThread, error) {
	var out []domain.ConversationThread
	err := db.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Order("updated_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetThreadsActiveSince returns threads for an identity whose last activity
// falls inside the trailing window starting at since. Used by session
// collision detection.
func GetThreadsActiveSince(ctx context.Context, db *gorm.DB, identityID string, since time.Time) ([]domain.ConversationThread, error) {
	var out []domain.ConversationThread
	err := db.WithContext(ctx).
		Where("identity_id = ? AND updated_at >= ?", identityID, since).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}

// CountThreads returns the total number of threads owned by identityID.
func CountThreads(ctx context.Context, db *gorm.DB, identityID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ConversationThread{}).
		Where("identity_id = ?", identityID).
		Count(&total).Error
	return total, err
}

// DeleteThread removes one thread (and, via FK cascade, its messages).
// The delete is permanent: it bypasses the soft-delete marker so the thread
// id cannot be resurrected by a later update.
func DeleteThread(ctx context.Context, db *gorm.DB, id, identityID string) error {
	res := db.WithContext(ctx).
		Unscoped().
		Where("id = ? AND identity_id = ?", id, identityID).
		Delete(&domain.ConversationThread{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteAllConversations permanently removes every thread and message owned
// by identityID inside one transaction and returns the number of threads
// deleted. Reserved for the deletion lifecycle. A concurrent UpdateThread on
// the same identity either commits before the delete or loses to it
// (last-writer-wins); it never resurrects a deleted thread because updates
// match zero rows afterwards.
func DeleteAllConversations(ctx context.Context, db *gorm.DB, identityID string) (int64, error) {
	var deleted int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Messages first so the count reflects threads only.
		if err := tx.Unscoped().
			Where("thread_id IN (?)", tx.Model(&domain.ConversationThread{}).
				Select("id").Where("identity_id = ?", identityID)).
			Delete(&domain.ThreadMessage{}).Error; err != nil {
			return err
		}
		res := tx.Unscoped().
			Where("identity_id = ?", identityID).
			Delete(&domain.ConversationThread{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

// AppendMessage inserts a message at the end of a thread and bumps the
// thread's UpdatedAt. Ordering is insertion order; messages are never
// updated after creation.
func AppendMessage(ctx context.Context, db *gorm.DB, threadID, role, content, detectedAction string) (*domain.ThreadMessage, error) {
	now := time.Now().UTC()
	m := &domain.ThreadMessage{
		ID:             uuid.NewString(),
		ThreadID:       threadID,
		Role:           role,
		Content:        content,
		DetectedAction: detectedAction,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&domain.ConversationThread{}).
			Where("id = ?", threadID).
			Update("updated_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns all messages of a thread in insertion order.
func ListMessages(ctx context.Context, db *gorm.DB, threadID string) ([]domain.ThreadMessage, error) {
	var out []domain.ThreadMessage
	err := db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// CountMessages returns the number of messages in a thread.
func CountMessages(ctx context.Context, db *gorm.DB, threadID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ThreadMessage{}).
		Where("thread_id = ?", threadID).
		Count(&total).Error
	return total, err
}

// ListMessagesPage returns a page of messages within a thread, oldest first.
func ListMessagesPage(ctx context.Context, db *gorm.DB, threadID string, offset, limit int) ([]domain.ThreadMessage, error) {
	var out []domain.ThreadMessage
	err := db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
