// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for conversation
// deletion requests (the GDPR erasure lifecycle).
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/attendly/go-timeclock-backend/internal/domain"
)

// SaveDeletionRequest inserts a new deletion request row.
func SaveDeletionRequest(ctx context.Context, db *gorm.DB, req *domain.ConversationDeletionRequest) error {
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	return db.WithContext(ctx).Create(req).Error
}

// UpdateDeletionRequest persists the mutable columns of a request. The write
// is conditional on the row still being in fromStatus, so terminal requests
// stay immutable and two concurrent sweepers cannot both claim the same
// transition; a stale expectation surfaces as ErrRecordNotFound.
func UpdateDeletionRequest(ctx context.Context, db *gorm.DB, req *domain.ConversationDeletionRequest, fromStatus string) error {
	res := db.WithContext(ctx).
		Model(&domain.ConversationDeletionRequest{}).
		Where("id = ? AND identity_id = ? AND status = ?", req.ID, req.IdentityID, fromStatus).
		Updates(map[string]any{
			"status":                req.Status,
			"completed_at":          req.CompletedAt,
			"conversations_deleted": req.ConversationsDeleted,
			"cancellation_reason":   req.CancellationReason,
			"error_message":         req.ErrorMessage,
			"updated_at":            time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetDeletionRequest fetches one request by id and owner identity.
func GetDeletionRequest(ctx context.Context, db *gorm.DB, id, identityID string) (*domain.ConversationDeletionRequest, error) {
	var req domain.ConversationDeletionRequest
	err := db.WithContext(ctx).
		Where("id = ? AND identity_id = ?", id, identityID).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetDeletionRequestByIdentity returns the most recent request for an
// identity, or ErrNotFound when none exists.
func GetDeletionRequestByIdentity(ctx context.Context, db *gorm.DB, identityID string) (*domain.ConversationDeletionRequest, error) {
	var req domain.ConversationDeletionRequest
	err := db.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Order("requested_at desc").
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetPendingDeletionRequestByIdentity returns the Pending request for an
// identity when one exists, or (nil, nil) when there is none.
func GetPendingDeletionRequestByIdentity(ctx context.Context, db *gorm.DB, identityID string) (*domain.ConversationDeletionRequest, error) {
	var req domain.ConversationDeletionRequest
	err := db.WithContext(ctx).
		Where("identity_id = ? AND status = ?", identityID, domain.DeletionStatusPending).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetAllPendingDeletionRequests returns every Pending request, oldest first,
// for the sweeper to examine.
func GetAllPendingDeletionRequests(ctx context.Context, db *gorm.DB) ([]domain.ConversationDeletionRequest, error) {
	var out []domain.ConversationDeletionRequest
	err := db.WithContext(ctx).
		Where("status = ?", domain.DeletionStatusPending).
		Order("requested_at asc").
		Find(&out).Error
	return out, err
}
