// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the two audit trails: the ordinary
// conversation audit log and the deletion lifecycle audit log. They are
// separate tables on purpose; deletion audit entries outlive the
// conversations they describe.
//
// Payloads are opaque JSON strings written verbatim and read back verbatim,
// so a stored entry round-trips byte-identically for its (identity, date)
// partition.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attendly/go-timeclock-backend/internal/domain"
)

// AppendAuditEntry records one conversation-affecting event.
func AppendAuditEntry(ctx context.Context, db *gorm.DB, identityID, eventType, payload string) (*domain.AuditLogEntry, error) {
	now := time.Now().UTC()
	e := &domain.AuditLogEntry{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Date:       domain.AuditDate(now),
		EventType:  eventType,
		Payload:    payload,
		CreatedAt:  now,
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// ListAuditEntries returns the audit entries of one (identity, date)
// partition in insertion order.
func ListAuditEntries(ctx context.Context, db *gorm.DB, identityID, date string) ([]domain.AuditLogEntry, error) {
	var out []domain.AuditLogEntry
	err := db.WithContext(ctx).
		Where("identity_id = ? AND date = ?", identityID, date).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// AppendDeletionAuditEntry records one transition of a deletion request.
func AppendDeletionAuditEntry(ctx context.Context, db *gorm.DB, identityID, requestID, transition, payload string) (*domain.DeletionAuditLogEntry, error) {
	now := time.Now().UTC()
	e := &domain.DeletionAuditLogEntry{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Date:       domain.AuditDate(now),
		RequestID:  requestID,
		Transition: transition,
		Payload:    payload,
		CreatedAt:  now,
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// ListDeletionAuditEntries returns the deletion audit entries of one
// (identity, date) partition in insertion order.
func ListDeletionAuditEntries(ctx context.Context, db *gorm.DB, identityID, date string) ([]domain.DeletionAuditLogEntry, error) {
	var out []domain.DeletionAuditLogEntry
	err := db.WithContext(ctx).
		Where("identity_id = ? AND date = ?", identityID, date).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
