package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attendly/go-timeclock-backend/internal/domain"
)

func newDeletionRequest(identity string) *domain.ConversationDeletionRequest {
	now := time.Now().UTC()
	return &domain.ConversationDeletionRequest{
		ID:                  uuid.NewString(),
		IdentityID:          identity,
		RequestedAt:         now,
		ScheduledDeletionAt: now.Add(domain.DeletionGracePeriod),
		Status:              domain.DeletionStatusPending,
	}
}

func TestSaveAndGetDeletionRequest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	req := newDeletionRequest("emp-1")
	if err := SaveDeletionRequest(ctx, db, req); err != nil {
		t.Fatalf("SaveDeletionRequest: %v", err)
	}

	got, err := GetDeletionRequest(ctx, db, req.ID, "emp-1")
	if err != nil {
		t.Fatalf("GetDeletionRequest: %v", err)
	}
	if got.Status != domain.DeletionStatusPending {
		t.Fatalf("status = %q; want Pending", got.Status)
	}
}

func TestGetPendingDeletionRequestByIdentity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	got, err := GetPendingDeletionRequestByIdentity(ctx, db, "emp-1")
	if err != nil || got != nil {
		t.Fatalf("empty lookup = (%v, %v); want (nil, nil)", got, err)
	}

	req := newDeletionRequest("emp-1")
	SaveDeletionRequest(ctx, db, req)

	got, err = GetPendingDeletionRequestByIdentity(ctx, db, "emp-1")
	if err != nil {
		t.Fatalf("GetPendingDeletionRequestByIdentity: %v", err)
	}
	if got == nil || got.ID != req.ID {
		t.Fatalf("pending request = %+v; want %q", got, req.ID)
	}
}

func TestUpdateDeletionRequest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	req := newDeletionRequest("emp-1")
	SaveDeletionRequest(ctx, db, req)

	now := time.Now().UTC()
	req.Status = domain.DeletionStatusCompleted
	req.CompletedAt = &now
	req.ConversationsDeleted = 4
	if err := UpdateDeletionRequest(ctx, db, req, domain.DeletionStatusPending); err != nil {
		t.Fatalf("UpdateDeletionRequest: %v", err)
	}

	got, _ := GetDeletionRequest(ctx, db, req.ID, "emp-1")
	if got.Status != domain.DeletionStatusCompleted || got.ConversationsDeleted != 4 {
		t.Fatalf("unexpected request after update: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Fatalf("CompletedAt not persisted")
	}

	// Pending lookup no longer matches a terminal request.
	pending, err := GetPendingDeletionRequestByIdentity(ctx, db, "emp-1")
	if err != nil || pending != nil {
		t.Fatalf("terminal request still reported pending: (%v, %v)", pending, err)
	}
}

func TestUpdateDeletionRequestConditionalOnStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	req := newDeletionRequest("emp-1")
	SaveDeletionRequest(ctx, db, req)

	req.Status = domain.DeletionStatusCompleted
	if err := UpdateDeletionRequest(ctx, db, req, domain.DeletionStatusPending); err != nil {
		t.Fatalf("UpdateDeletionRequest: %v", err)
	}

	// The row is terminal now; a write expecting Pending must not touch it.
	req.Status = domain.DeletionStatusProcessing
	if err := UpdateDeletionRequest(ctx, db, req, domain.DeletionStatusPending); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}

	got, _ := GetDeletionRequest(ctx, db, req.ID, "emp-1")
	if got.Status != domain.DeletionStatusCompleted {
		t.Fatalf("status = %q; terminal row was mutated", got.Status)
	}
}

func TestGetAllPendingDeletionRequestsOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	older := newDeletionRequest("emp-1")
	older.RequestedAt = time.Now().UTC().Add(-time.Hour)
	SaveDeletionRequest(ctx, db, older)

	newer := newDeletionRequest("emp-2")
	SaveDeletionRequest(ctx, db, newer)

	out, err := GetAllPendingDeletionRequests(ctx, db)
	if err != nil {
		t.Fatalf("GetAllPendingDeletionRequests: %v", err)
	}
	if len(out) != 2 || out[0].ID != older.ID {
		t.Fatalf("unexpected order: %+v", out)
	}
}
