// Package services – DeletionService
//
// This file implements the GDPR erasure lifecycle for conversation data.
// A request is Pending for a grace period (default 30 days), during which the
// identity may cancel it. Once due, Process moves it through Processing to
// Completed, permanently removing every conversation the identity owns. Any
// error fails the request terminally; failed requests are surfaced for manual
// review and never retried automatically.
//
// Every transition is mirrored into the deletion audit trail, which is kept
// separate from the conversation audit log and outlives the data it describes.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/attendly/go-timeclock-backend/internal/domain"
)

// DeletionRepo defines the repository contract required by DeletionService.
type DeletionRepo interface {
	// SaveDeletionRequest inserts a new request row.
	SaveDeletionRequest(ctx context.Context, db *gorm.DB, req *domain.ConversationDeletionRequest) error

	// UpdateDeletionRequest persists the mutable columns of a request,
	// conditional on the row still being in fromStatus.
	UpdateDeletionRequest(ctx context.Context, db *gorm.DB, req *domain.ConversationDeletionRequest, fromStatus string) error

	// GetDeletionRequestByIdentity returns the most recent request.
	GetDeletionRequestByIdentity(ctx context.Context, db *gorm.DB, identityID string) (*domain.ConversationDeletionRequest, error)

	// GetPendingDeletionRequestByIdentity returns the Pending request when
	// one exists, or (nil, nil) when there is none.
	GetPendingDeletionRequestByIdentity(ctx context.Context, db *gorm.DB, identityID string) (*domain.ConversationDeletionRequest, error)

	// GetAllPendingDeletionRequests returns every Pending request, oldest first.
	GetAllPendingDeletionRequests(ctx context.Context, db *gorm.DB) ([]domain.ConversationDeletionRequest, error)
}

// ConversationPurger is the slice of the thread repository the deletion
// lifecycle needs: the bulk erase.
type ConversationPurger interface {
	DeleteAllConversations(ctx context.Context, db *gorm.DB, identityID string) (int64, error)
}

// DeletionAuditRepo receives one entry per lifecycle transition.
type DeletionAuditRepo interface {
	AppendDeletionAuditEntry(ctx context.Context, db *gorm.DB, identityID, requestID, transition, payload string) (*domain.DeletionAuditLogEntry, error)
}

// DeletionService owns the erasure request lifecycle.
type DeletionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the deletion request repository.
	Repo DeletionRepo
	// Threads performs the actual bulk erase.
	Threads ConversationPurger
	// Audit receives one entry per transition.
	Audit DeletionAuditRepo

	// GracePeriod is the delay before a request becomes eligible.
	GracePeriod time.Duration
}

// NewDeletionService constructs a DeletionService.
func NewDeletionService(db *gorm.DB, r DeletionRepo, threads ConversationPurger, audit DeletionAuditRepo, gracePeriod time.Duration) *DeletionService {
	if gracePeriod <= 0 {
		gracePeriod = domain.DeletionGracePeriod
	}
	return &DeletionService{DB: db, Repo: r, Threads: threads, Audit: audit, GracePeriod: gracePeriod}
}

// Submit files a new deletion request for the identity. At most one Pending
// request may exist per identity; a second submission is rejected.
func (s *DeletionService) Submit(ctx context.Context, identityID string) (*domain.ConversationDeletionRequest, error) {
	tr := otel.Tracer("services/DeletionService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(attribute.String("identity.id", identityID)),
	)
	defer span.End()

	existing, err := s.Repo.GetPendingDeletionRequestByIdentity(ctx, s.DB, identityID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDeletionAlreadyPending
	}

	now := time.Now().UTC()
	req := &domain.ConversationDeletionRequest{
		ID:                  uuid.NewString(),
		IdentityID:          identityID,
		RequestedAt:         now,
		ScheduledDeletionAt: now.Add(s.GracePeriod),
		Status:              domain.DeletionStatusPending,
	}
	if err := s.Repo.SaveDeletionRequest(ctx, s.DB, req); err != nil {
		return nil, err
	}
	s.audit(ctx, req, "submitted")
	return req, nil
}

// Cancel withdraws a Pending request. Requests in any other state are
// immutable and cannot be cancelled.
func (s *DeletionService) Cancel(ctx context.Context, identityID, reason string) (*domain.ConversationDeletionRequest, error) {
	req, err := s.Repo.GetPendingDeletionRequestByIdentity(ctx, s.DB, identityID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrDeletionNotCancellable
	}

	req.Status = domain.DeletionStatusCancelled
	req.CancellationReason = reason
	if err := s.Repo.UpdateDeletionRequest(ctx, s.DB, req, domain.DeletionStatusPending); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeletionNotCancellable
		}
		return nil, err
	}
	s.audit(ctx, req, "cancelled")
	return req, nil
}

// Status returns the most recent deletion request for the identity.
func (s *DeletionService) Status(ctx context.Context, identityID string) (*domain.ConversationDeletionRequest, error) {
	req, err := s.Repo.GetDeletionRequestByIdentity(ctx, s.DB, identityID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeletionNotFound
	}
	return req, err
}

// Process executes one due request: Pending -> Processing -> Completed, with
// the bulk erase in between. Any error fails the request terminally with the
// error captured; a Failed request is never retried automatically. Only a
// Pending request may enter; terminal requests are immutable.
func (s *DeletionService) Process(ctx context.Context, req *domain.ConversationDeletionRequest) error {
	if req.Status != domain.DeletionStatusPending {
		return ErrDeletionNotPending
	}

	tr := otel.Tracer("services/DeletionService")
	ctx, span := tr.Start(ctx, "Process",
		trace.WithAttributes(
			attribute.String("identity.id", req.IdentityID),
			attribute.String("request.id", req.ID),
		),
	)
	defer span.End()

	req.Status = domain.DeletionStatusProcessing
	if err := s.Repo.UpdateDeletionRequest(ctx, s.DB, req, domain.DeletionStatusPending); err != nil {
		// A concurrent sweeper claimed the row first.
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDeletionNotPending
		}
		return err
	}
	s.audit(ctx, req, "processing")

	deleted, err := s.Threads.DeleteAllConversations(ctx, s.DB, req.IdentityID)
	if err != nil {
		req.Status = domain.DeletionStatusFailed
		req.ErrorMessage = err.Error()
		if uerr := s.Repo.UpdateDeletionRequest(ctx, s.DB, req, domain.DeletionStatusProcessing); uerr != nil {
			log.Error().Err(uerr).Str("request_id", req.ID).Msg("recording deletion failure failed")
		}
		s.audit(ctx, req, "failed")
		return err
	}

	now := time.Now().UTC()
	req.Status = domain.DeletionStatusCompleted
	req.CompletedAt = &now
	req.ConversationsDeleted = deleted
	if err := s.Repo.UpdateDeletionRequest(ctx, s.DB, req, domain.DeletionStatusProcessing); err != nil {
		return err
	}
	s.audit(ctx, req, "completed")

	log.Info().
		Str("request_id", req.ID).
		Str("identity_id", req.IdentityID).
		Int64("conversations_deleted", deleted).
		Msg("deletion request completed")
	return nil
}

// ProcessDue runs Process on every Pending request whose grace period has
// elapsed at now. Per-request errors are logged and do not stop the sweep.
func (s *DeletionService) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	pending, err := s.Repo.GetAllPendingDeletionRequests(ctx, s.DB)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range pending {
		req := &pending[i]
		if !req.IsReadyForProcessing(now) {
			continue
		}
		if err := s.Process(ctx, req); err != nil {
			log.Error().Err(err).Str("request_id", req.ID).Msg("deletion request processing failed")
			continue
		}
		processed++
	}
	return processed, nil
}

// audit mirrors one lifecycle transition into the deletion audit trail.
// A lost audit row is logged, not fatal; the transition already committed.
func (s *DeletionService) audit(ctx context.Context, req *domain.ConversationDeletionRequest, transition string) {
	payload, _ := json.Marshal(map[string]any{
		"request_id":            req.ID,
		"status":                req.Status,
		"scheduled_deletion_at": req.ScheduledDeletionAt.Format(time.RFC3339Nano),
		"conversations_deleted": req.ConversationsDeleted,
		"error_message":         req.ErrorMessage,
	})
	if _, err := s.Audit.AppendDeletionAuditEntry(ctx, s.DB, req.IdentityID, req.ID, transition, string(payload)); err != nil {
		log.Error().Err(err).Str("request_id", req.ID).Msg("deletion audit append failed")
	}
}
