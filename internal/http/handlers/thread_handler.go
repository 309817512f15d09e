// Thread HTTP handlers.
//
// This file exposes REST endpoints for conversation thread resources:
//   - POST /threads                (create)
//   - GET  /threads                (list, paginated, weak ETag support)
//   - GET  /threads/{id}/messages  (message history, paginated)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses (including
// conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/attendly/go-timeclock-backend/internal/domain"
	"github.com/attendly/go-timeclock-backend/internal/gateway"
	"github.com/attendly/go-timeclock-backend/internal/http/middleware"
	"github.com/attendly/go-timeclock-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ThreadService defines the conversation-thread operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context.
type ThreadService interface {
	// Create starts a new thread for the identity in the given client session.
	Create(ctx context.Context, identityID, sessionID, title string) (*domain.ConversationThread, error)
	// Get fetches one thread, enforcing ownership.
	Get(ctx context.Context, identityID, threadID string) (*domain.ConversationThread, error)
	// ListPage returns a page of threads and the total count.
	ListPage(ctx context.Context, identityID string, page, pageSize int) ([]domain.ConversationThread, int64, error)
	// Stats returns the (count, latest update) fingerprint used for weak ETags.
	Stats(ctx context.Context, identityID string) (int64, *time.Time, error)
	// MessagesPage returns a page of messages within an owned thread.
	MessagesPage(ctx context.Context, identityID, threadID string, page, pageSize int) ([]domain.ThreadMessage, int64, error)
	// AppendUserMessage persists one user utterance.
	AppendUserMessage(ctx context.Context, identityID, threadID, content, detectedAction string) (*domain.ThreadMessage, error)
	// AppendAgentMessage persists one agent reply.
	AppendAgentMessage(ctx context.Context, threadID, content string) (*domain.ThreadMessage, error)
	// ApplyConfirmedAction flips thread state after a confirmed external write.
	ApplyConfirmedAction(ctx context.Context, identityID, threadID, actionKind string, at time.Time) (*domain.ConversationThread, error)
}

// QueueReader exposes the read side of the submission queue to clients.
type QueueReader interface {
	ListForIdentity(ctx context.Context, identityID string, limit int) ([]domain.SubmissionQueueItem, error)
	Get(ctx context.Context, identityID, id string) (*domain.SubmissionQueueItem, error)
}

// DeletionRequests defines the erasure-request lifecycle operations.
type DeletionRequests interface {
	Submit(ctx context.Context, identityID string) (*domain.ConversationDeletionRequest, error)
	Cancel(ctx context.Context, identityID, reason string) (*domain.ConversationDeletionRequest, error)
	Status(ctx context.Context, identityID string) (*domain.ConversationDeletionRequest, error)
}

// CollisionDetector surfaces advisory concurrent-session warnings.
type CollisionDetector interface {
	DetectCollision(ctx context.Context, identityID, currentSessionID string) *domain.SessionCollision
}

// IdempotencyRecorder persists a processed Idempotency-Key so a replayed
// request can be detected by the middleware lookup.
type IdempotencyRecorder interface {
	Record(ctx context.Context, identityID, threadID, key, messageID string, status int) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for threads, messages, queue items, and
// deletion requests. It depends on abstract service interfaces to keep
// transport concerns separate from business logic.
type Handlers struct {
	threads   ThreadService
	queue     QueueReader
	deletions DeletionRequests
	sessions  CollisionDetector
	gateway   gateway.ExternalGateway
	bus       gateway.FailurePublisher
	idem      IdempotencyRecorder
}

// New constructs a Handlers instance bound to the given collaborators.
// sessions and idem may be nil; the corresponding features degrade to no-ops.
func New(threads ThreadService, queue QueueReader, deletions DeletionRequests, sessions CollisionDetector, gw gateway.ExternalGateway, bus gateway.FailurePublisher, idem IdempotencyRecorder) *Handlers {
	return &Handlers{
		threads:   threads,
		queue:     queue,
		deletions: deletions,
		sessions:  sessions,
		gateway:   gw,
		bus:       bus,
		idem:      idem,
	}
}

// identityID extracts the caller identity from the Gin context (set by the
// Identity middleware). If absent, it falls back to the X-Identity-ID header
// directly (tests use it), and finally to "demo-identity".
func identityID(c *gin.Context) string {
	if id := middleware.IdentityFrom(c); id != "" {
		return id
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(middleware.HeaderIdentityID)); h != "" {
			return h
		}
	}
	return "demo-identity"
}

//
// DTOs
//

// CreateThreadRequest is the JSON payload for creating a thread.
type CreateThreadRequest struct {
	// Title optionally names the thread; a default is used when empty.
	Title string `json:"title"`
	// SessionID identifies the client session opening the thread.
	SessionID string `json:"session_id"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListThreadsResponse wraps a page of threads and pagination information.
type ListThreadsResponse struct {
	Threads    []domain.ConversationThread `json:"threads"`
	Pagination Pagination                  `json:"pagination"`
}

// ListMessagesResponse wraps a page of messages and pagination information.
type ListMessagesResponse struct {
	Messages   []domain.ThreadMessage `json:"messages"`
	Pagination Pagination             `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// paginationFor builds the response metadata for one page.
func paginationFor(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// CreateThread creates a thread for the current identity and returns the
// thread resource with 201.
func (h *Handlers) CreateThread(c *gin.Context) {
	var req CreateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	t, err := h.threads.Create(c.Request.Context(), identityID(c), strings.TrimSpace(req.SessionID), strings.TrimSpace(req.Title))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, t)
}

// ListThreads returns a page of the identity's threads, most recently active
// first. Supports a weak ETag via If-None-Match and may return 304.
func (h *Handlers) ListThreads(c *gin.Context) {
	ctx := c.Request.Context()
	id := identityID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.threads.Stats(ctx, id); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"threads:%s:%d:%d"`, id, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.threads.ListPage(ctx, id, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListThreadsResponse{
		Threads:    items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// ListMessages returns a page of messages for a thread the identity owns.
func (h *Handlers) ListMessages(c *gin.Context) {
	threadID := c.Param("id")
	if _, err := uuid.Parse(threadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thread id must be a UUID")
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.threads.MessagesPage(c.Request.Context(), identityID(c), threadID, page, pageSize)
	if err != nil {
		if isNotFound(err) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: paginationFor(page, pageSize, total),
	})
}
