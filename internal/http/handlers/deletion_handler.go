// Deletion-request HTTP handlers.
//
// Endpoints for the GDPR-style erasure lifecycle:
//   - POST   /deletion-request  (submit; 30-day grace period starts)
//   - DELETE /deletion-request  (cancel, Pending only)
//   - GET    /deletion-request  (status of the most recent request)
//
// A second Pending request per identity is a conflict; cancellation after
// processing started is rejected. Terminal requests are immutable audit
// artifacts and stay retrievable.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/attendly/go-timeclock-backend/internal/services"
)

// CancelDeletionRequest is the optional JSON payload when cancelling.
type CancelDeletionRequest struct {
	// Reason is recorded on the cancelled request for the audit trail.
	Reason string `json:"reason"`
}

// SubmitDeletion registers an erasure request for the caller's
// conversations, scheduled after the grace period.
func (h *Handlers) SubmitDeletion(c *gin.Context) {
	req, err := h.deletions.Submit(c.Request.Context(), identityID(c))
	if err != nil {
		if errors.Is(err, services.ErrDeletionAlreadyPending) {
			fail(c, http.StatusConflict, ErrCodeDeletionPending, "a deletion request is already pending")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusCreated, req)
}

// CancelDeletion cancels the caller's pending deletion request.
func (h *Handlers) CancelDeletion(c *gin.Context) {
	var body CancelDeletionRequest
	// The body is optional; a bare DELETE cancels without a reason.
	_ = c.ShouldBindJSON(&body)

	req, err := h.deletions.Cancel(c.Request.Context(), identityID(c), strings.TrimSpace(body.Reason))
	if err != nil {
		if errors.Is(err, services.ErrDeletionNotCancellable) {
			fail(c, http.StatusConflict, ErrCodeNotCancellable, "no pending deletion request to cancel")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, req)
}

// DeletionStatus returns the caller's most recent deletion request.
func (h *Handlers) DeletionStatus(c *gin.Context) {
	req, err := h.deletions.Status(c.Request.Context(), identityID(c))
	if err != nil {
		if errors.Is(err, services.ErrDeletionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no deletion request on record")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, req)
}
