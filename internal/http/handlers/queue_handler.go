// Queue HTTP handlers.
//
// Read-only endpoints that let a client inspect its durable submission
// queue:
//   - GET /queue/items       (list, newest first)
//   - GET /queue/items/{id}  (status, retry count, last error)
//
// Writes to the queue only ever happen through the mediator bus; there is no
// HTTP surface for creating or mutating items.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/attendly/go-timeclock-backend/internal/domain"
	"github.com/attendly/go-timeclock-backend/internal/services"
	"github.com/attendly/go-timeclock-backend/internal/utils"
)

// ListQueueItemsResponse wraps the identity's queue items.
type ListQueueItemsResponse struct {
	Items []domain.SubmissionQueueItem `json:"items"`
}

// ListQueueItems returns the caller's queue items, newest first. The limit
// query param caps the result (default 50, max 200).
func (h *Handlers) ListQueueItems(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 50)
	if limit > 200 {
		limit = 200
	}

	items, err := h.queue.ListForIdentity(c.Request.Context(), identityID(c), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListQueueItemsResponse{Items: items})
}

// GetQueueItem returns one queue item owned by the caller.
func (h *Handlers) GetQueueItem(c *gin.Context) {
	itemID := c.Param("id")
	if _, err := uuid.Parse(itemID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "queue item id must be a UUID")
		return
	}

	item, err := h.queue.Get(c.Request.Context(), identityID(c), itemID)
	if err != nil {
		if errors.Is(err, services.ErrQueueItemNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "queue item not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, item)
}
