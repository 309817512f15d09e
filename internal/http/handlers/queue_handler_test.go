package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/attendly/go-timeclock-backend/internal/domain"
	"github.com/attendly/go-timeclock-backend/internal/http/middleware"
)

const testQueueItemID = "7b7f74f4-9f0a-44f0-a5a5-2b6cf6a9c001"

func TestListQueueItems_ReturnsItems(t *testing.T) {
	h := newHarness(t)
	next := time.Date(2025, 4, 1, 9, 0, 4, 0, time.UTC)
	h.queue.items = []domain.SubmissionQueueItem{{
		ID:          testQueueItemID,
		IdentityID:  "emp-1",
		ActionKind:  domain.ActionClockIn,
		Status:      domain.QueueStatusPending,
		RetryCount:  2,
		MaxRetries:  domain.DefaultMaxRetries,
		NextRetryAt: &next,
		LastError:   "hr down",
	}}

	req := httptest.NewRequest(http.MethodGet, "/queue/items", nil)
	req.Header.Set(middleware.HeaderIdentityID, "emp-1")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`"retry_count":2`, `"status":"pending"`, `"last_error":"hr down"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %s: %s", want, body)
		}
	}
}

func TestGetQueueItem_Found(t *testing.T) {
	h := newHarness(t)
	h.queue.item = &domain.SubmissionQueueItem{
		ID:         testQueueItemID,
		IdentityID: "emp-1",
		ActionKind: domain.ActionClockOut,
		Status:     domain.QueueStatusCompleted,
	}

	req := httptest.NewRequest(http.MethodGet, "/queue/items/"+testQueueItemID, nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"completed"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestGetQueueItem_UnknownIs404(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/queue/items/"+testQueueItemID, nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetQueueItem_RejectsNonUUID(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/queue/items/nope", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}
