package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/attendly/go-timeclock-backend/internal/domain"
	"github.com/attendly/go-timeclock-backend/internal/services"
)

func pendingDeletion() *domain.ConversationDeletionRequest {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	return &domain.ConversationDeletionRequest{
		ID:                  "d1",
		IdentityID:          "emp-1",
		RequestedAt:         now,
		ScheduledDeletionAt: now.Add(domain.DeletionGracePeriod),
		Status:              domain.DeletionStatusPending,
	}
}

func TestSubmitDeletion_Returns201(t *testing.T) {
	h := newHarness(t)
	h.deletions.req = pendingDeletion()

	req := httptest.NewRequest(http.MethodPost, "/deletion-request", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"Pending"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestSubmitDeletion_SecondPendingIsConflict(t *testing.T) {
	h := newHarness(t)
	h.deletions.submitErr = services.ErrDeletionAlreadyPending

	req := httptest.NewRequest(http.MethodPost, "/deletion-request", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), ErrCodeDeletionPending) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestCancelDeletion_RecordsReason(t *testing.T) {
	h := newHarness(t)
	r := pendingDeletion()
	r.Status = domain.DeletionStatusCancelled
	h.deletions.req = r

	req := httptest.NewRequest(http.MethodDelete, "/deletion-request", strings.NewReader(`{"reason":"changed my mind"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if h.deletions.reason != "changed my mind" {
		t.Fatalf("reason = %q", h.deletions.reason)
	}
}

func TestCancelDeletion_BareDeleteWorks(t *testing.T) {
	h := newHarness(t)
	h.deletions.req = pendingDeletion()

	req := httptest.NewRequest(http.MethodDelete, "/deletion-request", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCancelDeletion_ProcessingIsConflict(t *testing.T) {
	h := newHarness(t)
	h.deletions.cancelErr = services.ErrDeletionNotCancellable

	req := httptest.NewRequest(http.MethodDelete, "/deletion-request", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), ErrCodeNotCancellable) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestDeletionStatus_NoneOnRecordIs404(t *testing.T) {
	h := newHarness(t)
	h.deletions.statusErr = services.ErrDeletionNotFound

	req := httptest.NewRequest(http.MethodGet, "/deletion-request", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestDeletionStatus_ReturnsLatest(t *testing.T) {
	h := newHarness(t)
	r := pendingDeletion()
	r.Status = domain.DeletionStatusCompleted
	r.ConversationsDeleted = 12
	h.deletions.req = r

	req := httptest.NewRequest(http.MethodGet, "/deletion-request", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"conversations_deleted":12`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}
