package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/attendly/go-timeclock-backend/internal/domain"
	"github.com/attendly/go-timeclock-backend/internal/http/middleware"
)

func TestCreateThread_Returns201(t *testing.T) {
	h := newHarness(t)

	body := strings.NewReader(`{"title":"  Morning shift ","session_id":"sess-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/threads", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderIdentityID, "emp-1")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if h.threads.created == nil || h.threads.created.IdentityID != "emp-1" || h.threads.created.SessionID != "sess-1" {
		t.Fatalf("created = %+v", h.threads.created)
	}
}

func TestCreateThread_RejectsBadJSON(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/threads", strings.NewReader("{"))
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), ErrCodeBadRequest) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestListThreads_PaginationEnvelope(t *testing.T) {
	h := newHarness(t)
	h.threads.threads = []domain.ConversationThread{{ID: testThreadID}}
	h.threads.total = 41

	req := httptest.NewRequest(http.MethodGet, "/threads?page=2&page_size=20", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`"total":41`, `"page":2`, `"total_pages":3`, `"has_next":true`} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %s: %s", want, body)
		}
	}
}

func TestListThreads_WeakETag304(t *testing.T) {
	h := newHarness(t)
	ts := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	h.threads.statsCount = 3
	h.threads.statsTS = &ts

	req := httptest.NewRequest(http.MethodGet, "/threads", nil)
	req.Header.Set(middleware.HeaderIdentityID, "emp-1")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	etag := w.Header().Get("ETag")
	want := fmt.Sprintf(`W/"threads:emp-1:3:%d"`, ts.Unix())
	if etag != want {
		t.Fatalf("etag = %q, want %q", etag, want)
	}

	req = httptest.NewRequest(http.MethodGet, "/threads", nil)
	req.Header.Set(middleware.HeaderIdentityID, "emp-1")
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", w.Code)
	}
}

func TestListMessages_UnknownThreadIs404(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/threads/"+testThreadID+"/messages", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestListMessages_RejectsNonUUID(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/threads/not-a-uuid/messages", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestListMessages_ReturnsPage(t *testing.T) {
	h := newHarness(t)
	h.threads.thread = &domain.ConversationThread{ID: testThreadID, IdentityID: "emp-1"}
	h.threads.messages = []domain.ThreadMessage{
		{ID: "m1", Role: "user", Content: "clock me in"},
		{ID: "m2", Role: "agent", Content: "done"},
	}

	req := httptest.NewRequest(http.MethodGet, "/threads/"+testThreadID+"/messages", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"total":2`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}
