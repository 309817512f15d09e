package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/attendly/go-timeclock-backend/internal/domain"
	"github.com/attendly/go-timeclock-backend/internal/events"
	"github.com/attendly/go-timeclock-backend/internal/gateway"
	"github.com/attendly/go-timeclock-backend/internal/http/middleware"
	"github.com/attendly/go-timeclock-backend/internal/services"
)

// testThreadID is a fixed, valid UUID used across handler tests.
const testThreadID = "141add05-4415-4938-b5a1-17e0d3171aff"

// ----- Fakes -----

type fakeThreads struct {
	thread  *domain.ConversationThread
	threads []domain.ConversationThread
	total   int64

	statsCount int64
	statsTS    *time.Time

	messages []domain.ThreadMessage

	userMsg    *domain.ThreadMessage
	userErr    error
	agentMsgs  []string
	applied    []string
	applyErr   error
	created    *domain.ConversationThread
	createErr  error
}

func (f *fakeThreads) Create(ctx context.Context, identityID, sessionID, title string) (*domain.ConversationThread, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = &domain.ConversationThread{ID: testThreadID, IdentityID: identityID, SessionID: sessionID, Title: title}
	return f.created, nil
}

func (f *fakeThreads) Get(ctx context.Context, identityID, threadID string) (*domain.ConversationThread, error) {
	if f.thread == nil {
		return nil, services.ErrThreadNotFound
	}
	return f.thread, nil
}

func (f *fakeThreads) ListPage(ctx context.Context, identityID string, page, pageSize int) ([]domain.ConversationThread, int64, error) {
	return f.threads, f.total, nil
}

func (f *fakeThreads) Stats(ctx context.Context, identityID string) (int64, *time.Time, error) {
	return f.statsCount, f.statsTS, nil
}

func (f *fakeThreads) MessagesPage(ctx context.Context, identityID, threadID string, page, pageSize int) ([]domain.ThreadMessage, int64, error) {
	if f.thread == nil {
		return nil, 0, services.ErrThreadNotFound
	}
	return f.messages, int64(len(f.messages)), nil
}

func (f *fakeThreads) AppendUserMessage(ctx context.Context, identityID, threadID, content, detectedAction string) (*domain.ThreadMessage, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	if f.thread == nil {
		return nil, services.ErrThreadNotFound
	}
	if strings.TrimSpace(content) == "" {
		return nil, services.ErrEmptyMessage
	}
	if f.userMsg == nil {
		f.userMsg = &domain.ThreadMessage{ID: "m1", ThreadID: threadID, Role: "user", Content: content, DetectedAction: detectedAction}
	}
	return f.userMsg, nil
}

func (f *fakeThreads) AppendAgentMessage(ctx context.Context, threadID, content string) (*domain.ThreadMessage, error) {
	f.agentMsgs = append(f.agentMsgs, content)
	return &domain.ThreadMessage{ID: "a1", ThreadID: threadID, Role: "agent", Content: content}, nil
}

func (f *fakeThreads) ApplyConfirmedAction(ctx context.Context, identityID, threadID, actionKind string, at time.Time) (*domain.ConversationThread, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.applied = append(f.applied, actionKind)
	t := f.thread
	if t == nil {
		t = &domain.ConversationThread{ID: threadID, IdentityID: identityID}
	}
	t.State.IsClockedIn = actionKind == domain.ActionClockIn
	t.State.LastAction = actionKind
	return t, nil
}

type fakeQueueReader struct {
	items []domain.SubmissionQueueItem
	item  *domain.SubmissionQueueItem
}

func (f *fakeQueueReader) ListForIdentity(ctx context.Context, identityID string, limit int) ([]domain.SubmissionQueueItem, error) {
	return f.items, nil
}

func (f *fakeQueueReader) Get(ctx context.Context, identityID, id string) (*domain.SubmissionQueueItem, error) {
	if f.item == nil {
		return nil, services.ErrQueueItemNotFound
	}
	return f.item, nil
}

type fakeDeletions struct {
	req       *domain.ConversationDeletionRequest
	submitErr error
	cancelErr error
	statusErr error
	reason    string
}

func (f *fakeDeletions) Submit(ctx context.Context, identityID string) (*domain.ConversationDeletionRequest, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.req, nil
}

func (f *fakeDeletions) Cancel(ctx context.Context, identityID, reason string) (*domain.ConversationDeletionRequest, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.reason = reason
	return f.req, nil
}

func (f *fakeDeletions) Status(ctx context.Context, identityID string) (*domain.ConversationDeletionRequest, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.req, nil
}

type fakeSessions struct {
	collision *domain.SessionCollision
}

func (f *fakeSessions) DetectCollision(ctx context.Context, identityID, currentSessionID string) *domain.SessionCollision {
	return f.collision
}

type fakeGateway struct {
	result  gateway.Result
	actions []gateway.Action
}

func (g *fakeGateway) Submit(ctx context.Context, action gateway.Action) gateway.Result {
	g.actions = append(g.actions, action)
	return g.result
}

type fakeBus struct {
	published []events.SubmissionFailed
}

func (b *fakeBus) PublishSubmissionFailed(ctx context.Context, ev events.SubmissionFailed) {
	b.published = append(b.published, ev)
}

type fakeIdem struct {
	recorded []string
}

func (f *fakeIdem) Record(ctx context.Context, identityID, threadID, key, messageID string, status int) error {
	f.recorded = append(f.recorded, key)
	return nil
}

// ----- Router harness -----

type harness struct {
	threads   *fakeThreads
	queue     *fakeQueueReader
	deletions *fakeDeletions
	sessions  *fakeSessions
	gateway   *fakeGateway
	bus       *fakeBus
	idem      *fakeIdem
	router    *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		threads:   &fakeThreads{},
		queue:     &fakeQueueReader{},
		deletions: &fakeDeletions{},
		sessions:  &fakeSessions{},
		gateway:   &fakeGateway{result: gateway.Result{Success: true, StatusCode: 201}},
		bus:       &fakeBus{},
		idem:      &fakeIdem{},
	}

	hs := New(h.threads, h.queue, h.deletions, h.sessions, h.gateway, h.bus, h.idem)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Identity())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, func(ctx context.Context, identityID, threadID, key string, now time.Time) (bool, error) {
		// Replays are simulated by keys with a fixed prefix.
		return strings.HasPrefix(key, "replayed-"), nil
	}))
	r.POST("/threads", hs.CreateThread)
	r.GET("/threads", hs.ListThreads)
	r.GET("/threads/:id/messages", hs.ListMessages)
	r.POST("/threads/:id/messages", hs.PostMessage)
	r.GET("/queue/items", hs.ListQueueItems)
	r.GET("/queue/items/:id", hs.GetQueueItem)
	r.POST("/deletion-request", hs.SubmitDeletion)
	r.DELETE("/deletion-request", hs.CancelDeletion)
	r.GET("/deletion-request", hs.DeletionStatus)
	h.router = r
	return h
}

// decodeSSE extracts the JSON event payloads from an SSE body, skipping
// comment frames.
func decodeSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" || strings.HasPrefix(frame, ":") {
			continue
		}
		payload := strings.TrimPrefix(frame, "data: ")
		var ev map[string]any
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("bad SSE frame %q: %v", frame, err)
		}
		out = append(out, ev)
	}
	return out
}

// eventTypes projects the type field of decoded events.
func eventTypes(evs []map[string]any) []string {
	types := make([]string, len(evs))
	for i, ev := range evs {
		types[i], _ = ev["type"].(string)
	}
	return types
}
