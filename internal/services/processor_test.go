package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/attendly/go-timeclock-backend/internal/config"
	"github.com/attendly/go-timeclock-backend/internal/domain"
	"github.com/attendly/go-timeclock-backend/internal/gateway"
)

// fakeGateway returns a scripted result and records the calls it saw.
type fakeGateway struct {
	mu      sync.Mutex
	result  gateway.Result
	actions []gateway.Action
	ctxs    []context.Context
}

func (g *fakeGateway) Submit(ctx context.Context, action gateway.Action) gateway.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.actions = append(g.actions, action)
	g.ctxs = append(g.ctxs, ctx)
	return g.result
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.actions)
}

func testProcessor(qr *fakeQueueRepo, tr *fakeThreadRepo, g gateway.ExternalGateway) *Processor {
	cfg := config.QueueConfig{
		MaxRetries:     3,
		PollInterval:   10 * time.Millisecond,
		BatchSize:      5,
		AttemptTimeout: 30 * time.Second,
		Workers:        2,
		ItemTTL:        7 * 24 * time.Hour,
	}
	qs := NewQueueService(nil, qr, &fakeAuditRepo{}, cfg)
	cs := NewConversationService(nil, tr, &fakeAuditRepo{})
	return NewProcessor(qs, cs, g, cfg)
}

func lockedTestItem() domain.SubmissionQueueItem {
	return domain.SubmissionQueueItem{
		ID:              "q1",
		IdentityID:      "emp-1",
		ActionKind:      domain.ActionClockIn,
		TargetTimestamp: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
		ThreadID:        "t1",
		MessageID:       "m1",
		Status:          domain.QueueStatusPending,
		MaxRetries:      3,
	}
}

func TestProcessOne_SuccessCompletesAndFlipsState(t *testing.T) {
	qr := &fakeQueueRepo{lockWins: true, updateWrote: true}
	tr := &fakeThreadRepo{getThread: &domain.ConversationThread{ID: "t1", IdentityID: "emp-1"}}
	g := &fakeGateway{result: gateway.Result{Success: true, StatusCode: 201}}
	p := testProcessor(qr, tr, g)

	p.processOne(context.Background(), lockedTestItem())

	if g.calls() != 1 {
		t.Fatalf("gateway calls = %d", g.calls())
	}
	if g.actions[0].Kind != domain.ActionClockIn || g.actions[0].IdentityID != "emp-1" {
		t.Fatalf("action = %+v", g.actions[0])
	}
	if qr.updatedItem == nil || qr.updatedItem.Status != domain.QueueStatusCompleted {
		t.Fatalf("queue outcome = %+v", qr.updatedItem)
	}
	// Confirmed write: the thread state must reflect the action.
	if tr.updated == nil || !tr.updated.State.IsClockedIn {
		t.Fatalf("thread state = %+v", tr.updated)
	}
}

func TestProcessOne_LostLockSkipsGateway(t *testing.T) {
	qr := &fakeQueueRepo{lockWins: false}
	g := &fakeGateway{result: gateway.Result{Success: true}}
	p := testProcessor(qr, &fakeThreadRepo{}, g)

	p.processOne(context.Background(), lockedTestItem())

	if g.calls() != 0 {
		t.Fatalf("gateway called after lost lock")
	}
}

func TestProcessOne_FailureSchedulesRetryWithoutStateChange(t *testing.T) {
	qr := &fakeQueueRepo{lockWins: true, updateWrote: true}
	tr := &fakeThreadRepo{getThread: &domain.ConversationThread{ID: "t1"}}
	g := &fakeGateway{result: gateway.Result{Success: false, ErrorMessage: "hr down", StatusCode: 503}}
	p := testProcessor(qr, tr, g)

	p.processOne(context.Background(), lockedTestItem())

	if qr.updatedItem == nil || qr.updatedItem.Status != domain.QueueStatusPending {
		t.Fatalf("queue outcome = %+v", qr.updatedItem)
	}
	if qr.updatedItem.RetryCount != 1 || qr.updatedItem.LastError != "hr down" {
		t.Fatalf("attempt not booked: %+v", qr.updatedItem)
	}
	// Unconfirmed submission must never mutate conversation state.
	if tr.updated != nil {
		t.Fatalf("thread state mutated on failure: %+v", tr.updated)
	}
}

func TestProcessOne_AppliesAttemptDeadline(t *testing.T) {
	qr := &fakeQueueRepo{lockWins: true, updateWrote: true}
	g := &fakeGateway{result: gateway.Result{Success: false}}
	p := testProcessor(qr, &fakeThreadRepo{}, g)

	p.processOne(context.Background(), lockedTestItem())

	if g.calls() != 1 {
		t.Fatalf("gateway calls = %d", g.calls())
	}
	deadline, ok := g.ctxs[0].Deadline()
	if !ok {
		t.Fatal("attempt context has no deadline")
	}
	if until := time.Until(deadline); until > 31*time.Second {
		t.Fatalf("deadline %v exceeds attempt timeout", until)
	}
}

func TestRun_DrainsEligibleItemsUntilCancelled(t *testing.T) {
	qr := &fakeQueueRepo{
		lockWins:    true,
		updateWrote: true,
		readyItems:  []domain.SubmissionQueueItem{lockedTestItem()},
	}
	tr := &fakeThreadRepo{getThread: &domain.ConversationThread{ID: "t1"}}
	g := &fakeGateway{result: gateway.Result{Success: true, StatusCode: 200}}
	p := testProcessor(qr, tr, g)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for g.calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("processor never picked up the eligible item")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop on cancel")
	}
}
