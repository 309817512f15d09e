// Package events provides the in-process mediator that decouples the HR
// gateway from the submission queue. The gateway side publishes a
// SubmissionFailed event when an external write does not stick; a subscriber
// owned by the queue wiring performs the enqueue. Neither component imports
// the other.
package events

import (
	"context"
	"sync"
	"time"
)

// SubmissionFailed describes one external write that must be retried
// durably. It carries everything Enqueue needs so the subscriber does not
// have to reach back into the gateway.
type SubmissionFailed struct {
	IdentityID      string
	ActionKind      string
	TargetTimestamp time.Time
	ThreadID        string
	MessageID       string
	ErrorMessage    string
	StatusCode      int
	Context         map[string]any
}

// SubmissionFailedHandler consumes one failure event. Handlers run
// synchronously on the publisher's goroutine so that the durable enqueue has
// happened before the user is told "queued".
type SubmissionFailedHandler func(ctx context.Context, ev SubmissionFailed)

// Bus is a minimal synchronous pub/sub hub. It is safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers []SubmissionFailedHandler
}

// NewBus returns an empty Bus.
func NewBus() *Bus { return &Bus{} }

// SubscribeSubmissionFailed registers a handler for failure events.
// Registration order is delivery order.
func (b *Bus) SubscribeSubmissionFailed(h SubmissionFailedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// PublishSubmissionFailed delivers ev to every registered handler in order.
// Delivery is synchronous: when this returns, all handlers have run.
func (b *Bus) PublishSubmissionFailed(ctx context.Context, ev SubmissionFailed) {
	b.mu.RLock()
	hs := make([]SubmissionFailedHandler, len(b.handlers))
	copy(hs, b.handlers)
	b.mu.RUnlock()

	for _, h := range hs {
		h(ctx, ev)
	}
}
