package gateway

import (
	"context"

	"github.com/attendly/go-timeclock-backend/internal/events"
)

// FailurePublisher is the slice of the mediator bus the gateway side needs.
type FailurePublisher interface {
	PublishSubmissionFailed(ctx context.Context, ev events.SubmissionFailed)
}

// SubmitOrPublish attempts the external write and, on failure, publishes a
// SubmissionFailed event for the queue-side subscriber to persist. It is the
// single entry point request handlers use, so the "gateway needs the queue,
// queue needs the gateway" cycle never forms.
//
// The passed ctx should already be detached from the client connection;
// durability of the user's action must not depend on anyone watching.
func SubmitOrPublish(ctx context.Context, g ExternalGateway, bus FailurePublisher, action Action, threadID, messageID string, extra map[string]any) Result {
	res := g.Submit(ctx, action)
	if res.Success {
		return res
	}

	bus.PublishSubmissionFailed(ctx, events.SubmissionFailed{
		IdentityID:      action.IdentityID,
		ActionKind:      action.Kind,
		TargetTimestamp: action.Timestamp,
		ThreadID:        threadID,
		MessageID:       messageID,
		ErrorMessage:    res.ErrorMessage,
		StatusCode:      res.StatusCode,
		Context:         extra,
	})
	return res
}
