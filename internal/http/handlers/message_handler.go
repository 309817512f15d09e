// Message HTTP handler.
//
// POST /threads/{id}/messages performs one user turn: it persists the
// utterance, executes the detected time-clock action against the HR backend
// (queueing it durably on failure), and responds with the server-sent event
// stream that keeps the client's view of conversation state consistent.
//
// Two durability rules shape this handler:
//   - A client disconnect never cancels the external call or the enqueue;
//     the work runs on a context detached from the request.
//   - Thread state only changes on a confirmed external write. A failed or
//     queued submission leaves state untouched and ends the stream with a
//     recoverable error event.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/attendly/go-timeclock-backend/internal/domain"
	"github.com/attendly/go-timeclock-backend/internal/gateway"
	"github.com/attendly/go-timeclock-backend/internal/http/middleware"
	"github.com/attendly/go-timeclock-backend/internal/services"
	"github.com/attendly/go-timeclock-backend/internal/stream"
)

// HeaderSessionID conveys the client session for collision detection.
const HeaderSessionID = "X-Session-ID"

// HeaderSessionCollision is set when another session is concurrently active
// for the same identity. Purely advisory.
const HeaderSessionCollision = "X-Session-Collision"

// PostMessageRequest is the JSON payload for posting a user message.
type PostMessageRequest struct {
	// Content is the user utterance (1..4000 runes).
	Content string `json:"content"`
	// Action is the classified intent, when any: "clock_in" or "clock_out".
	// Classification happens upstream; the backend treats it as given.
	Action string `json:"action,omitempty"`
	// Timestamp optionally overrides the action's effective time (RFC3339).
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// PostMessage handles POST /threads/:id/messages and streams the response.
func (h *Handlers) PostMessage(c *gin.Context) {
	threadID := c.Param("id")
	if _, err := uuid.Parse(threadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thread id must be a UUID")
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	switch req.Action {
	case "", domain.ActionClockIn, domain.ActionClockOut:
	default:
		fail(c, http.StatusBadRequest, ErrCodeUnknownAction, "action must be clock_in or clock_out")
		return
	}

	ctx := c.Request.Context()
	id := identityID(c)

	// Advisory concurrent-session check; never blocks the request.
	if h.sessions != nil {
		if sid := c.GetHeader(HeaderSessionID); sid != "" {
			if col := h.sessions.DetectCollision(ctx, id, sid); col != nil {
				c.Header(HeaderSessionCollision, fmt.Sprintf("%d", len(col.Sessions)))
			}
		}
	}

	// A replayed Idempotency-Key re-syncs the client instead of re-running
	// the action.
	if middleware.IsReplay(c) {
		h.streamSnapshot(c, id, threadID)
		return
	}

	msg, err := h.threads.AppendUserMessage(ctx, id, threadID, req.Content, req.Action)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeEmptyMessage, "message content is empty")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeMessageTooLong, "message content exceeds the limit")
		case isNotFound(err):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	if h.idem != nil {
		if key, present := middleware.GetIdempotencyKey(c); present {
			if rerr := h.idem.Record(ctx, id, threadID, key, msg.ID, http.StatusOK); rerr != nil {
				middleware.LoggerFrom(c).Warn().Err(rerr).Msg("idempotency record failed")
			}
		}
	}

	// From here on the response is an event stream; errors become protocol
	// events, not HTTP statuses.
	stream.SetHeaders(c.Writer.Header())
	middleware.StreamOpened()
	defer middleware.StreamClosed()
	w := stream.NewWriter(c.Writer, c.Writer, *middleware.LoggerFrom(c))

	agentMsgID := uuid.NewString()
	if err := w.StartMessage(agentMsgID); err != nil {
		return
	}

	if req.Action == "" {
		h.streamChat(c, w, id, threadID, agentMsgID)
		return
	}

	at := time.Now().UTC()
	if req.Timestamp != nil {
		at = req.Timestamp.UTC()
	}

	// Detached context: durability of the action must not depend on the
	// client still watching.
	detached := context.WithoutCancel(ctx)

	toolID := uuid.NewString()
	if err := w.ToolCallStart(toolID, "hr.submit_time_entry"); err != nil {
		return
	}
	res := gateway.SubmitOrPublish(detached, h.gateway, h.bus,
		gateway.Action{IdentityID: id, Kind: req.Action, Timestamp: at},
		threadID, msg.ID, nil)

	if !res.Success {
		_ = w.ToolCallEnd(toolID, "failed")
		reply := queuedReply(req.Action)
		_ = w.Content(agentMsgID, reply)
		if _, aerr := h.threads.AppendAgentMessage(detached, threadID, reply); aerr != nil {
			middleware.LoggerFrom(c).Warn().Err(aerr).Msg("agent reply not persisted")
		}
		// Recoverable: the queue will finish the job; a later snapshot
		// reflects the outcome.
		_ = w.Fail(ErrCodeSubmissionFailed, "submission queued for retry", true)
		return
	}

	if err := w.ToolCallEnd(toolID, "confirmed"); err != nil {
		return
	}

	thread, err := h.threads.ApplyConfirmedAction(detached, id, threadID, req.Action, at)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Str("thread_id", threadID).Msg("confirmed action not applied")
		_ = w.Fail(ErrCodeInternal, "state update failed", false)
		return
	}

	reply := confirmedReply(req.Action, at)
	if err := w.Content(agentMsgID, reply); err != nil {
		return
	}
	if _, aerr := h.threads.AppendAgentMessage(detached, threadID, reply); aerr != nil {
		middleware.LoggerFrom(c).Warn().Err(aerr).Msg("agent reply not persisted")
	}
	if err := w.Snapshot(stateMap(thread.State)); err != nil {
		return
	}
	_ = w.EndMessage(agentMsgID)
}

// streamChat answers a plain conversational turn: an acknowledgement plus a
// fresh state snapshot so reconnecting clients converge.
func (h *Handlers) streamChat(c *gin.Context, w *stream.Writer, id, threadID, agentMsgID string) {
	reply := "Noted. Say \"clock in\" or \"clock out\" when you want to change your status."
	if err := w.Content(agentMsgID, reply); err != nil {
		return
	}
	if _, aerr := h.threads.AppendAgentMessage(context.WithoutCancel(c.Request.Context()), threadID, reply); aerr != nil {
		middleware.LoggerFrom(c).Warn().Err(aerr).Msg("agent reply not persisted")
	}
	if thread, err := h.threads.Get(c.Request.Context(), id, threadID); err == nil {
		if err := w.Snapshot(stateMap(thread.State)); err != nil {
			return
		}
	}
	_ = w.EndMessage(agentMsgID)
}

// streamSnapshot serves an idempotent replay: no side effects, just the
// authoritative state.
func (h *Handlers) streamSnapshot(c *gin.Context, id, threadID string) {
	thread, err := h.threads.Get(c.Request.Context(), id, threadID)
	if err != nil {
		if isNotFound(err) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	stream.SetHeaders(c.Writer.Header())
	middleware.StreamOpened()
	defer middleware.StreamClosed()
	w := stream.NewWriter(c.Writer, c.Writer, *middleware.LoggerFrom(c))

	msgID := uuid.NewString()
	if err := w.StartMessage(msgID); err != nil {
		return
	}
	if err := w.Snapshot(stateMap(thread.State)); err != nil {
		return
	}
	_ = w.EndMessage(msgID)
}

// stateMap converts the embedded conversation state to the generic map the
// snapshot event carries. Round-tripping through JSON keeps the keys
// byte-identical to the persisted representation.
func stateMap(st domain.ConversationState) map[string]any {
	raw, err := json.Marshal(st)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// confirmedReply phrases a confirmed action for the user.
func confirmedReply(actionKind string, at time.Time) string {
	when := at.Format("15:04 MST")
	if actionKind == domain.ActionClockIn {
		return "You're clocked in as of " + when + "."
	}
	return "You're clocked out as of " + when + "."
}

// queuedReply phrases a queued (failed but durable) action for the user.
func queuedReply(actionKind string) string {
	verb := "clock-in"
	if actionKind == domain.ActionClockOut {
		verb = "clock-out"
	}
	return "The HR system didn't respond, so I've queued your " + verb + ". It will be retried automatically and your status will update once it goes through."
}

// isNotFound reports whether err maps to a 404 for thread resources.
func isNotFound(err error) bool {
	return errors.Is(err, services.ErrThreadNotFound)
}
