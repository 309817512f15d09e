// Package stream implements the server-to-client event protocol used while a
// message is being processed. Events are strictly ordered per stream:
// message.start opens the message, content arrives as append-only chunks,
// tool calls are bracketed start/end pairs, state is synchronized through a
// full snapshot or cumulative deltas, and message.end or error terminates.
package stream

import "errors"

// Event type values as they appear on the wire.
const (
	EventMessageStart   = "message.start"
	EventMessageContent = "message.content"
	EventToolCallStart  = "tool_call.start"
	EventToolCallEnd    = "tool_call.end"
	EventStateSnapshot  = "state.snapshot"
	EventStateDelta     = "state.delta"
	EventMessageEnd     = "message.end"
	EventError          = "error"
)

// Delta operation kinds. A set writes the key, an unset removes it.
const (
	OpSet   = "set"
	OpUnset = "unset"
)

var (
	// ErrNoOpenMessage is returned when a content, tool-call, or state event
	// is emitted outside a message.start / message.end bracket.
	ErrNoOpenMessage = errors.New("stream: no open message")

	// ErrMessageOpen is returned when message.start is emitted while the
	// previous message has not been terminated.
	ErrMessageOpen = errors.New("stream: message already open")

	// ErrStreamClosed is returned after a terminal error event.
	ErrStreamClosed = errors.New("stream: closed")

	// ErrDeltaBeforeSnapshot is returned when a state.delta arrives with no
	// prior snapshot or delta to build on. The consumer must request a fresh
	// snapshot instead of applying it.
	ErrDeltaBeforeSnapshot = errors.New("stream: delta without prior snapshot")

	// ErrSnapshotSent is returned when a second state.snapshot is emitted
	// inside the same message bracket. A message carries at most one
	// snapshot; further state changes go out as deltas.
	ErrSnapshotSent = errors.New("stream: snapshot already sent for this message")
)

// ToolCall describes one external call surfaced to the client. Result is
// only populated on the matching tool_call.end.
type ToolCall struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Result string `json:"result,omitempty"`
}

// DeltaOp is one ordered patch operation against the client's materialized
// state. Ops apply cumulatively in slice order.
type DeltaOp struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
}

// StreamError is the payload of a terminal error event. Recoverable tells
// the client whether retrying the same action may succeed.
type StreamError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// Event is one frame of the protocol. Exactly the fields relevant to Type
// are populated; the rest stay empty and are omitted from the wire.
type Event struct {
	Type      string         `json:"type"`
	MessageID string         `json:"message_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	ToolCall  *ToolCall      `json:"tool_call,omitempty"`
	Snapshot  map[string]any `json:"snapshot,omitempty"`
	Delta     []DeltaOp      `json:"delta,omitempty"`
	Error     *StreamError   `json:"error,omitempty"`
}
