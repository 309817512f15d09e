package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// Flusher is the subset of http.Flusher the writer needs. httptest's
// ResponseRecorder satisfies it, which keeps handler tests simple.
type Flusher interface {
	Flush()
}

// Writer emits protocol events as SSE frames and enforces the per-stream
// ordering rules. It is not safe for concurrent use; one goroutine owns a
// stream for its whole life.
type Writer struct {
	w   io.Writer
	f   Flusher
	log zerolog.Logger

	open      bool
	closed    bool
	sawState  bool
	snapSent  bool
	toolCalls map[string]bool
}

// NewWriter wraps an SSE response. SetHeaders must already have been called
// by the handler before the first event is sent.
func NewWriter(w io.Writer, f Flusher, log zerolog.Logger) *Writer {
	return &Writer{w: w, f: f, log: log, toolCalls: map[string]bool{}}
}

// SetHeaders applies the response headers every event stream needs.
// X-Accel-Buffering disables proxy buffering so flushes reach the client.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// StartMessage opens a message bracket. Only one message may be open at a
// time on a stream.
func (s *Writer) StartMessage(messageID string) error {
	if s.closed {
		return ErrStreamClosed
	}
	if s.open {
		return ErrMessageOpen
	}
	s.open = true
	s.snapSent = false
	return s.emit(Event{Type: EventMessageStart, MessageID: messageID})
}

// Content appends one chunk to the open message. Chunks are concatenation
// only; clients append in arrival order and never reorder.
func (s *Writer) Content(messageID, chunk string) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	return s.emit(Event{Type: EventMessageContent, MessageID: messageID, Content: chunk})
}

// ToolCallStart announces an external call and remembers its id so the
// matching end can be validated.
func (s *Writer) ToolCallStart(id, name string) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	s.toolCalls[id] = true
	return s.emit(Event{Type: EventToolCallStart, ToolCall: &ToolCall{ID: id, Name: name}})
}

// ToolCallEnd closes a previously started call. An end with no matching
// start is a protocol violation: it is dropped and logged, never sent, and
// the stream keeps going.
func (s *Writer) ToolCallEnd(id, result string) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if !s.toolCalls[id] {
		s.log.Warn().Str("tool_call_id", id).Msg("dropping tool_call.end with no matching start")
		return nil
	}
	delete(s.toolCalls, id)
	return s.emit(Event{Type: EventToolCallEnd, ToolCall: &ToolCall{ID: id, Result: result}})
}

// Snapshot replaces the client's state wholesale and primes the stream for
// subsequent deltas. At most one snapshot may go out per message bracket;
// anything after it is a delta.
func (s *Writer) Snapshot(state map[string]any) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if s.snapSent {
		return ErrSnapshotSent
	}
	s.sawState = true
	s.snapSent = true
	return s.emit(Event{Type: EventStateSnapshot, Snapshot: state})
}

// Delta sends ordered patch ops. A delta is only valid once a snapshot or
// an earlier delta has gone out on this stream.
func (s *Writer) Delta(ops []DeltaOp) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if !s.sawState {
		return ErrDeltaBeforeSnapshot
	}
	return s.emit(Event{Type: EventStateDelta, Delta: ops})
}

// EndMessage terminates the open message normally.
func (s *Writer) EndMessage(messageID string) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	s.open = false
	s.toolCalls = map[string]bool{}
	return s.emit(Event{Type: EventMessageEnd, MessageID: messageID})
}

// Fail terminates the stream with an error event. No further events may be
// sent afterwards.
func (s *Writer) Fail(code, message string, recoverable bool) error {
	if s.closed {
		return ErrStreamClosed
	}
	s.open = false
	s.closed = true
	return s.emit(Event{Type: EventError, Error: &StreamError{Code: code, Message: message, Recoverable: recoverable}})
}

// Heartbeat writes an SSE comment to keep idle connections alive. Comments
// are invisible to the event protocol.
func (s *Writer) Heartbeat() error {
	if s.closed {
		return ErrStreamClosed
	}
	if _, err := io.WriteString(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

func (s *Writer) requireOpen() error {
	if s.closed {
		return ErrStreamClosed
	}
	if !s.open {
		return ErrNoOpenMessage
	}
	return nil
}

// emit encodes one event as a single data: frame and flushes immediately so
// the client sees progress without buffering.
func (s *Writer) emit(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
