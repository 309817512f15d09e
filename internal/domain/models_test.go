package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		ConversationThread{}.TableName():          "conversation_threads",
		ThreadMessage{}.TableName():               "thread_messages",
		SubmissionQueueItem{}.TableName():         "submission_queue_items",
		ConversationDeletionRequest{}.TableName(): "conversation_deletion_requests",
		AuditLogEntry{}.TableName():               "audit_log_entries",
		DeletionAuditLogEntry{}.TableName():       "deletion_audit_log_entries",
		Idempotency{}.TableName():                 "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("table name = %q; want %q", got, want)
		}
	}
}

func TestQueueItemTerminal(t *testing.T) {
	for _, tc := range []struct {
		status string
		want   bool
	}{
		{QueueStatusPending, false},
		{QueueStatusProcessing, false},
		{QueueStatusCompleted, true},
		{QueueStatusFailed, true},
	} {
		i := SubmissionQueueItem{Status: tc.status}
		if got := i.Terminal(); got != tc.want {
			t.Errorf("Terminal() with status %q = %v; want %v", tc.status, got, tc.want)
		}
	}
}

func TestQueueItemRetriesExhausted(t *testing.T) {
	i := SubmissionQueueItem{RetryCount: 2, MaxRetries: 3}
	if i.RetriesExhausted() {
		t.Fatalf("2/3 retries should not be exhausted")
	}
	i.RetryCount = 3
	if !i.RetriesExhausted() {
		t.Fatalf("3/3 retries should be exhausted")
	}
}

func TestDeletionRequestTerminal(t *testing.T) {
	for _, tc := range []struct {
		status string
		want   bool
	}{
		{DeletionStatusPending, false},
		{DeletionStatusProcessing, false},
		{DeletionStatusCompleted, true},
		{DeletionStatusCancelled, true},
		{DeletionStatusFailed, true},
	} {
		r := ConversationDeletionRequest{Status: tc.status}
		if got := r.Terminal(); got != tc.want {
			t.Errorf("Terminal() with status %q = %v; want %v", tc.status, got, tc.want)
		}
	}
}

func TestDeletionRequestIsReadyForProcessing(t *testing.T) {
	requested := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := ConversationDeletionRequest{
		Status:              DeletionStatusPending,
		RequestedAt:         requested,
		ScheduledDeletionAt: requested.Add(DeletionGracePeriod),
	}

	if r.IsReadyForProcessing(requested) {
		t.Fatalf("ready immediately after request")
	}
	if r.IsReadyForProcessing(requested.Add(DeletionGracePeriod - time.Second)) {
		t.Fatalf("ready one second before the grace period elapsed")
	}
	if !r.IsReadyForProcessing(requested.Add(DeletionGracePeriod)) {
		t.Fatalf("not ready exactly at the scheduled deletion time")
	}
	if !r.IsReadyForProcessing(requested.Add(DeletionGracePeriod + time.Hour)) {
		t.Fatalf("not ready after the scheduled deletion time")
	}

	// Non-pending requests are never eligible regardless of time.
	r.Status = DeletionStatusCancelled
	if r.IsReadyForProcessing(requested.Add(2 * DeletionGracePeriod)) {
		t.Fatalf("cancelled request reported ready")
	}
}

func TestConversationStateJSONRoundTrip(t *testing.T) {
	in := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	st := ConversationState{
		IsClockedIn:   true,
		LastClockInAt: &in,
		LastAction:    ActionClockIn,
		Context:       map[string]any{"site": "athens-hq"},
	}

	raw, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out ConversationState
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.IsClockedIn || out.LastAction != ActionClockIn {
		t.Fatalf("round trip lost fields: %+v", out)
	}
	if out.LastClockInAt == nil || !out.LastClockInAt.Equal(in) {
		t.Fatalf("round trip lost LastClockInAt: %+v", out.LastClockInAt)
	}
	if out.Context["site"] != "athens-hq" {
		t.Fatalf("round trip lost context: %+v", out.Context)
	}
}

func TestAuditDate(t *testing.T) {
	ts := time.Date(2025, 12, 31, 23, 30, 0, 0, time.FixedZone("EET", 2*3600))
	if got := AuditDate(ts); got != "2025-12-31" {
		t.Fatalf("AuditDate = %q; want UTC day 2025-12-31", got)
	}
}
