// Package domain defines the persistence models for conversation threads,
// queued HR submissions, and deletion requests. These types are mapped with
// GORM and form the core data layer of the time-clock agent backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Action kinds detected from a user utterance and submitted to the HR backend.
const (
	ActionClockIn  = "clock_in"
	ActionClockOut = "clock_out"
)

// ConversationState is the authoritative per-thread state synchronized to
// connected clients via snapshot/delta events. It is embedded in the thread
// row as a JSON document.
//
// Invariant: IsClockedIn only flips on a confirmed external write; an
// unconfirmed or queued submission never mutates it.
type ConversationState struct {
	IsClockedIn    bool           `json:"is_clocked_in"`
	LastClockInAt  *time.Time     `json:"last_clock_in_at,omitempty"`
	LastClockOutAt *time.Time     `json:"last_clock_out_at,omitempty"`
	LastAction     string         `json:"last_action,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

// ConversationThread represents one conversation between an identity and the
// agent. Messages are append-only and ordered by creation time; the thread is
// never hard-deleted except through the deletion lifecycle.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - IdentityID: owner identity; partition key for all thread queries.
//   - SessionID: the client session that opened the thread.
//   - State: embedded ConversationState, serialized as JSON.
//   - CreatedAt / UpdatedAt: UpdatedAt is monotonically non-decreasing and
//     bumped on every mutation.
//   - ExpiresAt: optional retention bound; nil means retained until an
//     explicit deletion request.
type ConversationThread struct {
	ID         string            `json:"id"          gorm:"type:char(36);primaryKey"`
	IdentityID string            `json:"identity_id" gorm:"type:varchar(64);not null;index:idx_identity_threads"`
	SessionID  string            `json:"session_id"  gorm:"type:varchar(64);not null;index"`
	Title      string            `json:"title"       gorm:"type:varchar(255);not null;default:'New conversation'"`
	State      ConversationState `json:"state"       gorm:"type:text;serializer:json"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
	DeletedAt  gorm.DeletedAt    `json:"-"           gorm:"index"`
}

// TableName returns the database table name for ConversationThread.
func (ConversationThread) TableName() string { return "conversation_threads" }

// ThreadMessage is a single utterance within a thread, authored either by the
// "user" or the "agent". Insertion order is significant and append-only.
//
// DetectedAction carries the action kind the upstream classifier attached to
// a user message, when any ("clock_in" / "clock_out").
type ThreadMessage struct {
	ID             string         `json:"id"        gorm:"type:char(36);primaryKey"`
	ThreadID       string         `json:"thread_id" gorm:"type:char(36);not null;index:idx_thread_msgs,priority:1"`
	Role           string         `json:"role"      gorm:"type:varchar(16);not null;check:role IN ('user','agent')"`
	Content        string         `json:"content"   gorm:"type:text;not null"`
	DetectedAction string         `json:"detected_action,omitempty" gorm:"type:varchar(32)"`
	CreatedAt      time.Time      `json:"created_at" gorm:"index:idx_thread_msgs,priority:2"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"          gorm:"index"`

	// Thread is the parent conversation. Messages are cascade-deleted
	// if their thread is removed.
	Thread ConversationThread `json:"-" gorm:"foreignKey:ThreadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ThreadMessage.
func (ThreadMessage) TableName() string { return "thread_messages" }

// Submission queue item statuses. Completed and failed are terminal: once
// reached, no further automatic transition occurs.
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

// DefaultMaxRetries bounds automatic retries of a queued submission.
const DefaultMaxRetries = 3

// QueueItemTTL is how long queue items are retained before garbage collection.
const QueueItemTTL = 7 * 24 * time.Hour

// SubmissionQueueItem is one durable retry unit for a failed external
// submission. Items are partitioned by identity; the Version column is the
// optimistic-concurrency token that makes TryLock race-safe across workers.
//
// Invariants:
//   - RetryCount <= MaxRetries.
//   - Status == pending implies NextRetryAt is set.
//   - Status in {completed, failed} implies NextRetryAt is nil and the item
//     is never processed again.
type SubmissionQueueItem struct {
	ID              string         `json:"id"               gorm:"type:char(36);primaryKey"`
	IdentityID      string         `json:"identity_id"      gorm:"type:varchar(64);not null;index:idx_identity_queue"`
	ActionKind      string         `json:"action_kind"      gorm:"type:varchar(32);not null"`
	TargetTimestamp time.Time      `json:"target_timestamp" gorm:"not null"`
	ThreadID        string         `json:"thread_id"        gorm:"type:char(36);not null"`
	MessageID       string         `json:"message_id"       gorm:"type:char(36);not null"`
	RetryCount      int            `json:"retry_count"      gorm:"not null;default:0"`
	MaxRetries      int            `json:"max_retries"      gorm:"not null;default:3"`
	Status          string         `json:"status"           gorm:"type:varchar(16);not null;index:idx_queue_status"`
	NextRetryAt     *time.Time     `json:"next_retry_at,omitempty" gorm:"index:idx_queue_status"`
	LastError       string         `json:"last_error,omitempty"    gorm:"type:text"`
	LastStatusCode  int            `json:"last_status_code,omitempty"`
	Context         map[string]any `json:"context,omitempty" gorm:"type:text;serializer:json"`
	Version         int64          `json:"-"                gorm:"not null;default:0"`
	LockedUntil     *time.Time     `json:"-"                gorm:"index"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ExpiresAt       *time.Time     `json:"-"                gorm:"index"`
}

// TableName returns the database table name for SubmissionQueueItem.
func (SubmissionQueueItem) TableName() string { return "submission_queue_items" }

// Terminal reports whether the item reached a status from which no further
// automatic transition occurs.
func (i *SubmissionQueueItem) Terminal() bool {
	return i.Status == QueueStatusCompleted || i.Status == QueueStatusFailed
}

// RetriesExhausted reports whether no further retry is permitted.
func (i *SubmissionQueueItem) RetriesExhausted() bool {
	return i.RetryCount >= i.MaxRetries
}

// Deletion request statuses. Completed, Cancelled, and Failed are terminal
// and immutable; the record is retained as an audit artifact independent of
// the conversations it describes.
const (
	DeletionStatusPending    = "Pending"
	DeletionStatusProcessing = "Processing"
	DeletionStatusCompleted  = "Completed"
	DeletionStatusCancelled  = "Cancelled"
	DeletionStatusFailed     = "Failed"
)

// DeletionGracePeriod is the delay between a deletion request and its
// earliest eligible processing time.
const DeletionGracePeriod = 30 * 24 * time.Hour

// ConversationDeletionRequest is one GDPR-style erasure request. At most one
// Pending request may exist per identity at any time.
type ConversationDeletionRequest struct {
	ID                   string     `json:"id"                    gorm:"type:char(36);primaryKey"`
	IdentityID           string     `json:"identity_id"           gorm:"type:varchar(64);not null;index:idx_identity_deletions"`
	RequestedAt          time.Time  `json:"requested_at"          gorm:"not null"`
	ScheduledDeletionAt  time.Time  `json:"scheduled_deletion_at" gorm:"not null"`
	Status               string     `json:"status"                gorm:"type:varchar(16);not null;index"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	ConversationsDeleted int64      `json:"conversations_deleted"`
	CancellationReason   string     `json:"cancellation_reason,omitempty" gorm:"type:text"`
	ErrorMessage         string     `json:"error_message,omitempty"       gorm:"type:text"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ConversationDeletionRequest.
func (ConversationDeletionRequest) TableName() string {
	return "conversation_deletion_requests"
}

// Terminal reports whether the request reached an immutable state.
func (r *ConversationDeletionRequest) Terminal() bool {
	switch r.Status {
	case DeletionStatusCompleted, DeletionStatusCancelled, DeletionStatusFailed:
		return true
	}
	return false
}

// IsReadyForProcessing reports whether the grace period has elapsed and the
// request may transition to Processing.
func (r *ConversationDeletionRequest) IsReadyForProcessing(now time.Time) bool {
	return r.Status == DeletionStatusPending && !now.Before(r.ScheduledDeletionAt)
}
