package domain

import "time"

// Idempotency records the result of a previously processed message post,
// keyed by (identity_id, thread_id, key). Because the submission queue gives
// at-least-once semantics downstream, the HTTP edge must not multiply
// user intents on naive client retries; replays short-circuit here.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	IdentityID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_identity_thread_key,priority:1"`
	ThreadID   string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_identity_thread_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_identity_thread_key,priority:3"`
	MessageID  string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
