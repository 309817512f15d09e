// Package domain defines the core persistence models for the application.
// This file holds the audit-trail entries. The conversation audit log and the
// deletion audit log are deliberately separate tables with independent
// retention: conversation audit entries live and die with ordinary data
// hygiene, while deletion audit entries are compliance artifacts kept for
// seven years regardless of what happens to the conversations they describe.
package domain

import "time"

// DeletionAuditRetention is how long deletion lifecycle audit entries are kept.
const DeletionAuditRetention = 7 * 365 * 24 * time.Hour

// AuditLogEntry records one conversation-affecting event (message appended,
// state changed, submission queued or resolved). Payload is the exact JSON
// document describing the event and must round-trip byte-identically.
//
// Entries are partitioned by (identity, date) so that reads for one identity
// and day never scan another partition.
type AuditLogEntry struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	IdentityID string    `json:"identity_id" gorm:"type:varchar(64);not null;index:idx_audit_partition,priority:1"`
	Date       string    `json:"date"        gorm:"type:char(10);not null;index:idx_audit_partition,priority:2"` // YYYY-MM-DD
	EventType  string    `json:"event_type"  gorm:"type:varchar(48);not null"`
	Payload    string    `json:"payload"     gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for AuditLogEntry.
func (AuditLogEntry) TableName() string { return "audit_log_entries" }

// DeletionAuditLogEntry records one transition of a deletion request
// (submitted, cancelled, processing, completed, failed). Same partitioning
// and round-trip contract as AuditLogEntry, different retention.
type DeletionAuditLogEntry struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	IdentityID string    `json:"identity_id" gorm:"type:varchar(64);not null;index:idx_del_audit_partition,priority:1"`
	Date       string    `json:"date"        gorm:"type:char(10);not null;index:idx_del_audit_partition,priority:2"`
	RequestID  string    `json:"request_id"  gorm:"type:char(36);not null;index"`
	Transition string    `json:"transition"  gorm:"type:varchar(48);not null"`
	Payload    string    `json:"payload"     gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for DeletionAuditLogEntry.
func (DeletionAuditLogEntry) TableName() string { return "deletion_audit_log_entries" }

// AuditDate formats t as the partition date key (UTC day).
func AuditDate(t time.Time) string { return t.UTC().Format("2006-01-02") }
