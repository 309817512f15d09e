// Package handlers defines the HTTP-layer error codes used across all API
// endpoints. The constants give clients a stable, machine-readable taxonomy
// that supplements human-readable messages; handlers pick the most specific
// matching code and pass it to fail() with the HTTP status.
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeEmptyMessage     = "empty_message"
	ErrCodeMessageTooLong   = "message_too_long"
	ErrCodeUnknownAction    = "unknown_action"
	ErrCodeDeletionPending  = "deletion_already_pending"
	ErrCodeNotCancellable   = "not_cancellable"
	ErrCodeSubmissionFailed = "submission_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
