// Package services defines the business logic for conversation threads, the
// durable submission queue, and the deletion lifecycle. This file centralizes
// common service-level error values so that they can be consistently returned
// by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

// Conversation-related errors.
var (
	// ErrThreadNotFound indicates that the requested thread does not exist or
	// is not accessible to the current identity.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrEmptyMessage is returned when a request to append a message contains
	// an empty body.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when a message exceeds the maximum configured
	// rune length.
	ErrTooLong = errors.New("message too long")

	// ErrUnknownAction is returned when a detected action kind is outside the
	// supported set (clock_in / clock_out).
	ErrUnknownAction = errors.New("unknown action kind")
)

// Queue-related errors.
var (
	// ErrQueueItemNotFound indicates that the requested queue item does not
	// exist or is not owned by the current identity.
	ErrQueueItemNotFound = errors.New("queue item not found")
)

// Deletion lifecycle errors.
var (
	// ErrDeletionAlreadyPending is returned when an identity submits a second
	// deletion request while one is still Pending.
	ErrDeletionAlreadyPending = errors.New("a pending deletion request already exists")

	// ErrDeletionNotFound indicates that no deletion request exists for the
	// identity.
	ErrDeletionNotFound = errors.New("deletion request not found")

	// ErrDeletionNotCancellable is returned when Cancel is attempted on a
	// request that is no longer Pending.
	ErrDeletionNotCancellable = errors.New("deletion request is not pending")

	// ErrDeletionNotPending is returned when Process is attempted on a
	// request outside the Pending state. Terminal requests are immutable.
	ErrDeletionNotPending = errors.New("deletion request is not processable")
)
