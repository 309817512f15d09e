package domain

import "time"

// ActiveSession is a derived view of one recently-active client session for
// an identity. It is computed on demand from recent threads and never
// persisted as a first-class entity.
type ActiveSession struct {
	SessionID    string    `json:"session_id"`
	LastActivity time.Time `json:"last_activity"`
	ThreadCount  int       `json:"thread_count"`
	DeviceHint   string    `json:"device_hint,omitempty"`
}

// SessionCollision is the advisory result returned when more than one
// distinct session is active for the same identity inside the trailing
// activity window. It never blocks a request.
type SessionCollision struct {
	IdentityID     string          `json:"identity_id"`
	CurrentSession string          `json:"current_session"`
	Sessions       []ActiveSession `json:"sessions"`
}
