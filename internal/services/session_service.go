// Package services – SessionService
//
// Advisory detection of concurrent client sessions. Sessions are derived on
// demand from recent thread activity, never persisted. When more than one
// distinct session was active for an identity inside the trailing window, the
// caller gets a collision advisory to surface as a warning header. Detection
// failures are logged and swallowed: this feature must never block or fail a
// request.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/attendly/go-timeclock-backend/internal/domain"
)

// SessionRepo defines the repository contract required by SessionService.
type SessionRepo interface {
	// GetThreadsActiveSince returns threads whose last activity falls inside
	// the trailing window starting at since.
	GetThreadsActiveSince(ctx context.Context, db *gorm.DB, identityID string, since time.Time) ([]domain.ConversationThread, error)
}

// SessionService groups recent thread activity into sessions and reports
// advisory collisions.
type SessionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the thread activity repository.
	Repo SessionRepo

	// ActivityWindow is the trailing window a session counts as active in.
	ActivityWindow time.Duration
}

// NewSessionService constructs a SessionService with the given window.
func NewSessionService(db *gorm.DB, r SessionRepo, window time.Duration) *SessionService {
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &SessionService{DB: db, Repo: r, ActivityWindow: window}
}

// ActiveSessions returns the distinct sessions active for an identity inside
// the trailing window, most recently active first.
func (s *SessionService) ActiveSessions(ctx context.Context, identityID string) ([]domain.ActiveSession, error) {
	since := time.Now().UTC().Add(-s.ActivityWindow)
	threads, err := s.Repo.GetThreadsActiveSince(ctx, s.DB, identityID, since)
	if err != nil {
		return nil, err
	}

	// Threads arrive newest first, so the first sighting of a session id
	// carries its latest activity.
	byID := make(map[string]*domain.ActiveSession)
	order := make([]string, 0, 4)
	for i := range threads {
		t := &threads[i]
		if t.SessionID == "" {
			continue
		}
		sess, ok := byID[t.SessionID]
		if !ok {
			sess = &domain.ActiveSession{SessionID: t.SessionID, LastActivity: t.UpdatedAt}
			byID[t.SessionID] = sess
			order = append(order, t.SessionID)
		}
		sess.ThreadCount++
	}

	out := make([]domain.ActiveSession, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// DetectCollision reports whether more than one distinct session is active
// for the identity. The result is advisory: any failure is logged and
// reported as "no collision" so the calling request proceeds untouched.
func (s *SessionService) DetectCollision(ctx context.Context, identityID, currentSessionID string) *domain.SessionCollision {
	sessions, err := s.ActiveSessions(ctx, identityID)
	if err != nil {
		log.Warn().Err(err).Str("identity_id", identityID).Msg("session collision detection failed")
		return nil
	}
	if len(sessions) < 2 {
		return nil
	}

	log.Warn().
		Str("identity_id", identityID).
		Str("current_session", currentSessionID).
		Int("active_sessions", len(sessions)).
		Msg("concurrent session collision detected")
	return &domain.SessionCollision{
		IdentityID:     identityID,
		CurrentSession: currentSessionID,
		Sessions:       sessions,
	}
}
