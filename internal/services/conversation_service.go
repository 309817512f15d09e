// Package services – ConversationService
//
// This file implements ConversationService, which owns the lifecycle of
// conversation threads and their messages. It validates and normalizes input,
// enforces ownership rules, coordinates repository operations for creating,
// listing (with pagination), and appending, and auto-generates a thread title
// from the first user message.
//
// Thread state mutates only through ApplyConfirmedAction: an unconfirmed or
// merely queued submission never flips IsClockedIn.
//
// Observability: the write paths are OpenTelemetry-instrumented; spans include
// thread/identity identifiers.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/attendly/go-timeclock-backend/internal/domain"
)

const (
	roleUser  = "user"
	roleAgent = "agent"

	// default titles considered placeholders and eligible for auto-generation
	defaultTitleNew = "New conversation"
)

// ThreadRepo defines the repository contract required by ConversationService.
// Implementations are responsible for persistence of thread aggregates.
type ThreadRepo interface {
	// CreateThread inserts a new thread row for the given identity.
	CreateThread(ctx context.Context, db *gorm.DB, identityID, sessionID, title string) (*domain.ConversationThread, error)

	// GetThread fetches a thread by ID ensuring it belongs to the identity.
	GetThread(ctx context.Context, db *gorm.DB, id, identityID string) (*domain.ConversationThread, error)

	// UpdateThread persists the mutable columns of a thread.
	UpdateThread(ctx context.Context, db *gorm.DB, t *domain.ConversationThread) error

	// GetRecentThreads returns up to limit threads ordered by recent activity.
	GetRecentThreads(ctx context.Context, db *gorm.DB, identityID string, limit int) ([]domain.ConversationThread, error)

	// CountThreads returns the total number of threads for pagination.
	CountThreads(ctx context.Context, db *gorm.DB, identityID string) (int64, error)

	// ThreadsStats returns the (count, latest update) pair used for weak ETags.
	ThreadsStats(ctx context.Context, db *gorm.DB, identityID string) (int64, *time.Time, error)

	// AppendMessage inserts a message at the end of a thread.
	AppendMessage(ctx context.Context, db *gorm.DB, threadID, role, content, detectedAction string) (*domain.ThreadMessage, error)

	// CountMessages returns the number of messages in a thread.
	CountMessages(ctx context.Context, db *gorm.DB, threadID string) (int64, error)

	// ListMessagesPage returns a page of messages, oldest first.
	ListMessagesPage(ctx context.Context, db *gorm.DB, threadID string, offset, limit int) ([]domain.ThreadMessage, error)
}

// AuditRepo is the slice of the audit trail the conversation side writes to.
type AuditRepo interface {
	AppendAuditEntry(ctx context.Context, db *gorm.DB, identityID, eventType, payload string) (*domain.AuditLogEntry, error)
}

// ConversationService provides thread-level operations: creating, listing,
// appending messages, and applying confirmed time-clock actions to the
// authoritative thread state.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the thread repository used by this service.
	Repo ThreadRepo
	// Audit receives one entry per state-affecting event.
	Audit AuditRepo

	// MaxMessageRunes caps appended message bodies by rune length.
	MaxMessageRunes int
	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
	// TitleLocale selects the casing rules for generated titles.
	TitleLocale language.Tag
}

// NewConversationService constructs a ConversationService with sane defaults.
func NewConversationService(db *gorm.DB, r ThreadRepo, audit AuditRepo) *ConversationService {
	return &ConversationService{
		DB:              db,
		Repo:            r,
		Audit:           audit,
		MaxMessageRunes: 4000,
		TitleMaxLen:     60,
		TitleLocale:     language.Und,
	}
}

// Create inserts a new thread owned by identityID for the given client
// session. Titles are normalized, trimmed, clipped, and a default fallback is
// applied.
func (s *ConversationService) Create(ctx context.Context, identityID, sessionID, title string) (*domain.ConversationThread, error) {
	title = normalizeTitle(title)
	if title == "" {
		title = defaultTitleNew
	}
	return s.Repo.CreateThread(ctx, s.DB, identityID, sessionID, s.clip(title))
}

// Get fetches one thread, ensuring ownership.
func (s *ConversationService) Get(ctx context.Context, identityID, threadID string) (*domain.ConversationThread, error) {
	t, err := s.Repo.GetThread(ctx, s.DB, threadID, identityID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrThreadNotFound
	}
	return t, err
}

// ListPage returns a page of threads for an identity, most recently active
// first. It applies defaults for invalid page/pageSize and returns the total.
func (s *ConversationService) ListPage(ctx context.Context, identityID string, page, pageSize int) ([]domain.ConversationThread, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	total, err := s.Repo.CountThreads(ctx, s.DB, identityID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ConversationThread{}, 0, nil
	}

	// Recency listing is bounded: page through the most recent page*pageSize
	// threads and slice the requested window.
	items, err := s.Repo.GetRecentThreads(ctx, s.DB, identityID, page*pageSize)
	if err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * pageSize
	if offset >= len(items) {
		return []domain.ConversationThread{}, total, nil
	}
	return items[offset:], total, nil
}

// Stats returns the listing fingerprint used for weak ETag generation.
func (s *ConversationService) Stats(ctx context.Context, identityID string) (int64, *time.Time, error) {
	return s.Repo.ThreadsStats(ctx, s.DB, identityID)
}

// MessagesPage returns paginated messages for a thread the identity owns.
func (s *ConversationService) MessagesPage(ctx context.Context, identityID, threadID string, page, pageSize int) ([]domain.ThreadMessage, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	if _, err := s.Repo.GetThread(ctx, s.DB, threadID, identityID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrThreadNotFound
		}
		return nil, 0, err
	}

	total, err := s.Repo.CountMessages(ctx, s.DB, threadID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ThreadMessage{}, 0, nil
	}

	items, err := s.Repo.ListMessagesPage(ctx, s.DB, threadID, offset, pageSize)
	return items, total, err
}

// AppendUserMessage validates and persists one user utterance, auto-titling
// the thread from the first message when the title is still a placeholder.
func (s *ConversationService) AppendUserMessage(ctx context.Context, identityID, threadID, content, detectedAction string) (*domain.ThreadMessage, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "AppendUserMessage",
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.String("identity.id", identityID),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(content) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}

	thread, err := s.Repo.GetThread(ctx, s.DB, threadID, identityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}

	msg, err := s.Repo.AppendMessage(ctx, s.DB, threadID, roleUser, content, detectedAction)
	if err != nil {
		return nil, err
	}

	if s.shouldAutoTitle(thread.Title) {
		if gen := s.generateTitle(content); gen != "" {
			thread.Title = s.clip(gen)
			if uerr := s.Repo.UpdateThread(ctx, s.DB, thread); uerr != nil {
				log.Warn().Err(uerr).Str("thread_id", threadID).Msg("auto-title update failed")
			}
		}
	}
	return msg, nil
}

// AppendAgentMessage persists one agent reply. Ownership was already checked
// on the user turn that produced it.
func (s *ConversationService) AppendAgentMessage(ctx context.Context, threadID, content string) (*domain.ThreadMessage, error) {
	return s.Repo.AppendMessage(ctx, s.DB, threadID, roleAgent, content, "")
}

// ApplyConfirmedAction flips the authoritative thread state after the HR
// backend confirmed the write. This is the only path that mutates
// ConversationState; callers with unconfirmed or queued submissions must not
// invoke it. The change is mirrored into the audit trail.
func (s *ConversationService) ApplyConfirmedAction(ctx context.Context, identityID, threadID, actionKind string, at time.Time) (*domain.ConversationThread, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "ApplyConfirmedAction",
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.String("action.kind", actionKind),
		),
	)
	defer span.End()

	thread, err := s.Repo.GetThread(ctx, s.DB, threadID, identityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}

	at = at.UTC()
	switch actionKind {
	case domain.ActionClockIn:
		thread.State.IsClockedIn = true
		thread.State.LastClockInAt = &at
	case domain.ActionClockOut:
		thread.State.IsClockedIn = false
		thread.State.LastClockOutAt = &at
	default:
		return nil, ErrUnknownAction
	}
	thread.State.LastAction = actionKind

	if err := s.Repo.UpdateThread(ctx, s.DB, thread); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}

	payload, _ := json.Marshal(map[string]any{
		"thread_id":    threadID,
		"action":       actionKind,
		"confirmed_at": at.Format(time.RFC3339Nano),
	})
	if _, aerr := s.Audit.AppendAuditEntry(ctx, s.DB, identityID, "state.confirmed_action", string(payload)); aerr != nil {
		// The state write committed; a lost audit row is logged, not fatal.
		log.Error().Err(aerr).Str("thread_id", threadID).Msg("audit append failed")
	}
	return thread, nil
}

// shouldAutoTitle reports whether the current title is a placeholder.
func (s *ConversationService) shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(strings.ToLower(current))
	return t == "" || t == strings.ToLower(defaultTitleNew)
}

// generateTitle derives a concise title from the first user message.
func (s *ConversationService) generateTitle(content string) string {
	toks := titleWordRE.FindAllString(strings.ToLower(content), -1)
	if len(toks) == 0 {
		return ""
	}

	titleCaser := cases.Title(s.titleLocaleOrDefault())
	out := make([]string, 0, 8)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, " ")
}

// clip truncates a title to the configured maximum rune length.
func (s *ConversationService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// titleLocaleOrDefault returns the configured locale for casing or English
// if unset.
func (s *ConversationService) titleLocaleOrDefault() language.Tag {
	if s.TitleLocale == language.Und {
		return language.English
	}
	return s.TitleLocale
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// titleWordRE extracts Unicode letters with optional trailing numbers.
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// titleStopWords is a minimal English stop-word set for compact titles.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"i": {}, "me": {}, "my": {}, "please": {}, "can": {}, "you": {},
}
