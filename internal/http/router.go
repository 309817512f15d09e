// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/attendly/go-timeclock-backend/internal/config"
	"github.com/attendly/go-timeclock-backend/internal/domain"
	"github.com/attendly/go-timeclock-backend/internal/events"
	"github.com/attendly/go-timeclock-backend/internal/gateway"
	"github.com/attendly/go-timeclock-backend/internal/http/handlers"
	"github.com/attendly/go-timeclock-backend/internal/http/middleware"
	"github.com/attendly/go-timeclock-backend/internal/repo"
	"github.com/attendly/go-timeclock-backend/internal/services"
)

// threadRepoShim adapts the repository free functions to the
// services.ThreadRepo interface expected by the ConversationService. This
// keeps services decoupled from the concrete repo package while reusing
// existing functions.
type threadRepoShim struct{}

// CreateThread proxies repo.CreateThread.
func (threadRepoShim) CreateThread(ctx context.Context, db *gorm.DB, identityID, sessionID, title string) (*domain.ConversationThread, error) {
	return repo.CreateThread(ctx, db, identityID, sessionID, title)
}

// GetThread proxies repo.GetThread.
func (threadRepoShim) GetThread(ctx context.Context, db *gorm.DB, id, identityID string) (*domain.ConversationThread, error) {
	return repo.GetThread(ctx, db, id, identityID)
}

// UpdateThread proxies repo.UpdateThread.
func (threadRepoShim) UpdateThread(ctx context.Context, db *gorm.DB, t *domain.ConversationThread) error {
	return repo.UpdateThread(ctx, db, t)
}

// GetRecentThreads proxies repo.GetRecentThreads.
func (threadRepoShim) GetRecentThreads(ctx context.Context, db *gorm.DB, identityID string, limit int) ([]domain.ConversationThread, error) {
	return repo.GetRecentThreads(ctx, db, identityID, limit)
}

// CountThreads proxies repo.CountThreads (pagination support).
func (threadRepoShim) CountThreads(ctx context.Context, db *gorm.DB, identityID string) (int64, error) {
	return repo.CountThreads(ctx, db, identityID)
}

// ThreadsStats proxies repo.ThreadsStats (weak ETag support).
func (threadRepoShim) ThreadsStats(ctx context.Context, db *gorm.DB, identityID string) (int64, *time.Time, error) {
	return repo.ThreadsStats(ctx, db, identityID)
}

// AppendMessage proxies repo.AppendMessage.
func (threadRepoShim) AppendMessage(ctx context.Context, db *gorm.DB, threadID, role, content, detectedAction string) (*domain.ThreadMessage, error) {
	return repo.AppendMessage(ctx, db, threadID, role, content, detectedAction)
}

// CountMessages proxies repo.CountMessages.
func (threadRepoShim) CountMessages(ctx context.Context, db *gorm.DB, threadID string) (int64, error) {
	return repo.CountMessages(ctx, db, threadID)
}

// ListMessagesPage proxies repo.ListMessagesPage.
func (threadRepoShim) ListMessagesPage(ctx context.Context, db *gorm.DB, threadID string, offset, limit int) ([]domain.ThreadMessage, error) {
	return repo.ListMessagesPage(ctx, db, threadID, offset, limit)
}

// DeleteAllConversations proxies repo.DeleteAllConversations (deletion
// lifecycle bulk erase).
func (threadRepoShim) DeleteAllConversations(ctx context.Context, db *gorm.DB, identityID string) (int64, error) {
	return repo.DeleteAllConversations(ctx, db, identityID)
}

// queueRepoShim adapts the queue free functions to services.QueueRepo.
type queueRepoShim struct{}

func (queueRepoShim) CreateQueueItem(ctx context.Context, db *gorm.DB, item *domain.SubmissionQueueItem, ttl time.Duration) error {
	return repo.CreateQueueItem(ctx, db, item, ttl)
}

func (queueRepoShim) GetQueueItem(ctx context.Context, db *gorm.DB, id, identityID string) (*domain.SubmissionQueueItem, error) {
	return repo.GetQueueItem(ctx, db, id, identityID)
}

func (queueRepoShim) ListQueueItems(ctx context.Context, db *gorm.DB, identityID string, limit int) ([]domain.SubmissionQueueItem, error) {
	return repo.ListQueueItems(ctx, db, identityID, limit)
}

func (queueRepoShim) GetPendingReadyForRetry(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.SubmissionQueueItem, error) {
	return repo.GetPendingReadyForRetry(ctx, db, now, limit)
}

func (queueRepoShim) TryLockQueueItem(ctx context.Context, db *gorm.DB, item *domain.SubmissionQueueItem, lockedUntil time.Time) (bool, error) {
	return repo.TryLockQueueItem(ctx, db, item, lockedUntil)
}

func (queueRepoShim) UpdateQueueItemAfterRetry(ctx context.Context, db *gorm.DB, item *domain.SubmissionQueueItem) (bool, error) {
	return repo.UpdateQueueItemAfterRetry(ctx, db, item)
}

func (queueRepoShim) ReclaimStaleQueueItems(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	return repo.ReclaimStaleQueueItems(ctx, db, now)
}

func (queueRepoShim) PurgeExpiredQueueItems(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	return repo.PurgeExpiredQueueItems(ctx, db, now)
}

// deletionRepoShim adapts the deletion free functions to services.DeletionRepo.
type deletionRepoShim struct{}

func (deletionRepoShim) SaveDeletionRequest(ctx context.Context, db *gorm.DB, req *domain.ConversationDeletionRequest) error {
	return repo.SaveDeletionRequest(ctx, db, req)
}

func (deletionRepoShim) UpdateDeletionRequest(ctx context.Context, db *gorm.DB, req *domain.ConversationDeletionRequest, fromStatus string) error {
	return repo.UpdateDeletionRequest(ctx, db, req, fromStatus)
}

func (deletionRepoShim) GetDeletionRequestByIdentity(ctx context.Context, db *gorm.DB, identityID string) (*domain.ConversationDeletionRequest, error) {
	return repo.GetDeletionRequestByIdentity(ctx, db, identityID)
}

func (deletionRepoShim) GetPendingDeletionRequestByIdentity(ctx context.Context, db *gorm.DB, identityID string) (*domain.ConversationDeletionRequest, error) {
	return repo.GetPendingDeletionRequestByIdentity(ctx, db, identityID)
}

func (deletionRepoShim) GetAllPendingDeletionRequests(ctx context.Context, db *gorm.DB) ([]domain.ConversationDeletionRequest, error) {
	return repo.GetAllPendingDeletionRequests(ctx, db)
}

// sessionRepoShim adapts thread activity lookups to services.SessionRepo.
type sessionRepoShim struct{}

func (sessionRepoShim) GetThreadsActiveSince(ctx context.Context, db *gorm.DB, identityID string, since time.Time) ([]domain.ConversationThread, error) {
	return repo.GetThreadsActiveSince(ctx, db, identityID, since)
}

// auditRepoShim adapts the audit-trail free functions to the audit contracts.
type auditRepoShim struct{}

func (auditRepoShim) AppendAuditEntry(ctx context.Context, db *gorm.DB, identityID, eventType, payload string) (*domain.AuditLogEntry, error) {
	return repo.AppendAuditEntry(ctx, db, identityID, eventType, payload)
}

func (auditRepoShim) AppendDeletionAuditEntry(ctx context.Context, db *gorm.DB, identityID, requestID, transition, payload string) (*domain.DeletionAuditLogEntry, error) {
	return repo.AppendDeletionAuditEntry(ctx, db, identityID, requestID, transition, payload)
}

// idempotencyRecorder persists Idempotency-Key records after a message write.
type idempotencyRecorder struct {
	db  *gorm.DB
	ttl time.Duration
}

func (r idempotencyRecorder) Record(ctx context.Context, identityID, threadID, key, messageID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, r.db, identityID, threadID, key, messageID, status, r.ttl)
	return err
}

// Services bundles the long-lived application services constructed during
// route registration so the caller can run their background loops (queue
// processor, deletion sweeper).
type Services struct {
	Threads   *services.ConversationService
	Queue     *services.QueueService
	Deletions *services.DeletionService
	Sessions  *services.SessionService
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine, subscribes the queue service to the mediator bus, and returns the
// constructed services for background loop wiring.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Identity: resolve the calling identity
//  4. RedactingLogger: structured logs with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter, gzip (SSE excluded)
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per identity/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, bus *events.Bus, gw gateway.ExternalGateway, cfg config.Config) Services {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Resolve the calling identity for handlers, rate limiting, idempotency
	r.Use(middleware.Identity())

	// 4) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Global body size limit (1 MiB); gzip everything except event streams
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`.*/messages$`, `^/metrics$`})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, identityID, threadID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, identityID, threadID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per identity/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIdentityOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdentityID, handlers.HeaderSessionID, middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", handlers.HeaderSessionCollision},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdentityID, handlers.HeaderSessionID, middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", handlers.HeaderSessionCollision},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/bus/gateway
	threadSvc := services.NewConversationService(db, threadRepoShim{}, auditRepoShim{})
	queueSvc := services.NewQueueService(db, queueRepoShim{}, auditRepoShim{}, cfg.Queue)
	deletionSvc := services.NewDeletionService(db, deletionRepoShim{}, threadRepoShim{}, auditRepoShim{}, cfg.Deletion.GracePeriod)
	sessionSvc := services.NewSessionService(db, sessionRepoShim{}, cfg.Session.ActivityWindow)

	// Failed external submissions reach the queue only through the bus.
	bus.SubscribeSubmissionFailed(queueSvc.HandleSubmissionFailed)

	idem := idempotencyRecorder{db: db, ttl: cfg.IdempotencyTTL}
	h := handlers.New(threadSvc, queueSvc, deletionSvc, sessionSvc, gw, bus, idem)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Threads
		api.POST("/threads", h.CreateThread)
		api.GET("/threads", h.ListThreads)

		// Messages (POST streams the agent turn as SSE)
		api.GET("/threads/:id/messages", h.ListMessages)
		api.POST("/threads/:id/messages", h.PostMessage)

		// Submission queue (read-only)
		api.GET("/queue/items", h.ListQueueItems)
		api.GET("/queue/items/:id", h.GetQueueItem)

		// Deletion lifecycle
		api.POST("/deletion-request", h.SubmitDeletion)
		api.DELETE("/deletion-request", h.CancelDeletion)
		api.GET("/deletion-request", h.DeletionStatus)
	}

	return Services{
		Threads:   threadSvc,
		Queue:     queueSvc,
		Deletions: deletionSvc,
		Sessions:  sessionSvc,
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
