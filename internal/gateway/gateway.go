// Package gateway talks to the external HR backend. The core only depends on
// the ExternalGateway interface; the HTTP implementation here performs the
// actual call, and the failure handler in failure.go publishes to the
// mediator bus instead of touching the submission queue directly.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/attendly/go-timeclock-backend/internal/config"
)

// Action is one state-changing HR operation to submit.
type Action struct {
	IdentityID string    `json:"identity_id"`
	Kind       string    `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
}

// Result is the synchronous outcome of one submission attempt. Success false
// means the write did not stick and the caller decides whether to queue it.
type Result struct {
	Success      bool
	ErrorMessage string
	StatusCode   int
}

// ExternalGateway is the narrow interface the core consumes. Implementations
// must honor ctx for cancellation and per-attempt timeouts.
type ExternalGateway interface {
	Submit(ctx context.Context, action Action) Result
}

// HTTPGateway submits actions to the HR backend over HTTP. The API key is
// kept in an explicit cache entry with an expiry and refreshed on a
// pull-based check, never cached forever.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	keys    *apiKeyCache
}

// NewHTTPGateway builds a gateway from configuration. The key provider is a
// static env-sourced secret by default; KeyProvider can be swapped for a
// secret-manager fetch without touching callers.
func NewHTTPGateway(cfg config.GatewayConfig) *HTTPGateway {
	return &HTTPGateway{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		keys:    newAPIKeyCache(staticKeyProvider(cfg.APIKey), cfg.APIKeyTTL),
	}
}

// Submit POSTs the action to the HR backend and classifies the response.
// Any transport error or non-2xx status is a failure; the HTTP status code
// is propagated so the queue can record it (0 for transport errors).
func (g *HTTPGateway) Submit(ctx context.Context, action Action) Result {
	key, err := g.keys.get(ctx)
	if err != nil {
		return Result{Success: false, ErrorMessage: fmt.Sprintf("api key unavailable: %v", err)}
	}

	body, err := json.Marshal(action)
	if err != nil {
		return Result{Success: false, ErrorMessage: fmt.Sprintf("encode action: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/time-entries", bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, ErrorMessage: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{Success: false, ErrorMessage: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Success: true, StatusCode: resp.StatusCode}
	}

	msg := readErrorBody(resp.Body)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	log.Warn().
		Int("status", resp.StatusCode).
		Str("identity_id", action.IdentityID).
		Str("action", action.Kind).
		Msg("hr submission rejected")
	return Result{Success: false, ErrorMessage: msg, StatusCode: resp.StatusCode}
}

// readErrorBody extracts a short error message from a failure response.
// Bodies are capped so a misbehaving backend cannot balloon memory.
func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4<<10))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	return string(raw)
}
