package gateway

import (
	"context"
	"errors"
	"sync"
	"time"
)

// KeyProvider fetches the current API key from its source of truth.
type KeyProvider func(ctx context.Context) (string, error)

// staticKeyProvider serves a fixed key from configuration.
func staticKeyProvider(key string) KeyProvider {
	return func(context.Context) (string, error) {
		if key == "" {
			return "", errors.New("HR_API_KEY not configured")
		}
		return key, nil
	}
}

// apiKeyCache holds one key together with its expiry. Every read checks the
// expiry and pulls a fresh value from the provider when stale; nothing is
// cached without a deadline.
type apiKeyCache struct {
	provider KeyProvider
	ttl      time.Duration

	mu        sync.Mutex
	value     string
	expiresAt time.Time
}

func newAPIKeyCache(p KeyProvider, ttl time.Duration) *apiKeyCache {
	return &apiKeyCache{provider: p, ttl: ttl}
}

// get returns the cached key when still fresh, otherwise refreshes it.
// A failed refresh does not extend a stale entry.
func (c *apiKeyCache) get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.value != "" && now.Before(c.expiresAt) {
		return c.value, nil
	}

	v, err := c.provider(ctx)
	if err != nil {
		return "", err
	}
	c.value = v
	c.expiresAt = now.Add(c.ttl)
	return v, nil
}
