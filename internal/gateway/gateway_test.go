package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/attendly/go-timeclock-backend/internal/config"
	"github.com/attendly/go-timeclock-backend/internal/events"
)

func testGatewayConfig(url string) config.GatewayConfig {
	return config.GatewayConfig{
		BaseURL:     url,
		APIKey:      "secret-key",
		APIKeyTTL:   time.Minute,
		HTTPTimeout: 2 * time.Second,
	}
}

func TestHTTPGatewaySubmitSuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/time-entries" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	g := NewHTTPGateway(testGatewayConfig(srv.URL))
	res := g.Submit(context.Background(), Action{IdentityID: "emp-1", Kind: "clock_in", Timestamp: time.Now()})

	if !res.Success || res.StatusCode != http.StatusCreated {
		t.Fatalf("result = %+v; want success 201", res)
	}
	if gotAuth != "Bearer secret-key" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

func TestHTTPGatewaySubmitFailureCarriesStatusAndMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"message":"upstream HR outage"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(testGatewayConfig(srv.URL))
	res := g.Submit(context.Background(), Action{IdentityID: "emp-1", Kind: "clock_in"})

	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.StatusCode != http.StatusBadGateway || res.ErrorMessage != "upstream HR outage" {
		t.Fatalf("result = %+v", res)
	}
}

func TestHTTPGatewaySubmitTransportError(t *testing.T) {
	g := NewHTTPGateway(testGatewayConfig("http://127.0.0.1:1"))
	res := g.Submit(context.Background(), Action{IdentityID: "emp-1", Kind: "clock_out"})
	if res.Success || res.StatusCode != 0 || res.ErrorMessage == "" {
		t.Fatalf("result = %+v; want transport failure with status 0", res)
	}
}

func TestHTTPGatewayMissingAPIKey(t *testing.T) {
	cfg := testGatewayConfig("http://unused")
	cfg.APIKey = ""
	g := NewHTTPGateway(cfg)
	res := g.Submit(context.Background(), Action{})
	if res.Success || res.ErrorMessage == "" {
		t.Fatalf("result = %+v; want key failure", res)
	}
}

func TestAPIKeyCacheRefreshesOnExpiry(t *testing.T) {
	var calls int32
	provider := func(context.Context) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return "first", nil
		}
		return "second", nil
	}
	c := newAPIKeyCache(provider, 20*time.Millisecond)

	v, err := c.get(context.Background())
	if err != nil || v != "first" {
		t.Fatalf("get = %q, %v", v, err)
	}
	// Fresh entry is served without another pull.
	if v, _ := c.get(context.Background()); v != "first" {
		t.Fatalf("cache refreshed too early: %q", v)
	}

	time.Sleep(30 * time.Millisecond)
	if v, _ := c.get(context.Background()); v != "second" {
		t.Fatalf("cache not refreshed after expiry: %q", v)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("provider calls = %d; want 2", calls)
	}
}

func TestSubmitOrPublishPublishesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	bus := events.NewBus()
	var got events.SubmissionFailed
	handled := false
	bus.SubscribeSubmissionFailed(func(ctx context.Context, ev events.SubmissionFailed) {
		got = ev
		handled = true
	})

	g := NewHTTPGateway(testGatewayConfig(srv.URL))
	ts := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	res := SubmitOrPublish(context.Background(), g, bus,
		Action{IdentityID: "emp-1", Kind: "clock_in", Timestamp: ts},
		"thread-1", "msg-1", map[string]any{"site": "hq"})

	if res.Success {
		t.Fatalf("expected failure result")
	}
	if !handled {
		t.Fatalf("failure event not published")
	}
	if got.IdentityID != "emp-1" || got.ThreadID != "thread-1" || got.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("event = %+v", got)
	}
	if !got.TargetTimestamp.Equal(ts) {
		t.Fatalf("timestamp = %v; want %v", got.TargetTimestamp, ts)
	}
}

func TestSubmitOrPublishSkipsBusOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus := events.NewBus()
	published := false
	bus.SubscribeSubmissionFailed(func(ctx context.Context, ev events.SubmissionFailed) { published = true })

	g := NewHTTPGateway(testGatewayConfig(srv.URL))
	res := SubmitOrPublish(context.Background(), g, bus, Action{IdentityID: "emp-1", Kind: "clock_out"}, "t", "m", nil)

	if !res.Success {
		t.Fatalf("expected success")
	}
	if published {
		t.Fatalf("success must not publish a failure event")
	}
}
