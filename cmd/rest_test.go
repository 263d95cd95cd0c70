package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/AzielCF/az-users/core/config"
	"github.com/AzielCF/az-users/infrastructure/valkey/valkeytest"
)

func testConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{
			Port:               "0",
			Environment:        "test",
			InstanceID:         "test-instance",
			CorsAllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Name:   filepath.Join(t.TempDir(), "users.db"),
		},
		Valkey: config.ValkeyConfig{Enabled: false, OpTimeout: 100 * time.Millisecond},
		Cache:  config.CacheConfig{TTL: time.Minute, StaleTTL: time.Hour},
		RateLimit: config.RateLimitConfig{
			Window:           time.Minute,
			MaxRequests:      100,
			StrictMax:        2,
			LocalCapacity:    100,
			IPv6PrefixLength: 64,
		},
		External: config.ExternalConfig{APIURL: apiURL, Timeout: time.Second},
		Health:   config.HealthConfig{PingInterval: time.Second},
		Security: config.SecurityConfig{BcryptCost: bcrypt.MinCost},
	}
}

// newUpstream serves a fixed payload, or 500 while failing is set.
func newUpstream(t *testing.T) (string, *atomic.Bool) {
	t.Helper()
	failing := &atomic.Bool{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[1,2,3]}`))
	}))
	t.Cleanup(upstream.Close)
	return upstream.URL, failing
}

func startApp(t *testing.T, cfg *config.Config) (*fiber.App, *App) {
	t.Helper()
	a, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return newRestApp(a), a
}

func setupRest(t *testing.T) (*fiber.App, *App) {
	t.Helper()
	url, _ := newUpstream(t)
	return startApp(t, testConfig(t, url))
}

func do(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestRest_Health(t *testing.T) {
	app, _ := setupRest(t)

	resp, raw := do(t, app, fiber.MethodGet, "/health", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "100", resp.Header.Get("RateLimit-Limit"))
	assert.Equal(t, "Hidden", resp.Header.Get(fiber.HeaderServer))

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "test-instance", body["instance"])
	assert.Equal(t, "available", body["sharedStore"])
}

func TestRest_StrictLimitOnUsers(t *testing.T) {
	app, _ := setupRest(t)

	for i := 0; i < 2; i++ {
		resp, raw := do(t, app, fiber.MethodPost, "/users",
			fmt.Sprintf(`{"email":"user%d@example.com","password":"Secret123"}`, i))
		require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
		assert.Equal(t, "2", resp.Header.Get("RateLimit-Limit"))
	}

	resp, raw := do(t, app, fiber.MethodPost, "/users", `{"email":"user9@example.com","password":"Secret123"}`)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Message    string `json:"message"`
			StatusCode int    `json:"statusCode"`
			Path       string `json:"path"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.False(t, body.Success)
	assert.Equal(t, strictLimitMessage, body.Error.Message)
	assert.Equal(t, fiber.StatusTooManyRequests, body.Error.StatusCode)
	assert.Equal(t, "/users", body.Error.Path)

	// the strict limiter does not guard reads
	resp, _ = do(t, app, fiber.MethodGet, "/health", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRest_StrictLimitOnCacheClear(t *testing.T) {
	app, _ := setupRest(t)

	for i := 0; i < 2; i++ {
		resp, _ := do(t, app, fiber.MethodPost, "/extra-api/cache/clear", "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("RateLimit-Limit"))
	}

	resp, raw := do(t, app, fiber.MethodPost, "/extra-api/cache/clear", "")
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(raw), strictLimitMessage)

	// same budget as registration
	resp, _ = do(t, app, fiber.MethodPost, "/users", `{"email":"late@example.com","password":"Secret123"}`)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	resp, _ = do(t, app, fiber.MethodGet, "/extra-api", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRest_ClearKeepsStaleFallback(t *testing.T) {
	url, failing := newUpstream(t)
	app, _ := startApp(t, testConfig(t, url))

	resp, _ := do(t, app, fiber.MethodGet, "/extra-api", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))

	failing.Store(true)

	resp, _ = do(t, app, fiber.MethodPost, "/extra-api/cache/clear", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, raw := do(t, app, fiber.MethodGet, "/extra-api", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, "STALE", resp.Header.Get("X-Cache"))
	assert.JSONEq(t, `{"success":true,"data":{"items":[1,2,3]}}`, string(raw))
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func healthState(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, raw := do(t, app, fiber.MethodGet, "/health", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body struct {
		SharedStore string `json:"sharedStore"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body.SharedStore
}

func TestRest_ValkeyRecoversAfterStartup(t *testing.T) {
	url, _ := newUpstream(t)
	addr := freeAddr(t)

	cfg := testConfig(t, url)
	cfg.Valkey = config.ValkeyConfig{
		Enabled:   true,
		Address:   addr,
		KeyPrefix: "azusers-test",
		OpTimeout: 300 * time.Millisecond,
	}
	cfg.Health.PingInterval = 50 * time.Millisecond

	app, a := startApp(t, cfg)

	assert.False(t, a.Detector.IsAvailable())
	assert.Equal(t, "degraded", healthState(t, app))
	assert.True(t, a.Lenient.Admit(context.Background(), "10.0.0.9").Degraded)

	srv := valkeytest.NewServerAt(t, addr)

	require.Eventually(t, a.Detector.IsAvailable, 5*time.Second, 20*time.Millisecond)
	assert.True(t, a.Reconnector.Connected())
	assert.Equal(t, "available", healthState(t, app))

	d := a.Lenient.Admit(context.Background(), "10.0.0.9")
	assert.False(t, d.Degraded)
	assert.NotEmpty(t, srv.Calls("EVAL"))

	resp, _ := do(t, app, fiber.MethodGet, "/extra-api", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	assert.NotEmpty(t, srv.Calls("SET"))

	resp, _ = do(t, app, fiber.MethodGet, "/extra-api", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))

	_, raw := do(t, app, fiber.MethodGet, "/metrics", "")
	text := string(raw)
	assert.Contains(t, text, "azusers_store_available 1")
	assert.Contains(t, text, `azusers_ratelimit_decisions_total{backend="distributed",limiter="global",result="allowed"}`)
}

func TestRest_ExternalDataIsCached(t *testing.T) {
	app, _ := setupRest(t)

	resp, raw := do(t, app, fiber.MethodGet, "/extra-api", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	assert.JSONEq(t, `{"success":true,"data":{"items":[1,2,3]}}`, string(raw))

	resp, raw = do(t, app, fiber.MethodGet, "/extra-api", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	assert.JSONEq(t, `{"success":true,"data":{"items":[1,2,3]}}`, string(raw))
}

func TestRest_Metrics(t *testing.T) {
	app, _ := setupRest(t)

	resp, _ := do(t, app, fiber.MethodGet, "/extra-api", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, raw := do(t, app, fiber.MethodGet, "/metrics", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("RateLimit-Limit"))

	text := string(raw)
	assert.Contains(t, text, `http_request_duration_seconds_bucket{code="200",method="GET",route="/extra-api"`)
	assert.Contains(t, text, `azusers_cache_results_total{outcome="miss"} 1`)
	assert.Contains(t, text, "azusers_store_available 1")
	assert.Contains(t, text, `azusers_ratelimit_decisions_total{backend="local",limiter="global",result="allowed"}`)
	assert.NotContains(t, text, `backend="distributed"`)
}

func TestRest_NotFound(t *testing.T) {
	app, _ := setupRest(t)

	resp, raw := do(t, app, fiber.MethodGet, "/nope", "")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(raw), "Route GET /nope not found")
}
