package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/proanbud/proanbud-api/internal/auth"
	"github.com/proanbud/proanbud-api/internal/config"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/http/middleware"
	"github.com/proanbud/proanbud-api/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func corsConfig(origins ...string) *config.CORSConfig {
	return &config.CORSConfig{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Account-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func preflight(handler http.Handler, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/quotes", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		environment string
		origin      string
		allowed     bool
	}{
		{name: "development allows all", environment: "development", origin: "http://localhost:5173", allowed: true},
		{name: "explicit origin allowed", origins: []string{"https://app.proanbud.no"}, environment: "production", origin: "https://app.proanbud.no", allowed: true},
		{name: "explicit origin rejects others", origins: []string{"https://app.proanbud.no"}, environment: "production", origin: "https://evil.example.com"},
		{name: "wildcard", origins: []string{"*"}, environment: "production", origin: "https://any.example.com", allowed: true},
		{name: "production without origins denies", environment: "production", origin: "https://app.proanbud.no"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.CORS(corsConfig(tt.origins...), tt.environment, zap.NewNop())(okHandler)

			w := preflight(handler, tt.origin)

			if tt.allowed {
				assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	cfg := &config.SecurityConfig{
		EnableHSTS:            true,
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		FrameOptions:          "DENY",
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}
	handler := middleware.SecurityHeaders(cfg)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quotes", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Content-Security-Policy"))
	assert.Empty(t, w.Header().Get("X-XSS-Protection"))
}

func TestSecurityHeaders_HealthIsCacheable(t *testing.T) {
	handler := middleware.SecurityHeaders(&config.SecurityConfig{})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func rateLimitConfig() *config.RateLimitConfig {
	return &config.RateLimitConfig{
		Enabled:               true,
		RequestsPerMinute:     2,
		RequestsPerMinuteAuth: 3,
		WhitelistIPs:          []string{"127.0.0.1"},
		WhitelistPaths:        []string{"/health", "/swagger/*"},
	}
}

func hit(ctx context.Context, handler http.Handler, path, ip string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
	req.RemoteAddr = ip + ":40000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_LimitByIP(t *testing.T) {
	rl := middleware.NewRateLimiter(rateLimitConfig(), zap.NewNop())
	handler := rl.LimitByIP(okHandler)
	ctx := context.Background()

	assert.Equal(t, http.StatusOK, hit(ctx, handler, "/api/v1/quotes", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit(ctx, handler, "/api/v1/quotes", "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit(ctx, handler, "/api/v1/quotes", "10.0.0.1"))

	assert.Equal(t, http.StatusOK, hit(ctx, handler, "/api/v1/quotes", "10.0.0.2"), "other clients are counted separately")
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(ctx, handler, "/api/v1/quotes", "127.0.0.1"))
		assert.Equal(t, http.StatusOK, hit(ctx, handler, "/swagger/index.html", "10.0.0.1"))
	}
}

func TestRateLimiter_PerAccount(t *testing.T) {
	rl := middleware.NewRateLimiter(rateLimitConfig(), zap.NewNop())
	handler := rl.Limit(okHandler)
	alice := auth.WithAccount(context.Background(), &auth.Account{AccountID: "alice"})
	bob := auth.WithAccount(context.Background(), &auth.Account{AccountID: "bob"})

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, hit(alice, handler, "/api/v1/quotes", "10.0.0.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(alice, handler, "/api/v1/quotes", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit(bob, handler, "/api/v1/quotes", "10.0.0.1"))
}

func TestRateLimiter_ResponseFormat(t *testing.T) {
	cfg := rateLimitConfig()
	cfg.RequestsPerMinute = 1
	handler := middleware.NewRateLimiter(cfg, zap.NewNop()).LimitByIP(okHandler)

	hit(context.Background(), handler, "/api/v1/quotes", "10.0.0.9")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/quotes", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.9, 192.168.0.1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	var body domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusTooManyRequests, body.Status)
}

func TestRateLimiter_Disabled(t *testing.T) {
	cfg := rateLimitConfig()
	cfg.Enabled = false
	handler := middleware.NewRateLimiter(cfg, zap.NewNop()).LimitByIP(okHandler)

	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, hit(context.Background(), handler, "/api/v1/quotes", "10.0.0.1"))
	}
}

func TestLogging_RequestID(t *testing.T) {
	var seen string
	handler := middleware.Logging(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quotes", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(middleware.RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/quotes", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "req-42", seen)
}

func TestLogging_PreservesFlusher(t *testing.T) {
	var flushable bool
	handler := middleware.Logging(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, flushable)
}

func TestRecovery(t *testing.T) {
	handler := middleware.Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/quotes", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, domain.ErrorTypeInternal, body.Type)
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := chi.NewRouter()
	r.Use(middleware.Metrics(metrics.NewHTTPMetrics(reg)))
	r.Get("/api/v1/quotes/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/quotes/"+id, nil))
	}

	count, err := testutil.GatherAndCount(reg, "proanbud_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
