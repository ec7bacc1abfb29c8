package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/seopilot/internal/middleware"
	"github.com/hitoshi/seopilot/internal/model"
)

const routerTestToken = "router-test-api-token"

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

func newTestRouter(t *testing.T, health *mockHealthChecker) http.Handler {
	t.Helper()
	return NewRouter(&RouterDeps{
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		CORSAllowedOrigin: "https://app.example.com",
		RateLimiter:       middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig()),
		AdminAPIToken:     routerTestToken,
		CronSecret:        testCronSecret,
		PublishRunner:     &mockRunner{summary: &model.RunSummary{}},
		PostStore:         &mockPostStore{posts: map[string]*model.ScheduledPost{}},
		SiteStore:         &mockSiteStore{sites: map[string]*model.WordPressSite{}},
		SiteVerifier:      &mockVerifier{},
		HealthChecker:     health,
		MetricsGatherer:   prometheus.NewRegistry(),
	})
}

func TestRouter_Health_OK(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %s, want ok", body["status"])
	}
}

func TestRouter_Health_DBDown_Returns503(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{err: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRouter_Metrics_Public(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_CronPublish_UsesSecretNotToken(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	// Bearerトークンなしでもsecretが正しければ実行できる
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cron/publish?secret="+testCronSecret, nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_APIRoutes_RequireToken(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/posts"},
		{http.MethodGet, "/api/posts/post-1"},
		{http.MethodPost, "/api/posts/post-1/retry"},
		{http.MethodPost, "/api/posts/post-1/cancel"},
		{http.MethodGet, "/api/sites"},
		{http.MethodPost, "/api/sites"},
		{http.MethodPost, "/api/sites/site-1/verify"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(route.method, route.path, nil))

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRouter_APIRoutes_WithToken(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.Header.Set("Authorization", "Bearer "+routerTestToken)
	req.Header.Set("X-User-ID", "user-1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_SecurityHeaders_Set(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("X-Content-Type-Optionsヘッダーが設定されるべき")
	}
}
