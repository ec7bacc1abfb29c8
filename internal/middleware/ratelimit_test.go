package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1000),
		GeneralBurst:    2,
		VerifyRate:      rate.Limit(1000),
		VerifyBurst:     1,
		CleanupInterval: time.Hour,
	}
}

func authedRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

func TestGeneralMiddleware_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest("user-1"))
		if rec.Code != http.StatusOK {
			t.Errorf("リクエスト%d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestGeneralMiddleware_ExceedsBurst_Returns429(t *testing.T) {
	config := testRateLimiterConfig()
	config.GeneralRate = rate.Limit(0.001) // 補充をほぼ止める
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// バースト分を消費
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), authedRequest("user-1"))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-1"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-Afterヘッダーが設定されるべき")
	}
}

func TestGeneralMiddleware_UsersAreIndependent(t *testing.T) {
	config := testRateLimiterConfig()
	config.GeneralRate = rate.Limit(0.001)
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// user-1のバーストを使い切る
	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), authedRequest("user-1"))
	}

	// user-2は影響を受けない
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-2"))
	if rec.Code != http.StatusOK {
		t.Errorf("user-2のstatus = %d, want 200", rec.Code)
	}
}

func TestGeneralMiddleware_NoUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posts", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSiteVerifyMiddleware_IndependentFromGeneral(t *testing.T) {
	config := testRateLimiterConfig()
	config.VerifyRate = rate.Limit(0.001)
	rl := NewRateLimiter(config)
	defer rl.Stop()

	verifyHandler := rl.SiteVerifyMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	generalHandler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// サイト検証のバースト（1）を使い切る
	verifyHandler.ServeHTTP(httptest.NewRecorder(), authedRequest("user-1"))

	rec := httptest.NewRecorder()
	verifyHandler.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("サイト検証2回目のstatus = %d, want 429", rec.Code)
	}

	// API全般のリミッターは独立している
	rec = httptest.NewRecorder()
	generalHandler.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusOK {
		t.Errorf("API全般のstatus = %d, want 200", rec.Code)
	}
}

func TestRateLimiter_LimiterCountGrowsPerUser(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), authedRequest("user-1"))
	handler.ServeHTTP(httptest.NewRecorder(), authedRequest("user-2"))
	handler.ServeHTTP(httptest.NewRecorder(), authedRequest("user-1"))

	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("リミッターのエントリ数 = %d, want 2", got)
	}
}
