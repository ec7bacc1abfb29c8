package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testAPIToken = "test-api-token-1234"

// okHandler はコンテキストのユーザーIDを返すテスト用ハンドラー。
func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())
		w.Write([]byte(userID))
	})
}

func TestTokenAuth_ValidToken_Passes(t *testing.T) {
	handler := NewTokenAuthMiddleware(testAPIToken)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIToken)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestTokenAuth_MissingToken_Returns401(t *testing.T) {
	handler := NewTokenAuthMiddleware(testAPIToken)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if body.Code != "UNAUTHORIZED" {
		t.Errorf("code = %s, want UNAUTHORIZED", body.Code)
	}
}

func TestTokenAuth_WrongToken_Returns401(t *testing.T) {
	handler := NewTokenAuthMiddleware(testAPIToken)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestTokenAuth_NonBearerScheme_Returns401(t *testing.T) {
	handler := NewTokenAuthMiddleware(testAPIToken)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.Header.Set("Authorization", "Basic "+testAPIToken)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestTokenAuth_UserIDHeader_InjectedIntoContext(t *testing.T) {
	handler := NewTokenAuthMiddleware(testAPIToken)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIToken)
	req.Header.Set("X-User-ID", "user-42")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Body.String(); got != "user-42" {
		t.Errorf("コンテキストのユーザーID = %q, want user-42", got)
	}
}

func TestUserIDFromContext_MissingUserID_ReturnsError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if _, err := UserIDFromContext(req.Context()); err == nil {
		t.Error("ユーザーIDがないコンテキストはエラーを返すべき")
	}
}
