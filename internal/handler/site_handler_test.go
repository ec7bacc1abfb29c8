package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/seopilot/internal/middleware"
	"github.com/hitoshi/seopilot/internal/model"
	"github.com/hitoshi/seopilot/internal/sitecheck"
)

// mockSiteStore はSiteStoreInterfaceのモック実装。
type mockSiteStore struct {
	sites      map[string]*model.WordPressSite
	listResult []*model.WordPressSite
	created    *model.WordPressSite
}

func (m *mockSiteStore) FindByID(ctx context.Context, id string) (*model.WordPressSite, error) {
	return m.sites[id], nil
}

func (m *mockSiteStore) ListByUser(ctx context.Context, userID string) ([]*model.WordPressSite, error) {
	return m.listResult, nil
}

func (m *mockSiteStore) Create(ctx context.Context, site *model.WordPressSite) error {
	m.created = site
	return nil
}

// mockVerifier はSiteVerifierInterfaceのモック実装。
type mockVerifier struct {
	result *sitecheck.Result
	err    error
	called bool
}

func (m *mockVerifier) Verify(ctx context.Context, site *model.WordPressSite) (*sitecheck.Result, error) {
	m.called = true
	return m.result, m.err
}

func newSiteRouter(store *mockSiteStore, verifier *mockVerifier) http.Handler {
	h := NewSiteHandler(store, verifier)
	r := chi.NewRouter()
	r.Route("/api/sites", func(r chi.Router) {
		r.Post("/", h.RegisterSite)
		r.Get("/", h.ListSites)
		r.Post("/{id}/verify", h.VerifySite)
	})
	return r
}

func authedSiteRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
}

func TestRegisterSite_Success(t *testing.T) {
	store := &mockSiteStore{}
	router := newSiteRouter(store, &mockVerifier{})

	body := `{"site_url":"https://blog.example.com","wp_username":"admin","wp_app_password":"xxxx yyyy zzzz"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedSiteRequest(http.MethodPost, "/api/sites", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	if store.created == nil {
		t.Fatal("サイトが作成されるべき")
	}
	if store.created.ID == "" {
		t.Error("IDが採番されるべき")
	}
	if store.created.UserID != "user-1" {
		t.Errorf("user_id = %s, want user-1", store.created.UserID)
	}

	var resp siteResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.SiteURL != "https://blog.example.com" {
		t.Errorf("site_url = %s", resp.SiteURL)
	}
}

func TestRegisterSite_ResponseOmitsAppPassword(t *testing.T) {
	router := newSiteRouter(&mockSiteStore{}, &mockVerifier{})

	body := `{"site_url":"https://blog.example.com","wp_username":"admin","wp_app_password":"secret-pass"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedSiteRequest(http.MethodPost, "/api/sites", body))

	if strings.Contains(rec.Body.String(), "secret-pass") {
		t.Error("アプリケーションパスワードはレスポンスに含めないべき")
	}
}

func TestRegisterSite_InvalidURL_Returns400(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"空のURL", `{"site_url":""}`},
		{"スキームなし", `{"site_url":"blog.example.com"}`},
		{"ftpスキーム", `{"site_url":"ftp://blog.example.com"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newSiteRouter(&mockSiteStore{}, &mockVerifier{})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, authedSiteRequest(http.MethodPost, "/api/sites", tt.body))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}

			var body apiErrorResponse
			json.NewDecoder(rec.Body).Decode(&body)
			if body.Code != "INVALID_URL" {
				t.Errorf("code = %s, want INVALID_URL", body.Code)
			}
		})
	}
}

func TestListSites_ReturnsUserSites(t *testing.T) {
	store := &mockSiteStore{
		listResult: []*model.WordPressSite{
			{ID: "site-1", UserID: "user-1", SiteURL: "https://a.example.com"},
			{ID: "site-2", UserID: "user-1", SiteURL: "https://b.example.com"},
		},
	}
	router := newSiteRouter(store, &mockVerifier{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedSiteRequest(http.MethodGet, "/api/sites", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Sites []siteResponse `json:"sites"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if len(body.Sites) != 2 {
		t.Errorf("サイト数 = %d, want 2", len(body.Sites))
	}
}

func TestVerifySite_Success(t *testing.T) {
	now := time.Now()
	store := &mockSiteStore{
		sites: map[string]*model.WordPressSite{
			"site-1": {ID: "site-1", UserID: "user-1", SiteURL: "https://blog.example.com"},
		},
	}
	verifier := &mockVerifier{
		result: &sitecheck.Result{
			SiteID:          "site-1",
			FeedURL:         "https://blog.example.com/feed/",
			RemotePostCount: 12,
			VerifiedAt:      now,
		},
	}
	router := newSiteRouter(store, verifier)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedSiteRequest(http.MethodPost, "/api/sites/site-1/verify", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body verifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if body.RemotePostCount != 12 {
		t.Errorf("remote_post_count = %d, want 12", body.RemotePostCount)
	}
}

func TestVerifySite_NotFound_Returns404(t *testing.T) {
	router := newSiteRouter(&mockSiteStore{sites: map[string]*model.WordPressSite{}}, &mockVerifier{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedSiteRequest(http.MethodPost, "/api/sites/none/verify", ""))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestVerifySite_OtherUsersSite_Returns404(t *testing.T) {
	store := &mockSiteStore{
		sites: map[string]*model.WordPressSite{
			"site-1": {ID: "site-1", UserID: "user-2", SiteURL: "https://b.example.com"},
		},
	}
	verifier := &mockVerifier{}
	router := newSiteRouter(store, verifier)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedSiteRequest(http.MethodPost, "/api/sites/site-1/verify", ""))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if verifier.called {
		t.Error("他ユーザーのサイトは検証されないべき")
	}
}

func TestVerifySite_VerifyFails_Returns502(t *testing.T) {
	store := &mockSiteStore{
		sites: map[string]*model.WordPressSite{
			"site-1": {ID: "site-1", UserID: "user-1", SiteURL: "https://blog.example.com"},
		},
	}
	verifier := &mockVerifier{err: model.NewSiteVerifyFailedError("REST APIルートがステータス 403 を返しました")}
	router := newSiteRouter(store, verifier)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedSiteRequest(http.MethodPost, "/api/sites/site-1/verify", ""))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}
