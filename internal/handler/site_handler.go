package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/seopilot/internal/middleware"
	"github.com/hitoshi/seopilot/internal/model"
	"github.com/hitoshi/seopilot/internal/sitecheck"
)

// SiteStoreInterface はサイトハンドラーが必要とするリポジトリインターフェース。
type SiteStoreInterface interface {
	// FindByID は指定IDのサイトを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.WordPressSite, error)
	// ListByUser はユーザーのサイト一覧を返す。
	ListByUser(ctx context.Context, userID string) ([]*model.WordPressSite, error)
	// Create はサイトを作成する。
	Create(ctx context.Context, site *model.WordPressSite) error
}

// SiteVerifierInterface はサイト検証のインターフェース。
type SiteVerifierInterface interface {
	// Verify はサイトを検証し、結果をサイトレコードに記録する。
	Verify(ctx context.Context, site *model.WordPressSite) (*sitecheck.Result, error)
}

// SiteHandler はWordPressサイト管理のHTTPハンドラー。
type SiteHandler struct {
	store    SiteStoreInterface
	verifier SiteVerifierInterface
}

// NewSiteHandler はSiteHandlerを生成する。
func NewSiteHandler(store SiteStoreInterface, verifier SiteVerifierInterface) *SiteHandler {
	return &SiteHandler{
		store:    store,
		verifier: verifier,
	}
}

// registerSiteRequest はサイト登録リクエストのボディ。
type registerSiteRequest struct {
	SiteURL       string `json:"site_url"`
	WPUsername    string `json:"wp_username"`
	WPAppPassword string `json:"wp_app_password"`
}

// siteResponse はサイト情報のAPIレスポンス。
// アプリケーションパスワードはレスポンスに含めない。
type siteResponse struct {
	ID              string     `json:"id"`
	SiteURL         string     `json:"site_url"`
	WPUsername      string     `json:"wp_username"`
	FeedURL         string     `json:"feed_url,omitempty"`
	LastVerifiedAt  *time.Time `json:"last_verified_at,omitempty"`
	RemotePostCount int        `json:"remote_post_count"`
}

// verifyResponse はサイト検証結果のAPIレスポンス。
type verifyResponse struct {
	SiteID          string    `json:"site_id"`
	FeedURL         string    `json:"feed_url,omitempty"`
	RemotePostCount int       `json:"remote_post_count"`
	VerifiedAt      time.Time `json:"verified_at"`
}

// RegisterSite は公開先WordPressサイトを登録する。
// POST /api/sites
func (h *SiteHandler) RegisterSite(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req registerSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if reason, ok := validateSiteURL(req.SiteURL); !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError(reason))
		return
	}

	now := time.Now()
	site := &model.WordPressSite{
		ID:            uuid.New().String(),
		UserID:        userID,
		SiteURL:       req.SiteURL,
		WPUsername:    req.WPUsername,
		WPAppPassword: req.WPAppPassword,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.store.Create(r.Context(), site); err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("公開先サイトを登録しました",
		slog.String("site_id", site.ID),
		slog.String("user_id", userID),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toSiteResponse(site))
}

// ListSites はユーザーのサイト一覧を取得する。
// GET /api/sites
func (h *SiteHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	sites, err := h.store.ListByUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]siteResponse, 0, len(sites))
	for _, site := range sites {
		responses = append(responses, toSiteResponse(site))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"sites": responses})
}

// VerifySite はサイトの疎通確認とフィード棚卸しを実行する。
// POST /api/sites/:id/verify
func (h *SiteHandler) VerifySite(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	siteID := chi.URLParam(r, "id")

	site, err := h.store.FindByID(r.Context(), siteID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if site == nil || site.UserID != userID {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewSiteNotFoundError(siteID))
		return
	}

	result, err := h.verifier.Verify(r.Context(), site)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(verifyResponse{
		SiteID:          result.SiteID,
		FeedURL:         result.FeedURL,
		RemotePostCount: result.RemotePostCount,
		VerifiedAt:      result.VerifiedAt,
	})
}

// validateSiteURL はサイトURLの形式を検証する。
func validateSiteURL(rawURL string) (string, bool) {
	if rawURL == "" {
		return "URLが空です", false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "URLの形式が正しくありません", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "http/https以外のスキームは使用できません", false
	}
	if parsed.Host == "" {
		return "ホスト名がありません", false
	}
	return "", true
}

// toSiteResponse はmodel.WordPressSiteからAPIレスポンスに変換する。
func toSiteResponse(site *model.WordPressSite) siteResponse {
	return siteResponse{
		ID:              site.ID,
		SiteURL:         site.SiteURL,
		WPUsername:      site.WPUsername,
		FeedURL:         site.FeedURL,
		LastVerifiedAt:  site.LastVerifiedAt,
		RemotePostCount: site.RemotePostCount,
	}
}
