// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/seopilot/internal/middleware"
	"github.com/hitoshi/seopilot/internal/model"
)

// defaultListLimit は記事一覧のデフォルト取得件数。
const defaultListLimit = 50

// PostStoreInterface は記事ハンドラーが必要とするリポジトリインターフェース。
type PostStoreInterface interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ScheduledPost, error)
	// ListByUser はユーザーの記事一覧を返す。
	ListByUser(ctx context.Context, userID string, status model.PublishStatus, limit int) ([]*model.ScheduledPost, error)
	// ResetForRetry はfailed状態の記事を手動でreadyに戻す。
	ResetForRetry(ctx context.Context, id string) error
	// Cancel はready/pending状態の記事をcancelledにする。
	Cancel(ctx context.Context, id string) error
}

// PostHandler は予約記事管理のHTTPハンドラー。
type PostHandler struct {
	store PostStoreInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(store PostStoreInterface) *PostHandler {
	return &PostHandler{store: store}
}

// postResponse は記事情報のAPIレスポンス。
type postResponse struct {
	ID            string     `json:"id"`
	SiteID        string     `json:"site_id"`
	Title         string     `json:"title"`
	ScheduledFor  time.Time  `json:"scheduled_for"`
	Timezone      string     `json:"timezone,omitempty"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	WPPostID      int64      `json:"wp_post_id,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	PublishError  string     `json:"publish_error,omitempty"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// validStatusFilters は一覧取得で指定可能なステータスフィルター。
var validStatusFilters = map[model.PublishStatus]bool{
	model.PublishStatusPending:    true,
	model.PublishStatusReady:      true,
	model.PublishStatusInProgress: true,
	model.PublishStatusPublished:  true,
	model.PublishStatusFailed:     true,
	model.PublishStatusCancelled:  true,
}

// ListPosts はユーザーの記事一覧を取得する。
// GET /api/posts?status=&limit=
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	status := model.PublishStatus(r.URL.Query().Get("status"))
	if status != "" && !validStatusFilters[status] {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidStatusFilterError(string(status)))
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	posts, err := h.store.ListByUser(r.Context(), userID, status, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]postResponse, 0, len(posts))
	for _, post := range posts {
		responses = append(responses, toPostResponse(post))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"posts": responses})
}

// GetPost は記事詳細を取得する。
// GET /api/posts/:id
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, ok := h.findOwnedPost(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPostResponse(post))
}

// RetryPost はfailed状態の記事を手動で公開待ちに戻す。
// POST /api/posts/:id/retry
func (h *PostHandler) RetryPost(w http.ResponseWriter, r *http.Request) {
	post, ok := h.findOwnedPost(w, r)
	if !ok {
		return
	}

	if post.Status != model.PublishStatusFailed {
		writeAPIErrorResponse(w, http.StatusConflict, model.NewPostNotRetryableError(post.Status))
		return
	}

	if err := h.store.ResetForRetry(r.Context(), post.ID); err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("記事を手動で公開待ちに戻しました",
		slog.String("post_id", post.ID),
	)

	post.Status = model.PublishStatusReady
	post.Attempts = 0
	post.PublishError = ""

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPostResponse(post))
}

// CancelPost は公開前の記事を取り消す。
// POST /api/posts/:id/cancel
func (h *PostHandler) CancelPost(w http.ResponseWriter, r *http.Request) {
	post, ok := h.findOwnedPost(w, r)
	if !ok {
		return
	}

	if post.Status != model.PublishStatusPending && post.Status != model.PublishStatusReady {
		writeAPIErrorResponse(w, http.StatusConflict, model.NewPostNotCancellableError(post.Status))
		return
	}

	if err := h.store.Cancel(r.Context(), post.ID); err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("記事の公開を取り消しました",
		slog.String("post_id", post.ID),
	)

	post.Status = model.PublishStatusCancelled

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPostResponse(post))
}

// findOwnedPost はパスの記事IDから認証ユーザー所有の記事を取得する。
// 見つからない場合・他ユーザーの記事の場合は404を書き込みfalseを返す。
func (h *PostHandler) findOwnedPost(w http.ResponseWriter, r *http.Request) (*model.ScheduledPost, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}

	postID := chi.URLParam(r, "id")

	post, err := h.store.FindByID(r.Context(), postID)
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}

	// 他ユーザーの記事は存在を漏らさないため404にする
	if post == nil || post.UserID != userID {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPostNotFoundError(postID))
		return nil, false
	}

	return post, true
}

// --- ヘルパー関数 ---

// toPostResponse はmodel.ScheduledPostからAPIレスポンスに変換する。
func toPostResponse(post *model.ScheduledPost) postResponse {
	return postResponse{
		ID:            post.ID,
		SiteID:        post.SiteID,
		Title:         post.Title,
		ScheduledFor:  post.ScheduledFor,
		Timezone:      post.Timezone,
		Status:        string(post.Status),
		Attempts:      post.Attempts,
		NextAttemptAt: post.NextAttemptAt,
		WPPostID:      post.WPPostID,
		PublishedAt:   post.PublishedAt,
		PublishError:  post.PublishError,
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidURL, model.ErrCodeInvalidStatusFilter:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodePostNotFound, model.ErrCodeSiteNotFound:
		return http.StatusNotFound
	case model.ErrCodePostNotRetryable, model.ErrCodePostNotCancellable:
		return http.StatusConflict
	case model.ErrCodeMissingCredentials:
		return http.StatusUnprocessableEntity
	case model.ErrCodeSiteVerifyFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
