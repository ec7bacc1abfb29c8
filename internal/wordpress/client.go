// Package wordpress はWordPress REST APIのクライアントを提供する。
// アプリケーションパスワードによるBasic認証でメディアアップロードと
// 投稿作成を行う。リトライは行わず、失敗の分類は呼び出し元に委ねる。
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// mediaEndpointPath はメディアコレクションのエンドポイントパス。
	mediaEndpointPath = "/wp-json/wp/v2/media"
	// postsEndpointPath は投稿コレクションのエンドポイントパス。
	postsEndpointPath = "/wp-json/wp/v2/posts"
	// restRootPath はREST APIルートのパス。サイト検証で使用する。
	restRootPath = "/wp-json/"

	// maxResponseSize はレスポンスボディの最大読み取りサイズ（1MB）。
	// エラー本文の取り込みが際限なく膨らむのを防ぐ。
	maxResponseSize = 1 * 1024 * 1024
)

// Credentials はWordPressサイトへの接続情報を表す。
// SiteURLは末尾スラッシュなしのサイトルートURL。
type Credentials struct {
	SiteURL     string
	Username    string
	AppPassword string
}

// MediaUploadError はメディアアップロードの失敗を表す。
// 公開ワーカーはこのエラーを非致命として扱い、アイキャッチ画像なしで
// 投稿作成を続行する。
type MediaUploadError struct {
	StatusCode int    // HTTPステータス（ネットワークエラー時は0）
	Body       string // リモートのエラーレスポンス本文
	Err        error  // 下位のエラー
}

// Error はerrorインターフェースを実装する。
func (e *MediaUploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("メディアアップロードに失敗しました: ステータス %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("メディアアップロードに失敗しました: %v", e.Err)
}

// Unwrap は下位のエラーを返す。
func (e *MediaUploadError) Unwrap() error { return e.Err }

// PostCreationError は投稿作成の失敗を表す。
// 公開ワーカーはこのエラーを致命として扱い、記事をfailedにする。
// Bodyにはリモートのエラーレスポンス本文をそのまま保持する。
type PostCreationError struct {
	StatusCode int
	Body       string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *PostCreationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("投稿作成に失敗しました: ステータス %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("投稿作成に失敗しました: %v", e.Err)
}

// Unwrap は下位のエラーを返す。
func (e *PostCreationError) Unwrap() error { return e.Err }

// PostFields は投稿作成リクエストに載せるフィールドをまとめた構造体。
type PostFields struct {
	Title           string
	Content         string
	Excerpt         string
	MetaDescription string
	FeaturedMediaID int64  // 0の場合はリクエストに含めない
	IdempotencyKey  string // 重複公開検出用のキー（metaに格納される）
}

// Client はWordPress REST APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
	}
}

// mediaResponse はメディアアップロードのレスポンス。
type mediaResponse struct {
	ID int64 `json:"id"`
}

// UploadMedia は画像バイト列をサイトのメディアライブラリにアップロードし、
// 採番されたメディアIDを返す。
// 失敗時は*MediaUploadErrorを返す。内部でのリトライは行わない。
func (c *Client) UploadMedia(ctx context.Context, creds Credentials, imageBytes []byte, filename string) (int64, error) {
	endpoint := strings.TrimRight(creds.SiteURL, "/") + mediaEndpointPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(imageBytes))
	if err != nil {
		return 0, &MediaUploadError{Err: fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)}
	}

	req.SetBasicAuth(creds.Username, creds.AppPassword)
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	req.Header.Set("Content-Type", detectImageContentType(imageBytes))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("メディアアップロードのリクエストに失敗しました",
			slog.String("site_url", creds.SiteURL),
			slog.String("error", err.Error()),
		)
		return 0, &MediaUploadError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, &MediaUploadError{Err: fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("メディアアップロードがエラーステータスを返しました",
			slog.String("site_url", creds.SiteURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return 0, &MediaUploadError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var media mediaResponse
	if err := json.Unmarshal(body, &media); err != nil {
		return 0, &MediaUploadError{Err: fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)}
	}
	if media.ID == 0 {
		return 0, &MediaUploadError{Err: fmt.Errorf("レスポンスにメディアIDが含まれていません")}
	}

	return media.ID, nil
}

// createPostRequest は投稿作成リクエストのボディ。
type createPostRequest struct {
	Title         string         `json:"title"`
	Content       string         `json:"content"`
	Status        string         `json:"status"`
	FeaturedMedia int64          `json:"featured_media,omitempty"`
	Excerpt       string         `json:"excerpt,omitempty"`
	Meta          createPostMeta `json:"meta"`
}

// createPostMeta は投稿のメタフィールド。
type createPostMeta struct {
	Description    string `json:"description"`
	IdempotencyKey string `json:"seopilot_idempotency_key,omitempty"`
}

// createPostResponse は投稿作成のレスポンス。
type createPostResponse struct {
	ID int64 `json:"id"`
}

// CreatePost は記事を即時公開ステータスで作成し、リモートの投稿IDを返す。
// 失敗時は*PostCreationErrorを返し、リモートのエラー本文をBodyに保持する。
func (c *Client) CreatePost(ctx context.Context, creds Credentials, fields PostFields) (int64, error) {
	endpoint := strings.TrimRight(creds.SiteURL, "/") + postsEndpointPath

	payload, err := json.Marshal(createPostRequest{
		Title:         fields.Title,
		Content:       fields.Content,
		Status:        "publish",
		FeaturedMedia: fields.FeaturedMediaID,
		Excerpt:       fields.Excerpt,
		Meta: createPostMeta{
			Description:    fields.MetaDescription,
			IdempotencyKey: fields.IdempotencyKey,
		},
	})
	if err != nil {
		return 0, &PostCreationError{Err: fmt.Errorf("リクエストボディの構築に失敗しました: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, &PostCreationError{Err: fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)}
	}

	req.SetBasicAuth(creds.Username, creds.AppPassword)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("投稿作成のリクエストに失敗しました",
			slog.String("site_url", creds.SiteURL),
			slog.String("error", err.Error()),
		)
		return 0, &PostCreationError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, &PostCreationError{Err: fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("投稿作成がエラーステータスを返しました",
			slog.String("site_url", creds.SiteURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return 0, &PostCreationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var post createPostResponse
	if err := json.Unmarshal(body, &post); err != nil {
		return 0, &PostCreationError{Err: fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)}
	}
	if post.ID == 0 {
		return 0, &PostCreationError{Err: fmt.Errorf("レスポンスに投稿IDが含まれていません")}
	}

	return post.ID, nil
}

// Ping はREST APIルートへの認証付きGETでサイトの到達性を確認する。
// サイト登録時の検証で使用する。
func (c *Client) Ping(ctx context.Context, creds Credentials) error {
	endpoint := strings.TrimRight(creds.SiteURL, "/") + restRootPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.SetBasicAuth(creds.Username, creds.AppPassword)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("REST APIルートへの接続に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("REST APIルートがステータス %d を返しました", resp.StatusCode)
	}

	return nil
}

// detectImageContentType は画像バイト列からContent-Typeを判定する。
// 判定不能な場合はimage/pngを既定とする（上流の画像生成はPNGを出力する）。
func detectImageContentType(imageBytes []byte) string {
	contentType := http.DetectContentType(imageBytes)
	if !strings.HasPrefix(contentType, "image/") {
		return "image/png"
	}
	return contentType
}
