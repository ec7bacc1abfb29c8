package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hitoshi/seopilot/internal/content"
	"github.com/hitoshi/seopilot/internal/metrics"
	"github.com/hitoshi/seopilot/internal/model"
	"github.com/hitoshi/seopilot/internal/repository"
	"github.com/hitoshi/seopilot/internal/wordpress"
)

const (
	// excerptMaxLen は抜粋の最大文字数。
	excerptMaxLen = 160
	// metaDescriptionMaxLen はメタディスクリプションの最大文字数。
	metaDescriptionMaxLen = 155
	// defaultImageFilename はURLからファイル名を導出できない場合の既定値。
	defaultImageFilename = "featured-image.png"
)

// RemotePublisher はWordPress REST APIへの公開操作のインターフェース。
type RemotePublisher interface {
	UploadMedia(ctx context.Context, creds wordpress.Credentials, imageBytes []byte, filename string) (int64, error)
	CreatePost(ctx context.Context, creds wordpress.Credentials, fields wordpress.PostFields) (int64, error)
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Publisher はクレーム済み記事1件の公開パイプラインを実行する。
// フロー: 認証情報チェック → サニタイズ → アイキャッチ画像アップロード →
// 記事作成 → 終端状態への書き込み。
// 画像アップロードの失敗は致命的ではなく、画像なしで記事作成を続行する。
// 記事作成の失敗は致命的で、リトライ可否に応じてrequeueまたはfailedにする。
type Publisher struct {
	postRepo    repository.PostRepository
	remote      RemotePublisher
	sanitizer   content.PublishSanitizerService
	ssrfGuard   SSRFValidator
	collector   metrics.MetricsCollector
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	maxAttempts int
}

// NewPublisher はPublisherの新しいインスタンスを生成する。
// maxAttemptsが0以下の場合は1（リトライなし）を使用する。
func NewPublisher(
	postRepo repository.PostRepository,
	remote RemotePublisher,
	sanitizer content.PublishSanitizerService,
	ssrfGuard SSRFValidator,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
	maxAttempts int,
) *Publisher {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Publisher{
		postRepo:    postRepo,
		remote:      remote,
		sanitizer:   sanitizer,
		ssrfGuard:   ssrfGuard,
		collector:   collector,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		maxAttempts: maxAttempts,
	}
}

// Publish はクレーム済み記事1件を公開し、処理結果を返す。
// 1記事の失敗は他の記事に影響しない。返り値のエラーはすべてPostOutcomeに
// 集約されるため、呼び出し側は結果の集計のみを行えばよい。
func (p *Publisher) Publish(ctx context.Context, claimed *repository.ClaimedPost) model.PostOutcome {
	start := time.Now()
	defer func() {
		p.collector.RecordPublishLatency(time.Since(start))
	}()

	// 認証情報が揃っていないサイトにはHTTPリクエストを一切送らない
	if !claimed.Site.HasCredentials() {
		msg := "公開先サイトの認証情報が設定されていません"
		p.logger.Warn("認証情報が不足しているため公開をスキップします",
			slog.String("post_id", claimed.ID),
			slog.String("site_id", claimed.SiteID),
		)
		return p.fail(ctx, claimed.ID, msg, "missing_credentials")
	}

	// クレーム済みだがリモート作成済みの記事（前回実行が作成後・保存前に
	// 中断されたケース）は、リモートへの再送なしで公開済みとして確定する。
	if claimed.WPPostID != 0 {
		p.logger.Info("リモート作成済みの記事を公開済みとして確定します",
			slog.String("post_id", claimed.ID),
			slog.Int64("wp_post_id", claimed.WPPostID),
		)
		return p.succeed(ctx, claimed.ID, claimed.WPPostID)
	}

	creds := wordpress.Credentials{
		SiteURL:     claimed.Site.SiteURL,
		Username:    claimed.Site.WPUsername,
		AppPassword: claimed.Site.WPAppPassword,
	}

	body := p.sanitizer.SanitizeBody(claimed.BodyHTML)

	excerpt := claimed.Excerpt
	if excerpt == "" {
		excerpt = p.sanitizer.PlainText(claimed.BodyHTML, excerptMaxLen)
	}
	metaDescription := claimed.MetaDescription
	if metaDescription == "" {
		metaDescription = p.sanitizer.PlainText(claimed.BodyHTML, metaDescriptionMaxLen)
	}

	// アイキャッチ画像は任意。アップロード失敗は記事公開を妨げない。
	var mediaID int64
	if claimed.FeaturedImageURL != "" {
		mediaID = p.uploadFeaturedImage(ctx, creds, claimed)
	}

	wpPostID, err := p.remote.CreatePost(ctx, creds, wordpress.PostFields{
		Title:           claimed.Title,
		Content:         body,
		Excerpt:         excerpt,
		MetaDescription: metaDescription,
		FeaturedMediaID: mediaID,
		IdempotencyKey:  claimed.IdempotencyKey,
	})
	if err != nil {
		return p.handleCreateFailure(ctx, claimed, err)
	}

	p.logger.Info("記事を公開しました",
		slog.String("post_id", claimed.ID),
		slog.String("site_id", claimed.SiteID),
		slog.Int64("wp_post_id", wpPostID),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return p.succeed(ctx, claimed.ID, wpPostID)
}

// handleCreateFailure は記事作成失敗をリトライ可否で分岐して処理する。
func (p *Publisher) handleCreateFailure(ctx context.Context, claimed *repository.ClaimedPost, createErr error) model.PostOutcome {
	var postErr *wordpress.PostCreationError
	if errors.As(createErr, &postErr) && postErr.StatusCode != 0 {
		p.collector.RecordWPStatus(postErr.StatusCode)
	}

	kind := ClassifyPublishError(createErr)
	if kind == FailureRetryable && claimed.Attempts < p.maxAttempts {
		nextAttempt := time.Now().Add(CalculateBackoff(claimed.Attempts))
		p.logger.Warn("記事作成に失敗しました。再試行をスケジュールします",
			slog.String("post_id", claimed.ID),
			slog.Int("attempts", claimed.Attempts),
			slog.Time("next_attempt_at", nextAttempt),
			slog.String("error", createErr.Error()),
		)
		if err := p.postRepo.Requeue(ctx, claimed.ID, nextAttempt, createErr.Error()); err != nil {
			p.logger.Error("記事の再キューに失敗しました",
				slog.String("post_id", claimed.ID),
				slog.String("error", err.Error()),
			)
		}
		p.collector.RecordPublishFailure("post_creation_retryable")
		return model.PostOutcome{PostID: claimed.ID, Success: false, Error: createErr.Error()}
	}

	p.logger.Error("記事作成に失敗しました",
		slog.String("post_id", claimed.ID),
		slog.String("site_id", claimed.SiteID),
		slog.Int("attempts", claimed.Attempts),
		slog.String("error", createErr.Error()),
	)
	return p.fail(ctx, claimed.ID, createErr.Error(), "post_creation")
}

// uploadFeaturedImage はアイキャッチ画像を取得してWordPressにアップロードする。
// いずれかの段階で失敗した場合は0を返し、記事は画像なしで公開される。
func (p *Publisher) uploadFeaturedImage(ctx context.Context, creds wordpress.Credentials, claimed *repository.ClaimedPost) int64 {
	imageBytes, err := p.fetchImage(ctx, claimed.FeaturedImageURL)
	if err != nil {
		p.logger.Warn("アイキャッチ画像の取得に失敗しました。画像なしで公開を続行します",
			slog.String("post_id", claimed.ID),
			slog.String("image_url", claimed.FeaturedImageURL),
			slog.String("error", err.Error()),
		)
		p.collector.RecordMediaUploadFailure()
		return 0
	}

	mediaID, err := p.remote.UploadMedia(ctx, creds, imageBytes, imageFilename(claimed.FeaturedImageURL))
	if err != nil {
		p.logger.Warn("アイキャッチ画像のアップロードに失敗しました。画像なしで公開を続行します",
			slog.String("post_id", claimed.ID),
			slog.String("site_id", claimed.SiteID),
			slog.String("error", err.Error()),
		)
		var mediaErr *wordpress.MediaUploadError
		if errors.As(err, &mediaErr) && mediaErr.StatusCode != 0 {
			p.collector.RecordWPStatus(mediaErr.StatusCode)
		}
		p.collector.RecordMediaUploadFailure()
		return 0
	}

	return mediaID
}

// fetchImage は画像URLをSSRF検証してからダウンロードする。
func (p *Publisher) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	if err := p.ssrfGuard.ValidateURL(imageURL); err != nil {
		return nil, fmt.Errorf("画像URLのSSRF検証に失敗しました: %w", err)
	}

	client := p.ssrfGuard.NewSafeClient(p.timeout, p.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "SEOPilot/1.0 Publisher")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("画像のダウンロードに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("画像の取得がステータス %d を返しました", resp.StatusCode)
	}

	// 上限+1バイト読み、超過を切り詰めではなくエラーとして扱う。
	// 切り詰めた不完全な画像をアップロードしてしまうことを防ぐ。
	imageBytes, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("画像の読み込みに失敗しました: %w", err)
	}
	if int64(len(imageBytes)) > p.maxBodySize {
		return nil, fmt.Errorf("画像サイズが上限 %d バイトを超えています", p.maxBodySize)
	}
	return imageBytes, nil
}

// succeed は記事を公開済みとして確定し、成功の結果を返す。
func (p *Publisher) succeed(ctx context.Context, postID string, wpPostID int64) model.PostOutcome {
	if err := p.postRepo.MarkPublished(ctx, postID, wpPostID, time.Now()); err != nil {
		p.logger.Error("公開済み状態の保存に失敗しました",
			slog.String("post_id", postID),
			slog.Int64("wp_post_id", wpPostID),
			slog.String("error", err.Error()),
		)
		p.collector.RecordPublishFailure("db_write")
		return model.PostOutcome{PostID: postID, Success: false, Error: err.Error()}
	}
	p.collector.RecordPublishSuccess()
	return model.PostOutcome{PostID: postID, Success: true, WPPostID: wpPostID}
}

// fail は記事を失敗の終端状態にし、失敗の結果を返す。
func (p *Publisher) fail(ctx context.Context, postID, errorMessage, reason string) model.PostOutcome {
	if err := p.postRepo.MarkFailed(ctx, postID, errorMessage); err != nil {
		p.logger.Error("失敗状態の保存に失敗しました",
			slog.String("post_id", postID),
			slog.String("error", err.Error()),
		)
	}
	p.collector.RecordPublishFailure(reason)
	return model.PostOutcome{PostID: postID, Success: false, Error: errorMessage}
}

// imageFilename は画像URLからアップロード用のファイル名を導出する。
func imageFilename(imageURL string) string {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return defaultImageFilename
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		return defaultImageFilename
	}
	return name
}
