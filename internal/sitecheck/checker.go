// Package sitecheck はWordPressサイトの接続検証と公開状況の棚卸しを行う。
package sitecheck

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/seopilot/internal/model"
	"github.com/hitoshi/seopilot/internal/repository"
	"github.com/hitoshi/seopilot/internal/wordpress"
)

// feedPathSuffix はWordPress標準のRSSフィードパス。
const feedPathSuffix = "/feed/"

// Pinger はWordPress REST APIの疎通確認のインターフェース。
type Pinger interface {
	Ping(ctx context.Context, creds wordpress.Credentials) error
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Checker は登録済みサイトの検証を行う。
// REST APIへのPingで認証情報と疎通を確認し、あわせてサイトのRSSフィードを
// 取得してリモート側の記事数を棚卸しする。フィード取得の失敗は検証失敗とは
// しない（フィードを無効化しているサイトもある）。
type Checker struct {
	siteRepo    repository.SiteRepository
	pinger      Pinger
	ssrfGuard   SSRFValidator
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewChecker はCheckerの新しいインスタンスを生成する。
func NewChecker(
	siteRepo repository.SiteRepository,
	pinger Pinger,
	ssrfGuard SSRFValidator,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *Checker {
	return &Checker{
		siteRepo:    siteRepo,
		pinger:      pinger,
		ssrfGuard:   ssrfGuard,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Result はサイト検証の結果。
type Result struct {
	SiteID          string
	FeedURL         string
	RemotePostCount int
	VerifiedAt      time.Time
}

// Verify はサイトを検証し、結果をサイトレコードに記録する。
// フロー: 認証情報チェック → SSRF検証 → REST API Ping → フィード棚卸し → 結果保存
func (c *Checker) Verify(ctx context.Context, site *model.WordPressSite) (*Result, error) {
	if !site.HasCredentials() {
		return nil, model.NewMissingCredentialsError(site.ID)
	}

	if err := c.ssrfGuard.ValidateURL(site.SiteURL); err != nil {
		c.logger.Warn("サイトURLのSSRF検証に失敗しました",
			slog.String("site_id", site.ID),
			slog.String("site_url", site.SiteURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewSSRFBlockedError()
	}

	creds := wordpress.Credentials{
		SiteURL:     site.SiteURL,
		Username:    site.WPUsername,
		AppPassword: site.WPAppPassword,
	}
	if err := c.pinger.Ping(ctx, creds); err != nil {
		c.logger.Warn("REST APIの疎通確認に失敗しました",
			slog.String("site_id", site.ID),
			slog.String("site_url", site.SiteURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewSiteVerifyFailedError(err.Error())
	}

	// フィード棚卸し。失敗しても検証自体は成功とする。
	feedURL, postCount := c.inventoryFeed(ctx, site)

	now := time.Now()
	if err := c.siteRepo.UpdateVerification(ctx, site.ID, feedURL, postCount, now); err != nil {
		return nil, fmt.Errorf("検証結果の保存に失敗しました: %w", err)
	}

	c.logger.Info("サイト検証が完了しました",
		slog.String("site_id", site.ID),
		slog.String("site_url", site.SiteURL),
		slog.String("feed_url", feedURL),
		slog.Int("remote_post_count", postCount),
	)

	return &Result{
		SiteID:          site.ID,
		FeedURL:         feedURL,
		RemotePostCount: postCount,
		VerifiedAt:      now,
	}, nil
}

// inventoryFeed はサイトのRSSフィードを取得して記事数を数える。
// フィードURLが未検出の場合はWordPress標準の/feed/パスを試す。
// 取得やパースに失敗した場合は空のフィードURLと0件を返す。
func (c *Checker) inventoryFeed(ctx context.Context, site *model.WordPressSite) (string, int) {
	feedURL := site.FeedURL
	if feedURL == "" {
		feedURL = strings.TrimRight(site.SiteURL, "/") + feedPathSuffix
	}

	if err := c.ssrfGuard.ValidateURL(feedURL); err != nil {
		c.logger.Warn("フィードURLのSSRF検証に失敗しました",
			slog.String("site_id", site.ID),
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return "", 0
	}

	client := c.ssrfGuard.NewSafeClient(c.timeout, c.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return "", 0
	}
	req.Header.Set("User-Agent", "SEOPilot/1.0 Site Checker")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		c.logger.Info("フィードの取得に失敗しました",
			slog.String("site_id", site.ID),
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return "", 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Info("フィードが利用できません",
			slog.String("site_id", site.ID),
			slog.String("feed_url", feedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return "", 0
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		c.logger.Info("フィードのパースに失敗しました",
			slog.String("site_id", site.ID),
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return "", 0
	}

	return feedURL, len(parsed.Items)
}
