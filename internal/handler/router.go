package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/seopilot/internal/metrics"
	"github.com/hitoshi/seopilot/internal/middleware"
)

// HealthChecker はヘルスチェックで利用するDB疎通確認のインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	AdminAPIToken     string
	CronSecret        string

	// 公開トリガー
	PublishRunner PublishRunner

	// 記事管理
	PostStore PostStoreInterface

	// サイト管理
	SiteStore    SiteStoreInterface
	SiteVerifier SiteVerifierInterface

	// 運用系
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → TokenAuth → RateLimit(General)
//
// /health・/metrics・/cron/publish は認証ミドルウェアの外に配置する
// （cronトリガーはsecretクエリパラメータで独自に認証する）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	postHandler := NewPostHandler(deps.PostStore)
	siteHandler := NewSiteHandler(deps.SiteStore, deps.SiteVerifier)
	cronHandler := NewCronHandler(deps.PublishRunner, deps.CronSecret)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// cronトリガー（secretクエリパラメータで認証）
	r.Get("/cron/publish", cronHandler.TriggerPublish)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: TokenAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewTokenAuthMiddleware(deps.AdminAPIToken))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 記事管理
		r.Route("/api/posts", func(r chi.Router) {
			r.Get("/", postHandler.ListPosts)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", postHandler.GetPost)
				r.Post("/retry", postHandler.RetryPost)
				r.Post("/cancel", postHandler.CancelPost)
			})
		})

		// サイト管理
		r.Route("/api/sites", func(r chi.Router) {
			r.Post("/", siteHandler.RegisterSite)
			r.Get("/", siteHandler.ListSites)

			// POST /api/sites/{id}/verify - サイト検証（検証専用レート制限を追加）
			r.With(deps.RateLimiter.SiteVerifyMiddleware()).Post("/{id}/verify", siteHandler.VerifySite)
		})
	})

	return r
}
