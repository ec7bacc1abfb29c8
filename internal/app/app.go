// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/seopilot/internal/config"
	"github.com/hitoshi/seopilot/internal/content"
	"github.com/hitoshi/seopilot/internal/database"
	"github.com/hitoshi/seopilot/internal/handler"
	"github.com/hitoshi/seopilot/internal/logger"
	"github.com/hitoshi/seopilot/internal/metrics"
	"github.com/hitoshi/seopilot/internal/middleware"
	"github.com/hitoshi/seopilot/internal/repository"
	"github.com/hitoshi/seopilot/internal/security"
	"github.com/hitoshi/seopilot/internal/sitecheck"
	"github.com/hitoshi/seopilot/internal/wordpress"
	"github.com/hitoshi/seopilot/internal/worker/cleanup"
	"github.com/hitoshi/seopilot/internal/worker/publish"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// buildPublishScheduler は公開パイプライン一式をワイヤリングする。
// serveモード（cronトリガー経由）とworkerモード（常駐ティッカー）の
// 両方が同じスケジューラ構成を使う。
func buildPublishScheduler(
	cfg *config.Config,
	postRepo repository.PostRepository,
	collector metrics.MetricsCollector,
) *publish.Scheduler {
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := content.NewPublishSanitizer()

	wpClient := wordpress.NewClient(
		ssrfGuard.NewSafeClient(cfg.PublishTimeout, cfg.PublishMaxBodySize),
		slog.Default(),
	)

	publisher := publish.NewPublisher(
		postRepo, wpClient, sanitizer, ssrfGuard, collector,
		slog.Default(), cfg.PublishTimeout, cfg.PublishMaxBodySize, cfg.PublishMaxAttempts,
	)

	return publish.NewScheduler(
		postRepo, publisher, collector, slog.Default(),
		cfg.PublishBatchLimit, cfg.PublishMaxConcurrent,
		cfg.PublishClaimGrace, cfg.SiteRatePerMinute,
	)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	postRepo := repository.NewPostgresPostRepo(db)
	siteRepo := repository.NewPostgresSiteRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 公開パイプラインの初期化（cronトリガーから駆動される）
	scheduler := buildPublishScheduler(cfg, postRepo, collector)

	// 5. サイト検証の初期化
	ssrfGuard := security.NewSSRFGuard()
	wpClient := wordpress.NewClient(
		ssrfGuard.NewSafeClient(cfg.PublishTimeout, cfg.PublishMaxBodySize),
		slog.Default(),
	)
	siteChecker := sitecheck.NewChecker(
		siteRepo, wpClient, ssrfGuard,
		slog.Default(), cfg.PublishTimeout, cfg.PublishMaxBodySize,
	)

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig()),
		AdminAPIToken:     cfg.AdminAPIToken,
		CronSecret:        cfg.CronSecret,

		PublishRunner: scheduler,

		PostStore:    postRepo,
		SiteStore:    siteRepo,
		SiteVerifier: siteChecker,

		HealthChecker:   db,
		MetricsGatherer: registry,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は常駐ワーカーモードで起動する。
// 公開スケジューラをティッカーで定期実行し、日次クリーンアップジョブを
// バックグラウンドで回す。SIGINTまたはSIGTERMシグナルで終了する。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. 公開パイプラインの初期化
	postRepo := repository.NewPostgresPostRepo(db)
	collector := metrics.NewCollector(prometheus.NewRegistry())
	scheduler := buildPublishScheduler(cfg, postRepo, collector)

	// 3. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	cleanupJob.RetentionDays = cfg.PostRetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("publish_interval", cfg.PublishInterval),
		slog.Int("max_concurrent", cfg.PublishMaxConcurrent),
		slog.Int("batch_limit", cfg.PublishBatchLimit),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 公開スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.PublishInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
