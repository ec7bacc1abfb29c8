package publish

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/seopilot/internal/metrics"
	"github.com/hitoshi/seopilot/internal/model"
	"github.com/hitoshi/seopilot/internal/repository"
)

// PostPublisherService は記事1件の公開実行インターフェース。
type PostPublisherService interface {
	// Publish はクレーム済み記事を公開し、処理結果を返す。
	Publish(ctx context.Context, claimed *repository.ClaimedPost) model.PostOutcome
}

// Scheduler は公開サイクルのスケジューリングと並列制御を行う。
// スタッククレームの回収 → 期限到来記事のクレーム → semaphoreパターンでの
// 並列公開を1サイクルとして実行する。同一サイトへのリクエストは
// サイトごとのレートリミッターで抑制し、顧客のWordPressに負荷をかけない。
type Scheduler struct {
	postRepo       repository.PostRepository
	publisher      PostPublisherService
	collector      metrics.MetricsCollector
	logger         *slog.Logger
	batchLimit     int
	maxConcurrency int
	claimGrace     time.Duration

	siteRate     rate.Limit
	limiterMu    sync.Mutex
	siteLimiters map[string]*rate.Limiter
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
// ratePerMinuteが0以下の場合はサイトごとのレート制限を行わない。
func NewScheduler(
	postRepo repository.PostRepository,
	publisher PostPublisherService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	batchLimit int,
	maxConcurrency int,
	claimGrace time.Duration,
	ratePerMinute int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	if batchLimit <= 0 {
		batchLimit = 50
	}

	siteRate := rate.Inf
	if ratePerMinute > 0 {
		siteRate = rate.Limit(float64(ratePerMinute) / 60.0)
	}

	return &Scheduler{
		postRepo:       postRepo,
		publisher:      publisher,
		collector:      collector,
		logger:         logger,
		batchLimit:     batchLimit,
		maxConcurrency: maxConcurrency,
		claimGrace:     claimGrace,
		siteRate:       siteRate,
		siteLimiters:   make(map[string]*rate.Limiter),
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("公開スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
		slog.Int("batch_limit", s.batchLimit),
	)

	// 起動直後に1回実行
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("公開サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("公開スケジューラを停止しました")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("公開サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は公開サイクルを1回実行し、実行結果の集計を返す。
// 先にスタッククレームを回収してから期限到来記事をクレームするため、
// 中断された実行の記事は次のサイクルで必ず回収される。
func (s *Scheduler) RunOnce(ctx context.Context) (*model.RunSummary, error) {
	start := time.Now()
	summary := &model.RunSummary{}

	// 中断された実行が残したin_progressの記事を回収する
	released, err := s.postRepo.ReleaseStaleClaims(ctx, s.claimGrace)
	if err != nil {
		return nil, err
	}
	if released > 0 {
		s.logger.Warn("スタッククレームを回収しました",
			slog.Int("released_count", released),
		)
		s.collector.RecordStaleClaimsReleased(released)
	}

	// 期限到来記事をクレーム（ready -> in_progressの原子的な遷移）
	claimed, err := s.postRepo.ClaimDue(ctx, s.batchLimit)
	if err != nil {
		return nil, err
	}

	s.collector.RecordBatchSize(len(claimed))

	if len(claimed) == 0 {
		s.logger.Info("公開対象の記事はありません")
		return summary, nil
	}

	s.logger.Info("公開サイクルを開始します",
		slog.Int("post_count", len(claimed)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	var summaryMu sync.Mutex
	for _, post := range claimed {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(cp *repository.ClaimedPost) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			// 同一サイトへの連続リクエストを抑制
			if err := s.waitForSite(ctx, cp.SiteID); err != nil {
				s.logger.Warn("レート制限待機中にコンテキストがキャンセルされました",
					slog.String("post_id", cp.ID),
					slog.String("site_id", cp.SiteID),
				)
				return
			}

			outcome := s.publisher.Publish(ctx, cp)

			summaryMu.Lock()
			summary.Add(outcome)
			summaryMu.Unlock()
		}(post)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("公開サイクルが完了しました",
		slog.Int("processed", summary.Processed),
		slog.Int("success", summary.Success),
		slog.Int("failed", summary.Failed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return summary, nil
}

// waitForSite はサイトごとのレートリミッターでトークンを待機する。
func (s *Scheduler) waitForSite(ctx context.Context, siteID string) error {
	s.limiterMu.Lock()
	limiter, ok := s.siteLimiters[siteID]
	if !ok {
		limiter = rate.NewLimiter(s.siteRate, 1)
		s.siteLimiters[siteID] = limiter
	}
	s.limiterMu.Unlock()

	return limiter.Wait(ctx)
}
