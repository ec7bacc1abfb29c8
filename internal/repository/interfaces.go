// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/seopilot/internal/model"
)

// PostRepository は予約記事の永続化インターフェース。
type PostRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ScheduledPost, error)

	// ListByUser はユーザーの記事一覧をscheduled_for降順で返す。
	// statusが空文字列以外の場合はそのステータスで絞り込む。
	ListByUser(ctx context.Context, userID string, status model.PublishStatus, limit int) ([]*model.ScheduledPost, error)

	// Create は記事を作成する。
	Create(ctx context.Context, post *model.ScheduledPost) error

	// ClaimDue は公開期限が到来したready状態の記事を最大limit件クレームする。
	// ready -> in_progress への遷移を取得と同一ステートメントで行い
	// （FOR UPDATE SKIP LOCKED + UPDATE ... RETURNING）、
	// 同じ記事が複数の同時実行に取得されないことを保証する。
	// クレーム時にattemptsをインクリメントし、idempotency_keyを未設定なら採番する。
	// 返却される各記事には公開先サイトの認証情報が解決済みで含まれる。
	ClaimDue(ctx context.Context, limit int) ([]*ClaimedPost, error)

	// ReleaseStaleClaims はクレームからgraceを超過したin_progressの記事を
	// readyに戻す。中断された実行の記事を次回実行で回収するための処理で、
	// パイプライン全体をat-least-onceにする。戻した件数を返す。
	ReleaseStaleClaims(ctx context.Context, grace time.Duration) (int, error)

	// MarkPublished は記事を公開済みの終端状態にする冪等な書き込み。
	MarkPublished(ctx context.Context, id string, wpPostID int64, publishedAt time.Time) error

	// MarkFailed は記事を失敗の終端状態にする冪等な書き込み。
	// errorMessageには捕捉したエラー本文を記録する。
	MarkFailed(ctx context.Context, id, errorMessage string) error

	// Requeue はリトライ可能な失敗をした記事をreadyに戻し、
	// next_attempt_atにバックオフ後の再試行時刻を設定する。
	Requeue(ctx context.Context, id string, nextAttemptAt time.Time, errorMessage string) error

	// ResetForRetry はfailed状態の記事を手動でreadyに戻す。
	// attemptsとpublish_errorをリセットする。
	ResetForRetry(ctx context.Context, id string) error

	// Cancel はready/pending状態の記事をcancelledにする。
	Cancel(ctx context.Context, id string) error
}

// SiteRepository はWordPressサイトの永続化インターフェース。
type SiteRepository interface {
	// FindByID は指定IDのサイトを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.WordPressSite, error)

	// ListByUser はユーザーのサイト一覧を返す。
	ListByUser(ctx context.Context, userID string) ([]*model.WordPressSite, error)

	// Create はサイトを作成する。
	Create(ctx context.Context, site *model.WordPressSite) error

	// UpdateVerification はサイト検証の結果を記録する。
	UpdateVerification(ctx context.Context, siteID, feedURL string, remotePostCount int, verifiedAt time.Time) error
}

// ClaimedPost はクレーム済みの記事と公開先サイトを結合した構造体。
// ワーカーはこの構造体だけで公開処理を完結できる。
type ClaimedPost struct {
	model.ScheduledPost
	Site model.WordPressSite
}
