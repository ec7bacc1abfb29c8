// Package publish は予約記事のバックグラウンド公開処理を提供する。
// スケジューラ、パブリッシャー、リトライ/バックオフ戦略を含む。
package publish

import (
	"errors"
	"time"

	"github.com/hitoshi/seopilot/internal/wordpress"
)

// FailureKind は公開失敗の分類。
type FailureKind int

const (
	// FailurePermanent は再試行しても解消しない失敗（4xx、認証情報不備など）。
	FailurePermanent FailureKind = iota
	// FailureRetryable は再試行で解消しうる失敗（ネットワークエラー、429、5xx）。
	FailureRetryable
)

const (
	// initialBackoff は指数バックオフの初回遅延（5分）。
	initialBackoff = 5 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（6時間）。
	maxBackoff = 6 * time.Hour
)

// ClassifyPublishError は記事作成の失敗をリトライ可否で分類する。
// ステータスコード0はネットワークエラーを意味しリトライ可能。
// 429と5xxはリモート側の一時的な問題としてリトライ可能。
// それ以外の4xxはリクエスト自体に問題があるため恒久的な失敗とする。
func ClassifyPublishError(err error) FailureKind {
	var postErr *wordpress.PostCreationError
	if !errors.As(err, &postErr) {
		return FailurePermanent
	}

	switch {
	case postErr.StatusCode == 0:
		return FailureRetryable
	case postErr.StatusCode == 408 || postErr.StatusCode == 429:
		return FailureRetryable
	case postErr.StatusCode >= 500:
		return FailureRetryable
	default:
		return FailurePermanent
	}
}

// CalculateBackoff は試行回数に基づいて指数バックオフ遅延を計算する。
// 初回5分、2倍ずつ増加、最大6時間。attemptsは実行済みの試行回数。
func CalculateBackoff(attempts int) time.Duration {
	delay := initialBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
