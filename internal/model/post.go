// Package model はドメインモデルを定義する。
package model

import "time"

// ScheduledPost は公開予約された記事を表す。
// 上流のドラフト生成フローがready状態で作成し、
// 公開ワーカーがpublished/failedの終端状態へ遷移させる。
type ScheduledPost struct {
	ID                string
	UserID            string
	SiteID            string
	Title             string
	BodyHTML          string // レンダリング済みHTML（公開前にサニタイズされる）
	Excerpt           string
	MetaDescription   string
	FocusKeyword      string
	SecondaryKeywords []string
	FeaturedImageURL  string // 上流の画像生成ステップが設定する（空の場合あり）
	ScheduledFor      time.Time
	Timezone          string
	Status            PublishStatus
	Attempts          int
	NextAttemptAt     *time.Time
	IdempotencyKey    string
	WPPostID          int64 // リモートWordPressの投稿ID（公開成功まで0）
	PublishedAt       *time.Time
	PublishError      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PublishStatus は予約記事の公開状態を表す。
type PublishStatus string

const (
	// PublishStatusPending はドラフト生成中で公開対象外の状態。
	PublishStatusPending PublishStatus = "pending"
	// PublishStatusReady は承認済みで公開待ちの状態。
	// scheduled_for <= now() になるとワーカーの取得対象になる。
	PublishStatusReady PublishStatus = "ready"
	// PublishStatusInProgress はワーカーがクレーム済みで公開処理中の状態。
	PublishStatusInProgress PublishStatus = "in_progress"
	// PublishStatusPublished は公開に成功した終端状態。
	PublishStatusPublished PublishStatus = "published"
	// PublishStatusFailed は公開に失敗した終端状態。
	PublishStatusFailed PublishStatus = "failed"
	// PublishStatusCancelled はユーザー操作で取り消された終端状態。
	PublishStatusCancelled PublishStatus = "cancelled"
)

// IsTerminal は終端状態（再処理されない状態）かどうかを返す。
func (s PublishStatus) IsTerminal() bool {
	return s == PublishStatusPublished || s == PublishStatusFailed || s == PublishStatusCancelled
}

// PostOutcome はワーカー実行における1記事の処理結果を表す。
type PostOutcome struct {
	PostID   string
	Success  bool
	WPPostID int64  // 成功時のみ設定
	Error    string // 失敗時のみ設定
}

// RunSummary はワーカー1回の実行結果の集計を表す。
// processed = success + failed が常に成立する。
type RunSummary struct {
	Processed int
	Success   int
	Failed    int
	Details   []PostOutcome
}

// Add は1記事の処理結果を集計に反映する。
func (s *RunSummary) Add(outcome PostOutcome) {
	s.Processed++
	if outcome.Success {
		s.Success++
	} else {
		s.Failed++
	}
	s.Details = append(s.Details, outcome)
}
