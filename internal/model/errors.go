// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, publish, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodePostNotFound        = "POST_NOT_FOUND"
	ErrCodeSiteNotFound        = "SITE_NOT_FOUND"
	ErrCodePostNotRetryable    = "POST_NOT_RETRYABLE"
	ErrCodePostNotCancellable  = "POST_NOT_CANCELLABLE"
	ErrCodeMissingCredentials  = "MISSING_CREDENTIALS"
	ErrCodeSiteVerifyFailed    = "SITE_VERIFY_FAILED"
	ErrCodeInvalidStatusFilter = "INVALID_STATUS_FILTER"
)

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "正しい認証情報を指定してください。",
	}
}

// NewPostNotFoundError は記事未検出エラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %s", postID),
		Category: "publish",
		Action:   "記事IDを確認してください。",
	}
}

// NewSiteNotFoundError はサイト未検出エラーを生成する。
func NewSiteNotFoundError(siteID string) *APIError {
	return &APIError{
		Code:     ErrCodeSiteNotFound,
		Message:  fmt.Sprintf("指定されたWordPressサイトが見つかりません: %s", siteID),
		Category: "publish",
		Action:   "サイトIDを確認してください。",
	}
}

// NewPostNotRetryableError は再試行できない状態の記事に対する再試行エラーを生成する。
func NewPostNotRetryableError(status PublishStatus) *APIError {
	return &APIError{
		Code:     ErrCodePostNotRetryable,
		Message:  fmt.Sprintf("この記事は再試行できない状態です: %s", status),
		Category: "publish",
		Action:   "再試行は公開に失敗した記事に対してのみ実行できます。",
	}
}

// NewPostNotCancellableError は取り消しできない状態の記事に対する取り消しエラーを生成する。
func NewPostNotCancellableError(status PublishStatus) *APIError {
	return &APIError{
		Code:     ErrCodePostNotCancellable,
		Message:  fmt.Sprintf("この記事は取り消しできない状態です: %s", status),
		Category: "publish",
		Action:   "取り消しは公開待ちの記事に対してのみ実行できます。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewMissingCredentialsError は認証情報不足エラーを生成する。
func NewMissingCredentialsError(siteID string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingCredentials,
		Message:  fmt.Sprintf("WordPressサイトの認証情報が設定されていません: %s", siteID),
		Category: "publish",
		Action:   "サイト設定でアプリケーションパスワードを登録してください。",
	}
}

// NewSiteVerifyFailedError はサイト検証失敗エラーを生成する。
func NewSiteVerifyFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSiteVerifyFailed,
		Message:  fmt.Sprintf("WordPressサイトの検証に失敗しました: %s", reason),
		Category: "publish",
		Action:   "サイトURLと認証情報を確認し、REST APIが有効か確認してください。",
	}
}

// NewInvalidStatusFilterError は無効なステータスフィルタエラーを生成する。
func NewInvalidStatusFilterError(filter string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatusFilter,
		Message:  fmt.Sprintf("無効なステータスフィルタです: %s", filter),
		Category: "validation",
		Action:   "ステータスには pending、ready、in_progress、published、failed、cancelled のいずれかを指定してください。",
	}
}
