// Package model はドメインモデルを定義する。
package model

import "time"

// WordPressSite は公開先のWordPressサイトを表す。
// 公開認証情報（アプリケーションパスワード）の唯一の保管場所であり、
// 記事側には認証情報を複製しない。
type WordPressSite struct {
	ID              string
	UserID          string
	SiteURL         string
	WPUsername      string
	WPAppPassword   string
	FeedURL         string // サイト検証で検出したRSSフィードURL（空の場合あり）
	LastVerifiedAt  *time.Time
	RemotePostCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasCredentials は公開に必要な認証情報が揃っているかを返す。
func (s *WordPressSite) HasCredentials() bool {
	return s.SiteURL != "" && s.WPUsername != "" && s.WPAppPassword != ""
}
