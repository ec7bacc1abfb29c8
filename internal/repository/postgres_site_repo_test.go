package repository

import (
	"testing"

	"github.com/hitoshi/seopilot/internal/model"
)

// PostgresSiteRepoはSiteRepositoryインターフェースを満たすことを検証
func TestPostgresSiteRepo_ImplementsInterface(t *testing.T) {
	var _ SiteRepository = (*PostgresSiteRepo)(nil)
}

// NewPostgresSiteRepoが正しく初期化されることを検証
func TestNewPostgresSiteRepo_Initializes(t *testing.T) {
	repo := NewPostgresSiteRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// HasCredentialsの判定を検証
func TestWordPressSite_HasCredentials(t *testing.T) {
	cases := []struct {
		name string
		site model.WordPressSite
		want bool
	}{
		{
			name: "全て設定済み",
			site: model.WordPressSite{
				SiteURL:       "https://blog.example.com",
				WPUsername:    "admin",
				WPAppPassword: "xxxx yyyy zzzz",
			},
			want: true,
		},
		{
			name: "パスワード未設定",
			site: model.WordPressSite{
				SiteURL:    "https://blog.example.com",
				WPUsername: "admin",
			},
			want: false,
		},
		{
			name: "ユーザー名未設定",
			site: model.WordPressSite{
				SiteURL:       "https://blog.example.com",
				WPAppPassword: "xxxx yyyy zzzz",
			},
			want: false,
		},
		{
			name: "サイトURL未設定",
			site: model.WordPressSite{
				WPUsername:    "admin",
				WPAppPassword: "xxxx yyyy zzzz",
			},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.site.HasCredentials(); got != tc.want {
				t.Errorf("HasCredentials() = %v, want %v", got, tc.want)
			}
		})
	}
}
