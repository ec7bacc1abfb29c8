package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/seopilot/internal/model"
)

// PostgresSiteRepo はPostgreSQLを使用したWordPressサイトリポジトリ。
type PostgresSiteRepo struct {
	db *sql.DB
}

// NewPostgresSiteRepo はPostgresSiteRepoを生成する。
func NewPostgresSiteRepo(db *sql.DB) *PostgresSiteRepo {
	return &PostgresSiteRepo{db: db}
}

// siteColumns はサイトのSELECT対象カラム。スキャン順序とscanSiteを一致させること。
const siteColumns = `id, user_id, site_url, wp_username, wp_app_password,
	feed_url, last_verified_at, remote_post_count, created_at, updated_at`

// scanSite はsiteColumnsの順序で1行をWordPressSiteに読み取る。
func scanSite(s rowScanner) (*model.WordPressSite, error) {
	site := &model.WordPressSite{}
	var feedURL sql.NullString
	var lastVerifiedAt sql.NullTime

	err := s.Scan(
		&site.ID, &site.UserID, &site.SiteURL, &site.WPUsername,
		&site.WPAppPassword, &feedURL, &lastVerifiedAt,
		&site.RemotePostCount, &site.CreatedAt, &site.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	site.FeedURL = nullStringValue(feedURL)
	if lastVerifiedAt.Valid {
		t := lastVerifiedAt.Time
		site.LastVerifiedAt = &t
	}

	return site, nil
}

// FindByID は指定IDのサイトを取得する。見つからない場合はnilを返す。
func (r *PostgresSiteRepo) FindByID(ctx context.Context, id string) (*model.WordPressSite, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+siteColumns+` FROM wordpress_sites WHERE id = $1`, id,
	)

	site, err := scanSite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("サイトの取得に失敗しました: %w", err)
	}

	return site, nil
}

// ListByUser はユーザーのサイト一覧を返す。
func (r *PostgresSiteRepo) ListByUser(ctx context.Context, userID string) ([]*model.WordPressSite, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+siteColumns+` FROM wordpress_sites WHERE user_id = $1 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("サイト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sites []*model.WordPressSite
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("サイト一覧の読み取りに失敗しました: %w", err)
		}
		sites = append(sites, site)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("サイト一覧の走査に失敗しました: %w", err)
	}

	return sites, nil
}

// Create はサイトを作成する。
func (r *PostgresSiteRepo) Create(ctx context.Context, site *model.WordPressSite) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wordpress_sites (
		    id, user_id, site_url, wp_username, wp_app_password,
		    feed_url, remote_post_count, created_at, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		site.ID, site.UserID, site.SiteURL, site.WPUsername,
		site.WPAppPassword, nullString(site.FeedURL),
		site.RemotePostCount, site.CreatedAt, site.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("サイトの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateVerification はサイト検証の結果を記録する。
func (r *PostgresSiteRepo) UpdateVerification(ctx context.Context, siteID, feedURL string, remotePostCount int, verifiedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wordpress_sites SET
		    feed_url = $2,
		    remote_post_count = $3,
		    last_verified_at = $4,
		    updated_at = now()
		 WHERE id = $1`,
		siteID, nullString(feedURL), remotePostCount, verifiedAt,
	)
	if err != nil {
		return fmt.Errorf("サイト検証結果の記録に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SiteRepository = (*PostgresSiteRepo)(nil)
