package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/seopilot/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した予約記事リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// postColumns は予約記事のSELECT対象カラム。スキャン順序とscanPostを一致させること。
const postColumns = `id, user_id, site_id, title, body_html, excerpt, meta_description,
	focus_keyword, secondary_keywords, featured_image_url, scheduled_for, timezone,
	status, attempts, next_attempt_at, idempotency_key, wp_post_id, published_at,
	publish_error, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPost はpostColumnsの順序で1行をScheduledPostに読み取る。
func scanPost(s rowScanner) (*model.ScheduledPost, error) {
	post := &model.ScheduledPost{}
	var featuredImageURL, idempotencyKey, publishError sql.NullString
	var nextAttemptAt, publishedAt sql.NullTime
	var wpPostID sql.NullInt64

	err := s.Scan(
		&post.ID, &post.UserID, &post.SiteID, &post.Title, &post.BodyHTML,
		&post.Excerpt, &post.MetaDescription, &post.FocusKeyword,
		pq.Array(&post.SecondaryKeywords), &featuredImageURL,
		&post.ScheduledFor, &post.Timezone, &post.Status, &post.Attempts,
		&nextAttemptAt, &idempotencyKey, &wpPostID, &publishedAt,
		&publishError, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	post.FeaturedImageURL = nullStringValue(featuredImageURL)
	post.IdempotencyKey = nullStringValue(idempotencyKey)
	post.PublishError = nullStringValue(publishError)
	post.WPPostID = wpPostID.Int64
	if nextAttemptAt.Valid {
		t := nextAttemptAt.Time
		post.NextAttemptAt = &t
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		post.PublishedAt = &t
	}

	return post, nil
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.ScheduledPost, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM scheduled_posts WHERE id = $1`, id,
	)

	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}

	return post, nil
}

// ListByUser はユーザーの記事一覧をscheduled_for降順で返す。
// statusが空文字列以外の場合はそのステータスで絞り込む。
func (r *PostgresPostRepo) ListByUser(ctx context.Context, userID string, status model.PublishStatus, limit int) ([]*model.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE user_id = $1`
	args := []any{userID}

	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY scheduled_for DESC LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var posts []*model.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("記事一覧の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}

	return posts, nil
}

// Create は記事を作成する。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.ScheduledPost) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scheduled_posts (
		    id, user_id, site_id, title, body_html, excerpt, meta_description,
		    focus_keyword, secondary_keywords, featured_image_url, scheduled_for,
		    timezone, status, attempts, created_at, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		post.ID, post.UserID, post.SiteID, post.Title, post.BodyHTML,
		post.Excerpt, post.MetaDescription, post.FocusKeyword,
		pq.Array(post.SecondaryKeywords), nullString(post.FeaturedImageURL),
		post.ScheduledFor, post.Timezone, post.Status, post.Attempts,
		post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	return nil
}

// ClaimDue は公開期限が到来したready状態の記事を最大limit件クレームする。
// FOR UPDATE SKIP LOCKEDで候補行をロックし、同一ステートメントで
// in_progressに遷移させるため、複数の同時実行が同じ記事を取得することはない。
// idempotency_keyは初回クレーム時に採番され、以降のクレームでは保持される。
func (r *PostgresPostRepo) ClaimDue(ctx context.Context, limit int) ([]*ClaimedPost, error) {
	rows, err := r.db.QueryContext(ctx,
		`WITH due AS (
		    SELECT id FROM scheduled_posts
		    WHERE status = 'ready'
		      AND scheduled_for <= now()
		      AND (next_attempt_at IS NULL OR next_attempt_at <= now())
		    ORDER BY scheduled_for ASC
		    LIMIT $1
		    FOR UPDATE SKIP LOCKED
		 )
		 UPDATE scheduled_posts p SET
		    status = 'in_progress',
		    attempts = p.attempts + 1,
		    claimed_at = now(),
		    idempotency_key = COALESCE(p.idempotency_key, gen_random_uuid()::text),
		    updated_at = now()
		 FROM due, wordpress_sites s
		 WHERE p.id = due.id AND s.id = p.site_id
		 RETURNING p.id, p.user_id, p.site_id, p.title, p.body_html, p.excerpt,
		    p.meta_description, p.focus_keyword, p.secondary_keywords,
		    p.featured_image_url, p.scheduled_for, p.timezone, p.status,
		    p.attempts, p.next_attempt_at, p.idempotency_key, p.wp_post_id,
		    p.published_at, p.publish_error, p.created_at, p.updated_at,
		    s.id, s.user_id, s.site_url, s.wp_username, s.wp_app_password,
		    s.feed_url, s.last_verified_at, s.remote_post_count,
		    s.created_at, s.updated_at`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("公開対象記事のクレームに失敗しました: %w", err)
	}
	defer rows.Close()

	var claimed []*ClaimedPost
	for rows.Next() {
		cp := &ClaimedPost{}
		var featuredImageURL, idempotencyKey, publishError sql.NullString
		var nextAttemptAt, publishedAt sql.NullTime
		var wpPostID sql.NullInt64
		var siteFeedURL sql.NullString
		var siteVerifiedAt sql.NullTime

		if err := rows.Scan(
			&cp.ID, &cp.UserID, &cp.SiteID, &cp.Title, &cp.BodyHTML,
			&cp.Excerpt, &cp.MetaDescription, &cp.FocusKeyword,
			pq.Array(&cp.SecondaryKeywords), &featuredImageURL,
			&cp.ScheduledFor, &cp.Timezone, &cp.Status, &cp.Attempts,
			&nextAttemptAt, &idempotencyKey, &wpPostID, &publishedAt,
			&publishError, &cp.CreatedAt, &cp.UpdatedAt,
			&cp.Site.ID, &cp.Site.UserID, &cp.Site.SiteURL,
			&cp.Site.WPUsername, &cp.Site.WPAppPassword,
			&siteFeedURL, &siteVerifiedAt, &cp.Site.RemotePostCount,
			&cp.Site.CreatedAt, &cp.Site.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("クレーム結果の読み取りに失敗しました: %w", err)
		}

		cp.FeaturedImageURL = nullStringValue(featuredImageURL)
		cp.IdempotencyKey = nullStringValue(idempotencyKey)
		cp.PublishError = nullStringValue(publishError)
		cp.WPPostID = wpPostID.Int64
		if nextAttemptAt.Valid {
			t := nextAttemptAt.Time
			cp.NextAttemptAt = &t
		}
		if publishedAt.Valid {
			t := publishedAt.Time
			cp.PublishedAt = &t
		}
		cp.Site.FeedURL = nullStringValue(siteFeedURL)
		if siteVerifiedAt.Valid {
			t := siteVerifiedAt.Time
			cp.Site.LastVerifiedAt = &t
		}

		claimed = append(claimed, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("クレーム結果の走査に失敗しました: %w", err)
	}

	return claimed, nil
}

// ReleaseStaleClaims はクレームからgraceを超過したin_progressの記事をreadyに戻す。
// 実行が中断された場合の回収経路であり、再クレーム時に再試行される（at-least-once）。
func (r *PostgresPostRepo) ReleaseStaleClaims(ctx context.Context, grace time.Duration) (int, error) {
	interval := fmt.Sprintf("%d seconds", int(grace.Seconds()))

	result, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_posts SET
		    status = 'ready',
		    claimed_at = NULL,
		    updated_at = now()
		 WHERE status = 'in_progress'
		   AND claimed_at < now() - $1::interval`,
		interval,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れクレームの解放に失敗しました: %w", err)
	}

	released, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("解放件数の取得に失敗しました: %w", err)
	}

	return int(released), nil
}

// MarkPublished は記事を公開済みの終端状態にする。
// WHERE句でid一致のみを条件とするため、再実行しても同じ結果になる（冪等）。
func (r *PostgresPostRepo) MarkPublished(ctx context.Context, id string, wpPostID int64, publishedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_posts SET
		    status = 'published',
		    wp_post_id = $2,
		    published_at = $3,
		    publish_error = NULL,
		    next_attempt_at = NULL,
		    updated_at = now()
		 WHERE id = $1`,
		id, wpPostID, publishedAt,
	)
	if err != nil {
		return fmt.Errorf("公開済み状態の書き込みに失敗しました: %w", err)
	}
	return nil
}

// MarkFailed は記事を失敗の終端状態にする（冪等）。
func (r *PostgresPostRepo) MarkFailed(ctx context.Context, id, errorMessage string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_posts SET
		    status = 'failed',
		    publish_error = $2,
		    next_attempt_at = NULL,
		    updated_at = now()
		 WHERE id = $1`,
		id, errorMessage,
	)
	if err != nil {
		return fmt.Errorf("失敗状態の書き込みに失敗しました: %w", err)
	}
	return nil
}

// Requeue はリトライ可能な失敗をした記事をreadyに戻す。
func (r *PostgresPostRepo) Requeue(ctx context.Context, id string, nextAttemptAt time.Time, errorMessage string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_posts SET
		    status = 'ready',
		    claimed_at = NULL,
		    next_attempt_at = $2,
		    publish_error = $3,
		    updated_at = now()
		 WHERE id = $1`,
		id, nextAttemptAt, errorMessage,
	)
	if err != nil {
		return fmt.Errorf("記事の再キューに失敗しました: %w", err)
	}
	return nil
}

// ResetForRetry はfailed状態の記事を手動でreadyに戻す。
// failed以外の状態では何も更新しない。
func (r *PostgresPostRepo) ResetForRetry(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_posts SET
		    status = 'ready',
		    attempts = 0,
		    publish_error = NULL,
		    next_attempt_at = NULL,
		    claimed_at = NULL,
		    updated_at = now()
		 WHERE id = $1 AND status = 'failed'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("記事の再試行リセットに失敗しました: %w", err)
	}
	return nil
}

// Cancel はready/pending状態の記事をcancelledにする。
func (r *PostgresPostRepo) Cancel(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_posts SET
		    status = 'cancelled',
		    updated_at = now()
		 WHERE id = $1 AND status IN ('pending', 'ready')`,
		id,
	)
	if err != nil {
		return fmt.Errorf("記事の取り消しに失敗しました: %w", err)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
