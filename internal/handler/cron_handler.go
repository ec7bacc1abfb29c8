package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/seopilot/internal/model"
)

// PublishRunner は公開サイクルの実行インターフェース。
type PublishRunner interface {
	// RunOnce は公開サイクルを1回実行し、実行結果の集計を返す。
	RunOnce(ctx context.Context) (*model.RunSummary, error)
}

// CronHandler は外部cronサービスからの公開トリガーを処理する。
// 実行基盤が常駐ワーカーを持たない構成では、外部のcronサービスが
// このエンドポイントを定期的に呼び出して公開サイクルを駆動する。
type CronHandler struct {
	runner PublishRunner
	secret string
}

// NewCronHandler はCronHandlerを生成する。
func NewCronHandler(runner PublishRunner, secret string) *CronHandler {
	return &CronHandler{
		runner: runner,
		secret: secret,
	}
}

// outcomeResponse は1記事の処理結果のレスポンス。
// cron呼び出し元が機械処理する契約のため、statusは"success"か"failed"の
// 文字列で返す。
type outcomeResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	WPPostID int64  `json:"wpPostId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// cronRunResponse は公開サイクル実行結果のレスポンス。
type cronRunResponse struct {
	Processed int               `json:"processed"`
	Success   int               `json:"success"`
	Failed    int               `json:"failed"`
	Details   []outcomeResponse `json:"details"`
}

// TriggerPublish は公開サイクルを1回実行する。
// GET /cron/publish?secret=
// secretクエリパラメータが設定値と一致しない場合は401を返す。
// トリガー自体の失敗（DB接続断など）のみ500になり、
// 個々の記事の公開失敗は200のレスポンス内で報告される。
func (h *CronHandler) TriggerPublish(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("secret")
	if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) != 1 {
		writeCronError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	summary, err := h.runner.RunOnce(r.Context())
	if err != nil {
		slog.Error("公開サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		writeCronError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if summary.Processed == 0 {
		json.NewEncoder(w).Encode(map[string]string{"message": "No posts to publish"})
		return
	}

	resp := cronRunResponse{
		Processed: summary.Processed,
		Success:   summary.Success,
		Failed:    summary.Failed,
		Details:   make([]outcomeResponse, 0, len(summary.Details)),
	}
	for _, outcome := range summary.Details {
		status := "success"
		if !outcome.Success {
			status = "failed"
		}
		resp.Details = append(resp.Details, outcomeResponse{
			ID:       outcome.PostID,
			Status:   status,
			WPPostID: outcome.WPPostID,
			Error:    outcome.Error,
		})
	}

	json.NewEncoder(w).Encode(resp)
}

// writeCronError はcronトリガーの簡易エラーフォーマット {"error": ...} を書き込む。
// 管理APIの統一エラーフォーマットとは異なり、外部cronサービス向けの契約に従う。
func writeCronError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
