package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/seopilot/internal/model"
)

const testCronSecret = "cron-secret-for-test"

// mockRunner はPublishRunnerのモック実装。
type mockRunner struct {
	summary *model.RunSummary
	err     error
	called  bool
}

func (m *mockRunner) RunOnce(ctx context.Context) (*model.RunSummary, error) {
	m.called = true
	return m.summary, m.err
}

func TestTriggerPublish_MissingSecret_Returns401(t *testing.T) {
	runner := &mockRunner{summary: &model.RunSummary{}}
	h := NewCronHandler(runner, testCronSecret)

	rec := httptest.NewRecorder()
	h.TriggerPublish(rec, httptest.NewRequest(http.MethodGet, "/cron/publish", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if runner.called {
		t.Error("認証失敗時は公開サイクルを実行しないべき")
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if body["error"] != "Unauthorized" {
		t.Errorf("error = %q, want %q", body["error"], "Unauthorized")
	}
}

func TestTriggerPublish_WrongSecret_Returns401(t *testing.T) {
	runner := &mockRunner{summary: &model.RunSummary{}}
	h := NewCronHandler(runner, testCronSecret)

	rec := httptest.NewRecorder()
	h.TriggerPublish(rec, httptest.NewRequest(http.MethodGet, "/cron/publish?secret=wrong", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if runner.called {
		t.Error("認証失敗時は公開サイクルを実行しないべき")
	}

	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["error"] != "Unauthorized" {
		t.Errorf("error = %q, want %q", body["error"], "Unauthorized")
	}
}

func TestTriggerPublish_RunnerError_Returns500(t *testing.T) {
	runner := &mockRunner{err: errors.New("database connection refused")}
	h := NewCronHandler(runner, testCronSecret)

	rec := httptest.NewRecorder()
	h.TriggerPublish(rec, httptest.NewRequest(http.MethodGet, "/cron/publish?secret="+testCronSecret, nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if body["error"] == "" {
		t.Error("errorフィールドにエラー内容が含まれるべき")
	}
}

func TestTriggerPublish_EmptySummary(t *testing.T) {
	runner := &mockRunner{summary: &model.RunSummary{}}
	h := NewCronHandler(runner, testCronSecret)

	rec := httptest.NewRecorder()
	h.TriggerPublish(rec, httptest.NewRequest(http.MethodGet, "/cron/publish?secret="+testCronSecret, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// 期限到来の記事がない場合はmessageのみのボディを返す
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if body["message"] != "No posts to publish" {
		t.Errorf("message = %v, want %q", body["message"], "No posts to publish")
	}
	if len(body) != 1 {
		t.Errorf("空の実行結果はmessageのみを返すべき: %v", body)
	}
}

func TestTriggerPublish_MixedSummary(t *testing.T) {
	summary := &model.RunSummary{}
	summary.Add(model.PostOutcome{PostID: "post-1", Success: true, WPPostID: 101})
	summary.Add(model.PostOutcome{PostID: "post-2", Success: false, Error: "WordPressがステータス 500 を返しました"})
	summary.Add(model.PostOutcome{PostID: "post-3", Success: true, WPPostID: 103})

	runner := &mockRunner{summary: summary}
	h := NewCronHandler(runner, testCronSecret)

	rec := httptest.NewRecorder()
	h.TriggerPublish(rec, httptest.NewRequest(http.MethodGet, "/cron/publish?secret="+testCronSecret, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body cronRunResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if body.Processed != 3 || body.Success != 2 || body.Failed != 1 {
		t.Errorf("summary = %d/%d/%d, want 3/2/1", body.Processed, body.Success, body.Failed)
	}
	if len(body.Details) != 3 {
		t.Fatalf("details数 = %d, want 3", len(body.Details))
	}
	if body.Details[0].ID != "post-1" {
		t.Errorf("details[0].id = %s, want post-1", body.Details[0].ID)
	}
	if body.Details[0].Status != "success" {
		t.Errorf("details[0].status = %q, want %q", body.Details[0].Status, "success")
	}
	if body.Details[0].WPPostID != 101 {
		t.Errorf("details[0].wpPostId = %d, want 101", body.Details[0].WPPostID)
	}
	if body.Details[1].Status != "failed" {
		t.Errorf("details[1].status = %q, want %q", body.Details[1].Status, "failed")
	}
	if body.Details[1].Error == "" {
		t.Error("失敗した記事にはエラーメッセージが含まれるべき")
	}
}

// TestTriggerPublish_DetailKeys は呼び出し元が依存するJSONキー名を検証する。
func TestTriggerPublish_DetailKeys(t *testing.T) {
	summary := &model.RunSummary{}
	summary.Add(model.PostOutcome{PostID: "post-1", Success: true, WPPostID: 42})

	runner := &mockRunner{summary: summary}
	h := NewCronHandler(runner, testCronSecret)

	rec := httptest.NewRecorder()
	h.TriggerPublish(rec, httptest.NewRequest(http.MethodGet, "/cron/publish?secret="+testCronSecret, nil))

	var body struct {
		Details []map[string]any `json:"details"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if len(body.Details) != 1 {
		t.Fatalf("details数 = %d, want 1", len(body.Details))
	}

	detail := body.Details[0]
	for _, key := range []string{"id", "status", "wpPostId"} {
		if _, ok := detail[key]; !ok {
			t.Errorf("detailにキー %q が存在するべき: %v", key, detail)
		}
	}
	for _, key := range []string{"post_id", "success", "wp_post_id"} {
		if _, ok := detail[key]; ok {
			t.Errorf("detailに旧キー %q が存在しないべき: %v", key, detail)
		}
	}
}
