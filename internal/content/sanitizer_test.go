package content

import (
	"strings"
	"testing"
)

func TestSanitizeBody_AllowsArticleStructure(t *testing.T) {
	s := NewPublishSanitizer()

	input := `<h2>見出し</h2><p>本文の<strong>段落</strong>です。</p><ul><li>項目1</li></ul>`
	got := s.SanitizeBody(input)

	for _, want := range []string{"<h2>", "<p>", "<strong>", "<ul>", "<li>"} {
		if !strings.Contains(got, want) {
			t.Errorf("サニタイズ結果に %s が含まれていない: %s", want, got)
		}
	}
}

func TestSanitizeBody_RemovesScript(t *testing.T) {
	s := NewPublishSanitizer()

	input := `<p>安全な段落</p><script>alert("xss")</script>`
	got := s.SanitizeBody(input)

	if strings.Contains(got, "<script>") || strings.Contains(got, "alert") {
		t.Errorf("scriptタグが除去されていない: %s", got)
	}
	if !strings.Contains(got, "<p>安全な段落</p>") {
		t.Errorf("安全なタグまで除去された: %s", got)
	}
}

func TestSanitizeBody_RemovesEventHandlers(t *testing.T) {
	s := NewPublishSanitizer()

	input := `<p onclick="alert(1)">段落</p>`
	got := s.SanitizeBody(input)

	if strings.Contains(got, "onclick") {
		t.Errorf("on*イベント属性が除去されていない: %s", got)
	}
}

func TestSanitizeBody_RemovesIframe(t *testing.T) {
	s := NewPublishSanitizer()

	input := `<iframe src="https://evil.example.com"></iframe><p>本文</p>`
	got := s.SanitizeBody(input)

	if strings.Contains(got, "iframe") {
		t.Errorf("iframeタグが除去されていない: %s", got)
	}
}

func TestSanitizeBody_ImgHTTPSOnly(t *testing.T) {
	s := NewPublishSanitizer()

	httpsImg := `<img src="https://images.example.com/a.png" alt="図">`
	got := s.SanitizeBody(httpsImg)
	if !strings.Contains(got, "https://images.example.com/a.png") {
		t.Errorf("httpsのimgが許可されていない: %s", got)
	}

	httpImg := `<img src="http://images.example.com/a.png">`
	got = s.SanitizeBody(httpImg)
	if strings.Contains(got, "http://images.example.com") {
		t.Errorf("httpのimg srcが除去されていない: %s", got)
	}

	jsImg := `<img src="javascript:alert(1)">`
	got = s.SanitizeBody(jsImg)
	if strings.Contains(got, "javascript") {
		t.Errorf("javascriptスキームのimg srcが除去されていない: %s", got)
	}
}

func TestSanitizeBody_EmptyInput(t *testing.T) {
	s := NewPublishSanitizer()

	if got := s.SanitizeBody(""); got != "" {
		t.Errorf("空入力に対して %q が返された", got)
	}
}

func TestSanitizeBody_Idempotent(t *testing.T) {
	s := NewPublishSanitizer()

	input := `<h2>見出し</h2><p>本文<script>bad()</script></p>`
	once := s.SanitizeBody(input)
	twice := s.SanitizeBody(once)

	if once != twice {
		t.Errorf("サニタイズが冪等でない: 1回目 %q, 2回目 %q", once, twice)
	}
}

func TestPlainText_StripsAllTags(t *testing.T) {
	s := NewPublishSanitizer()

	input := `<p>これは<strong>抜粋</strong>です。</p>`
	got := s.PlainText(input, 0)

	if got != "これは抜粋です。" {
		t.Errorf("PlainText = %q, want %q", got, "これは抜粋です。")
	}
}

func TestPlainText_TruncatesByRune(t *testing.T) {
	s := NewPublishSanitizer()

	input := "<p>あいうえおかきくけこ</p>"
	got := s.PlainText(input, 5)

	if got != "あいうえお" {
		t.Errorf("PlainText = %q, want %q", got, "あいうえお")
	}
}

func TestPlainText_ShorterThanLimit(t *testing.T) {
	s := NewPublishSanitizer()

	got := s.PlainText("<p>短い</p>", 100)
	if got != "短い" {
		t.Errorf("PlainText = %q, want %q", got, "短い")
	}
}
