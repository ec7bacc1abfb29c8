// Package content は公開前のコンテンツ整形機能を提供する。
//
// PublishSanitizerService は上流のドラフト生成ステップが出力した
// レンダリング済みHTMLをWordPressへ送信する前にサニタイズする。
// 生成結果には意図しないタグやイベント属性が混入しうるため、
// bluemondayライブラリを使用した許可リストベースのポリシーで
// 安全なタグと属性のみを通過させる。
package content

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// PublishSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// 公開ワーカーが記事本文の送信前に使用する。
type PublishSanitizerService interface {
	// SanitizeBody は記事本文のHTMLをサニタイズして安全なHTMLを返す。
	// 記事構造に必要なタグ（見出し、段落、リスト、引用、コード、画像等）のみを
	// 通過させ、script、iframe、styleタグおよびon*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeBody(rawHTML string) string

	// PlainText はHTMLからタグを全て除去したプレーンテキストを返す。
	// 抜粋とメタディスクリプションの整形に使用し、maxLenを超える場合は
	// rune単位で切り詰める。maxLenが0以下の場合は切り詰めない。
	PlainText(rawHTML string, maxLen int) string
}

// publishSanitizer はPublishSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type publishSanitizer struct {
	bodyPolicy   *bluemonday.Policy
	strictPolicy *bluemonday.Policy
}

// NewPublishSanitizer はPublishSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// ポリシーの内容:
//   - 許可タグ: h2〜h4, p, br, a, ul, ol, li, blockquote, pre, code,
//     strong, em, table, thead, tbody, tr, th, td, img, figure, figcaption
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//   - imgのsrc属性: httpsスキームのみ許可
//   - aタグ: href属性のみ許可、相対URLは不許可
func NewPublishSanitizer() *publishSanitizer {
	p := bluemonday.NewPolicy()

	// 記事構造タグの許可。scriptやiframe、on*イベント属性は
	// 許可リストに含めないことで自動的に除去される。
	p.AllowElements(
		"h2", "h3", "h4",
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
		"table", "thead", "tbody", "tr", "th", "td",
		"figure", "figcaption",
	)

	// aタグ: href属性のみ。相対URLは公開先サイトで壊れるため不許可。
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)

	// imgタグ: src属性はhttpsスキームのみ許可（http, javascript, data等は拒否）。
	// alt属性はSEO上の要件でもあるため許可する。
	p.AllowAttrs("src").OnElements("img")
	p.AllowAttrs("alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &publishSanitizer{
		bodyPolicy:   p,
		strictPolicy: bluemonday.StrictPolicy(),
	}
}

// SanitizeBody は記事本文のHTMLをサニタイズして安全なHTMLを返す。
func (s *publishSanitizer) SanitizeBody(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.bodyPolicy.Sanitize(rawHTML)
}

// PlainText はHTMLからタグを全て除去したプレーンテキストを返す。
func (s *publishSanitizer) PlainText(rawHTML string, maxLen int) string {
	text := strings.TrimSpace(s.strictPolicy.Sanitize(rawHTML))

	if maxLen <= 0 {
		return text
	}

	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen])
}

// compile-time interface check
var _ PublishSanitizerService = (*publishSanitizer)(nil)
