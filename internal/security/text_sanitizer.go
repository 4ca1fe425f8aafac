// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はタグ・メモ・説明文などユーザーが入力する自由記述を保存前に無害化する。
// bluemondayのStrictPolicyでHTMLタグを全て除去し、プレーンテキストとして保存する。
package security

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// maxPasses は文字実体参照の入れ子を展開する回数の上限。
const maxPasses = 8

// Sanitizer はユーザー入力テキストの無害化のインターフェース。
type Sanitizer interface {
	// Sanitize はHTMLタグを除去したプレーンテキストを返す。
	// 空白と改行はそのまま残す。Sanitize(Sanitize(x)) == Sanitize(x) が成り立つ。
	Sanitize(input string) string
}

// TextSanitizer はSanitizerの実装。
// bluemondayのポリシーはスレッドセーフで、複数リクエストから共有できる。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグ除去と文字実体参照の展開を、結果が変わらなくなるまで繰り返す。
// "&lt;img ...&gt;" のようにエンコードされたタグも展開後に除去されるため、
// 出力にマークアップは残らない。上限回数で収束しない入力は空文字列にする。
func (s *TextSanitizer) Sanitize(input string) string {
	cur := input
	for range maxPasses {
		if cur == "" {
			return ""
		}
		next := html.UnescapeString(s.policy.Sanitize(cur))
		if next == cur {
			return cur
		}
		cur = next
	}
	return ""
}

var _ Sanitizer = (*TextSanitizer)(nil)
