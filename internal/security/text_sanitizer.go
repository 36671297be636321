package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はユーザー入力のテキストからマークアップを除去する。
// カタログの名称や説明文を保存する前に使用する。
type TextSanitizerService interface {
	// Sanitize は全てのHTMLタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
	Sanitize(s string) string
}

// TextSanitizer はbluemondayのStrictPolicyによるTextSanitizerServiceの実装。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去したプレーンテキストを返す。
// StrictPolicyがエスケープした文字実体参照は元に戻す。
func (s *TextSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}

// compile-time interface check
var _ TextSanitizerService = (*TextSanitizer)(nil)
