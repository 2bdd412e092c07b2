// Package security はユーザー入力と外部コンテンツの無害化、外部取得時のSSRF防止を提供する。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxUnescapePasses はエンティティで多重に埋め込まれたタグを剥がす最大回数。
const maxUnescapePasses = 3

// TextSanitizer はプレーンテキストとして扱う値の無害化を行う。
// プロフィールの入力値と、取り込んだ記事のタイトルに使用する。
type TextSanitizer interface {
	// Text はHTMLタグを全て除去し、エンティティを復元したテキストを返す。
	// script/styleの中身も除去される。前後の空白は取り除く。
	Text(raw string) string

	// ImageURL は画像URLとして表示してよい場合のみ正規化したURLを返す。
	// httpsの絶対URL以外は空文字列を返す。
	ImageURL(raw string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使うTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Text はHTMLタグを全て除去したテキストを返す。
// "&lt;script&gt;" のようにエスケープされたタグも、復元後に再度除去する。
func (s *textSanitizer) Text(raw string) string {
	out := raw
	for i := 0; i < maxUnescapePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(out))
		if next == out {
			break
		}
		out = next
	}
	return strings.TrimSpace(out)
}

// ImageURL はhttpsの絶対URLのみを返す。
func (s *textSanitizer) ImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Scheme, "https") || u.Host == "" {
		return ""
	}
	return u.String()
}
