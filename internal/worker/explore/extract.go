package explore

import (
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

// coverImage は記事のカバー画像URLを返す。
// item.Image、画像のenclosure、本文中の最初の<img>、フィードの画像の順に探す。
// 相対URLは記事のリンクを基準に解決する。見つからなければ空文字列。
func coverImage(item *gofeed.Item, feed *gofeed.Feed) string {
	var candidates []string
	if item.Image != nil {
		candidates = append(candidates, item.Image.URL)
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(strings.ToLower(enc.Type), "image/") {
			candidates = append(candidates, enc.URL)
		}
	}
	if src := firstImageSrc(item.Content); src != "" {
		candidates = append(candidates, src)
	}
	if src := firstImageSrc(item.Description); src != "" {
		candidates = append(candidates, src)
	}
	if feed != nil && feed.Image != nil {
		candidates = append(candidates, feed.Image.URL)
	}

	for _, c := range candidates {
		if resolved := resolveURL(item.Link, c); resolved != "" {
			return resolved
		}
	}
	return ""
}

// firstImageSrc はHTML断片から最初の<img>のsrc属性を返す。
func firstImageSrc(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "img" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "src" && len(val) > 0 {
					return string(val)
				}
			}
		}
	}
}

func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if !u.IsAbs() {
		b, err := url.Parse(base)
		if err != nil || !b.IsAbs() {
			return ""
		}
		u = b.ResolveReference(u)
	}
	return u.String()
}
