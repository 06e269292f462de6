package collector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MaxSnippetRunes 摘要片段最长字符数
const MaxSnippetRunes = 500

// cleanSnippet 去掉 HTML 标签、压缩空白并截断
func cleanSnippet(s string) string {
	return truncateRunes(stripHTML(s), MaxSnippetRunes)
}

func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapseSpaces(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseSpaces(s)
	}
	return collapseSpaces(doc.Text())
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes 按字符截断，超出时追加省略号
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
