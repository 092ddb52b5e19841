package fetcher

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	maxTitleRunes   = 200
	maxExcerptRunes = 1000
)

type page struct {
	title       string
	excerpt     string
	formActions []string
}

// extractPage pulls the title, a visible-text excerpt, and resolved form
// actions out of an HTML document.
func extractPage(body string, base *url.URL) page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return page{}
	}

	var p page
	p.title = truncateRunes(collapseSpace(doc.Find("title").First().Text()), maxTitleRunes)

	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		action, ok := s.Attr("action")
		action = strings.TrimSpace(action)
		if !ok || action == "" {
			return
		}
		resolved, err := base.Parse(action)
		if err != nil {
			return
		}
		p.formActions = append(p.formActions, resolved.String())
	})

	doc.Find("script, style, noscript, template").Remove()
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	var sb strings.Builder
	for _, n := range root.Nodes {
		collectText(n, &sb)
	}
	p.excerpt = truncateRunes(collapseSpace(sb.String()), maxExcerptRunes)
	return p
}

// collectText appends every text node under n, separated by spaces so that
// adjacent block elements do not run together.
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
