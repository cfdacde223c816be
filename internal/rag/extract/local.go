package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// HTMLToText converts HTML markup to plaintext wrapped at column 80, using
// readability to strip boilerplate (nav/ads/scripts) before falling back to
// a raw tag-stripping walk if readability cannot parse the document.
func HTMLToText(htmlSrc string) string {
	if article, err := readability.FromReader(strings.NewReader(htmlSrc), &url.URL{}); err == nil && strings.TrimSpace(article.TextContent) != "" {
		return wrapText(article.TextContent, 80)
	}
	return wrapText(stripTags(htmlSrc), 80)
}

func stripTags(htmlSrc string) string {
	doc, err := html.Parse(strings.NewReader(htmlSrc))
	if err != nil {
		return htmlSrc
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				b.WriteString(s)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String()
}

func wrapText(s string, col int) string {
	words := strings.Fields(s)
	var b strings.Builder
	lineLen := 0
	for i, w := range words {
		if lineLen > 0 && lineLen+1+len(w) > col {
			b.WriteString("\n")
			lineLen = 0
		} else if i > 0 {
			b.WriteString(" ")
			lineLen++
		}
		b.WriteString(w)
		lineLen += len(w)
	}
	return b.String()
}

var (
	reCodeFence = regexp.MustCompile("(?s)```.*?```")
	reHeading   = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	reBacktick  = regexp.MustCompile("`")
	reEmphasis  = regexp.MustCompile(`(\*{1,3}|_{1,3})`)
	reLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	reImage     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
)

// MarkdownToText strips common Markdown markup: code fences, heading
// markers, backticks, emphasis markers, turns [label](url) into label, and
// drops images entirely.
func MarkdownToText(src string) string {
	s := reCodeFence.ReplaceAllString(src, "")
	s = reImage.ReplaceAllString(s, "")
	s = reLink.ReplaceAllString(s, "$1")
	s = reHeading.ReplaceAllString(s, "")
	s = reBacktick.ReplaceAllString(s, "")
	s = reEmphasis.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
