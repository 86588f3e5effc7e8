// Package extract turns fetched pages into evidence passages, candidate
// claims and outbound links.
package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// skippedElements never contribute visible text
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"nav":      true,
	"footer":   true,
	"header":   true,
	"aside":    true,
	"form":     true,
	"template": true,
}

// Parse parses an HTML document
func Parse(htmlContent string) (*html.Node, error) {
	return html.Parse(strings.NewReader(htmlContent))
}

// VisibleText returns the readable text of a page. Block elements end with a
// newline so sentence splitting does not merge adjacent paragraphs.
func VisibleText(doc *html.Node) string {
	var buf strings.Builder
	writeText(&buf, contentRoot(doc))
	return strings.TrimSpace(buf.String())
}

// contentRoot picks the main content container when the page marks one,
// falling back to the whole document.
func contentRoot(doc *html.Node) *html.Node {
	if n := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == "mw-content-text"
	}); n != nil {
		return n
	}
	for _, tag := range []string{"article", "main"} {
		if n := findFirst(doc, func(n *html.Node) bool {
			return n.Type == html.ElementNode && n.Data == tag
		}); n != nil {
			return n
		}
	}
	return doc
}

func writeText(buf *strings.Builder, n *html.Node) {
	if n.Type == html.ElementNode {
		if skippedElements[n.Data] {
			return
		}
		// Citation markers like [1]
		if n.Data == "sup" && hasClass(n, "reference") {
			return
		}
	}

	if n.Type == html.TextNode {
		text := strings.Join(strings.Fields(n.Data), " ")
		if text != "" {
			buf.WriteString(text)
			buf.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(buf, c)
	}

	if n.Type == html.ElementNode && isBlock(n.Data) {
		buf.WriteString("\n")
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6",
		"blockquote", "pre", "section", "article", "td", "th", "tr", "br", "dd", "dt":
		return true
	}
	return false
}

func hasClass(n *html.Node, className string) bool {
	for _, class := range strings.Fields(attr(n, "class")) {
		if class == className {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}
