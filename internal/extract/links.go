package extract

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// LinkKind classifies an outbound link
type LinkKind string

const (
	LinkCitation  LinkKind = "citation"
	LinkReference LinkKind = "reference"
	LinkExternal  LinkKind = "external"
)

// Link is an outbound hyperlink found on a page
type Link struct {
	URL      string
	Host     string
	Text     string
	Kind     LinkKind
	SameHost bool
}

// Links returns the unique http(s) links of a page, resolved against
// sourceURL, in document order.
func Links(htmlContent, sourceURL string) ([]Link, error) {
	doc, err := Parse(htmlContent)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil, err
	}

	var links []Link
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := strings.TrimSpace(attr(n, "href"))
			if resolved := resolveURL(base, href); resolved != nil && !seen[resolved.String()] {
				seen[resolved.String()] = true
				text := ""
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					text = strings.TrimSpace(n.FirstChild.Data)
				}
				links = append(links, Link{
					URL:      resolved.String(),
					Host:     resolved.Host,
					Text:     text,
					Kind:     classifyLink(href, n),
					SameHost: resolved.Host == base.Host,
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links, nil
}

// ExternalLinks filters links to those pointing at other hosts
func ExternalLinks(links []Link) []Link {
	var out []Link
	for _, l := range links {
		if !l.SameHost {
			out = append(out, l)
		}
	}
	return out
}

func resolveURL(base *url.URL, href string) *url.URL {
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return nil
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return nil
	}

	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return nil
	}
	resolved.Fragment = ""
	return resolved
}

func classifyLink(href string, n *html.Node) LinkKind {
	lower := strings.ToLower(href)

	if strings.Contains(lower, "cite") || strings.Contains(lower, "#ref") {
		return LinkCitation
	}
	if hasClass(n, "reference") || (hasClass(n, "external") && hasClass(n, "text")) {
		return LinkCitation
	}
	if strings.Contains(lower, "reference") || strings.Contains(lower, "footnote") {
		return LinkReference
	}
	return LinkExternal
}
