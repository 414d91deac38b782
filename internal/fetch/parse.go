package fetch

import (
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// skipped elements carry no visible business text.
var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true,
	"svg": true, "template": true,
}

// blockLevel elements end a line of text.
var blockLevel = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true,
	"article": true, "header": true, "footer": true, "nav": true, "address": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

var (
	spaceRe = regexp.MustCompile(`[ \t\r\f\v]+`)
	lineRe  = regexp.MustCompile(`\s*\n\s*`)
)

// parseHTML walks a document and returns its title, visible text and the
// hrefs of every anchor resolved against base. Footer and nav text is kept:
// that is where small businesses put their phone numbers.
func parseHTML(base *url.URL, r io.Reader) (title, text string, links []string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", nil, err
	}

	var sb strings.Builder
	seen := make(map[string]bool)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte(' ')
			}
		case html.ElementNode:
			if n.Data == "title" && title == "" && n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
				return
			}
			if skipped[n.Data] {
				return
			}
			if n.Data == "a" {
				if href := resolveHref(base, attr(n, "href")); href != "" && !seen[href] {
					seen[href] = true
					links = append(links, href)
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockLevel[n.Data] {
			sb.WriteByte('\n')
		}
	}
	walk(doc)

	return title, collapse(sb.String()), links, nil
}

// resolveHref makes href absolute. mailto: and tel: pass through untouched;
// fragments, javascript: and other schemes are dropped.
func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapse(s string) string {
	s = spaceRe.ReplaceAllString(s, " ")
	s = lineRe.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
