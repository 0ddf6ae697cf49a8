package sshsession

import (
	"strings"

	"golang.org/x/net/html"
)

// stripHTMLTags removes HTML markup from an SSH login banner, keeping only
// its text content so it reads cleanly through a plain-text log sink. Some
// servers send banners formatted as HTML fragments; this renders them down
// to their visible text the same way a browser's textContent would.
func stripHTMLTags(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(b.String())
}
