package search

import (
	"strings"

	"golang.org/x/net/html"
)

// plainText strips markup from result content. Text without tags is only
// whitespace-normalized.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapseSpace(s)
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return collapseSpace(s)
	}
	var sb strings.Builder
	extractText(doc, &sb, 0)
	return collapseSpace(sb.String())
}

func extractText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 50 {
		return
	}
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteString(" ")
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb, depth+1)
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
