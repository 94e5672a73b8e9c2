package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Tidy removes newlines, replaces non-breaking spaces, collapses whitespace
// runs and trims the ends. An empty result means the element carried no text.
func Tidy(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// ownTexts returns the text nodes that are direct children of the selected elements.
func ownTexts(sel *goquery.Selection) []string {
	var out []string
	for _, n := range sel.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				out = append(out, c.Data)
			}
		}
	}
	return out
}

// descendantTexts returns every text node below the selected elements in document order.
func descendantTexts(sel *goquery.Selection) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				out = append(out, c.Data)
			case html.ElementNode:
				if c.Data == "script" || c.Data == "style" {
					continue
				}
				walk(c)
			}
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return out
}
