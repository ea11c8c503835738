// Package htmlutil holds the html-node helpers the portal scrapers share.
//
// Both portals hide state the protocol needs (security tokens, reference
// cache keys) inside inline script tags on otherwise uninteresting pages.
package htmlutil

import (
	"bytes"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// FindScriptMatch runs pattern over the text of every inline script in the
// document and returns the first capture group of the first match, "" when
// nothing matches.
func FindScriptMatch(doc *goquery.Document, pattern *regexp.Regexp) string {
	for _, script := range doc.Find("script").Nodes {
		groups := pattern.FindStringSubmatch(GetText(script))
		if len(groups) >= 2 {
			return groups[1]
		}
	}
	return ""
}
