// Package extract holds the heuristic extraction engine: image reference
// discovery and product record inference over a parsed HTML document.
//
// Both pipelines only read the document, so one parsed page may be fed to
// several extractors, concurrently if needed.
package extract

import (
	"bytes"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/harvest/models"
	"golang.org/x/net/html"
)

// Parse builds a queryable document from raw markup. Scripting is off so
// <noscript> content is parsed as markup and images inside it are visible.
func Parse(r io.Reader) (*goquery.Document, error) {
	root, err := html.ParseWithOptions(r, html.ParseOptionEnableScripting(false))
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeParse, "failed to parse HTML", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// ParseBytes is Parse over an in-memory page body.
func ParseBytes(body []byte) (*goquery.Document, error) {
	return Parse(bytes.NewReader(body))
}

// ParseString is Parse over a markup string.
func ParseString(markup string) (*goquery.Document, error) {
	return Parse(strings.NewReader(markup))
}

// elements yields element nodes named tag under root, in document order.
// The walk stops as soon as yield returns false.
func elements(root *html.Node, tag string, yield func(*html.Node) bool) bool {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			if !yield(c) {
				return false
			}
		}
		if !elements(c, tag, yield) {
			return false
		}
	}
	return true
}

// nodeAttr returns the first non-blank value among attrs, in priority order.
func nodeAttr(n *html.Node, attrs []string) (string, bool) {
	for _, name := range attrs {
		for _, a := range n.Attr {
			if a.Namespace == "" && a.Key == name {
				if v := strings.TrimSpace(a.Val); v != "" {
					return v, true
				}
				break
			}
		}
	}
	return "", false
}

// selectionAttr is nodeAttr for the first node of a selection.
func selectionAttr(s *goquery.Selection, attrs []string) (string, bool) {
	if s.Length() == 0 {
		return "", false
	}
	return nodeAttr(s.Get(0), attrs)
}
