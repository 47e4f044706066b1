package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Matcher decides whether a single element qualifies for a heuristic.
type Matcher func(s *goquery.Selection) bool

// ClassContains matches elements with at least one class token containing
// any of the substrings, case-insensitively.
func ClassContains(substrs ...string) Matcher {
	lowered := make([]string, 0, len(substrs))
	for _, s := range substrs {
		lowered = append(lowered, strings.ToLower(s))
	}
	return func(s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		if !ok {
			return false
		}
		for _, token := range strings.Fields(class) {
			token = strings.ToLower(token)
			for _, sub := range lowered {
				if strings.Contains(token, sub) {
					return true
				}
			}
		}
		return false
	}
}

// SelectorMatcher compiles a CSS selector into a Matcher.
func SelectorMatcher(css string) (Matcher, error) {
	sel, err := cascadia.Compile(css)
	if err != nil {
		return nil, fmt.Errorf("extract: compile selector %q: %w", css, err)
	}
	return func(s *goquery.Selection) bool {
		return s.IsMatcher(sel)
	}, nil
}

// firstMatch returns the first descendant of root selected by css that
// satisfies m, stopping at the first hit.
func firstMatch(root *goquery.Selection, css string, m Matcher) *goquery.Selection {
	var found *goquery.Selection
	root.Find(css).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m == nil || m(s) {
			found = s
			return false
		}
		return true
	})
	return found
}
