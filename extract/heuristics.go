package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/harvest/models"
)

// FieldHeuristic pulls one product field out of a candidate element.
// A miss is reported as ok == false and never blocks other heuristics.
type FieldHeuristic interface {
	Field() string
	Extract(candidate *goquery.Selection) (value string, ok bool)
}

// TextHeuristic takes the trimmed text of the first descendant selected by
// Selector that satisfies Match.
type TextHeuristic struct {
	Name     string
	Selector string
	Match    Matcher
}

func (h TextHeuristic) Field() string { return h.Name }

func (h TextHeuristic) Extract(candidate *goquery.Selection) (string, bool) {
	el := firstMatch(candidate, h.Selector, h.Match)
	if el == nil {
		return "", false
	}
	text := strings.TrimSpace(el.Text())
	return text, text != ""
}

// AttrHeuristic takes the first non-blank attribute, in Attrs order, of the
// first descendant selected by Selector. Later descendants are not consulted.
type AttrHeuristic struct {
	Name     string
	Selector string
	Attrs    []string
}

func (h AttrHeuristic) Field() string { return h.Name }

func (h AttrHeuristic) Extract(candidate *goquery.Selection) (string, bool) {
	el := firstMatch(candidate, h.Selector, nil)
	if el == nil {
		return "", false
	}
	return selectionAttr(el, h.Attrs)
}

// TitleHeuristic matches the first h1-h4 whose class mentions "title" or "name".
func TitleHeuristic() FieldHeuristic {
	return TextHeuristic{
		Name:     models.FieldTitle,
		Selector: "h1, h2, h3, h4",
		Match:    ClassContains("title", "name"),
	}
}

// PriceHeuristic matches the first element whose class mentions "price".
// The text is kept verbatim, currency symbols included.
func PriceHeuristic() FieldHeuristic {
	return TextHeuristic{
		Name:     models.FieldPrice,
		Selector: "*",
		Match:    ClassContains("price"),
	}
}

// ImageHeuristic reads the source of the first <img>.
func ImageHeuristic(attrs []string) FieldHeuristic {
	return AttrHeuristic{
		Name:     models.FieldImage,
		Selector: "img",
		Attrs:    attrs,
	}
}

// DefaultHeuristics returns the title, price and image heuristics.
func DefaultHeuristics(imageAttrs []string) []FieldHeuristic {
	return []FieldHeuristic{
		TitleHeuristic(),
		PriceHeuristic(),
		ImageHeuristic(imageAttrs),
	}
}
