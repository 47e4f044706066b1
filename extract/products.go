package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// DefaultProductTags are the container kinds considered as product candidates.
var DefaultProductTags = []string{"article", "div"}

// ProductExtractor infers product records from product-like containers.
type ProductExtractor struct {
	// Tags restricts candidates to these element names. Empty means any element.
	Tags []string

	// Candidate decides whether an element represents one product.
	Candidate Matcher

	// Heuristics are applied independently to every candidate.
	Heuristics []FieldHeuristic
}

// NewProductExtractor builds the default extractor: article/div containers
// whose class mentions "product". A non-empty cfg.ProductSelector replaces
// both the tag set and the class heuristic.
func NewProductExtractor(cfg config.ExtractConfig) (*ProductExtractor, error) {
	attrs := cfg.ImageAttrs
	if len(attrs) == 0 {
		attrs = DefaultImageAttrs
	}
	x := &ProductExtractor{
		Tags:       DefaultProductTags,
		Candidate:  ClassContains("product"),
		Heuristics: DefaultHeuristics(attrs),
	}
	if cfg.ProductSelector != "" {
		m, err := SelectorMatcher(cfg.ProductSelector)
		if err != nil {
			return nil, models.NewHarvestError(models.ErrCodeInvalidInput, "invalid product selector", err)
		}
		x.Tags = nil
		x.Candidate = m
	}
	return x, nil
}

// Candidates returns the product-like elements in document order. Nested
// candidates are all kept.
func (x *ProductExtractor) Candidates(doc *goquery.Document) *goquery.Selection {
	css := "*"
	if len(x.Tags) > 0 {
		css = strings.Join(x.Tags, ", ")
	}
	sel := doc.Find(css)
	if x.Candidate == nil {
		return sel
	}
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return x.Candidate(s)
	})
}

// Extract returns one record per candidate that yielded at least one field.
// Image values are passed through exactly as written in the markup.
func (x *ProductExtractor) Extract(doc *goquery.Document) []models.Product {
	return x.ExtractWithBase(doc, nil)
}

// ExtractWithBase is Extract with image values resolved against base when
// base is non-nil. Values that cannot be resolved are kept as written.
func (x *ProductExtractor) ExtractWithBase(doc *goquery.Document, base *url.URL) []models.Product {
	if doc == nil {
		return nil
	}
	var products []models.Product
	x.Candidates(doc).Each(func(_ int, s *goquery.Selection) {
		p, ok := x.ExtractCandidate(s)
		if !ok {
			return
		}
		if base != nil && p.Image != "" {
			if abs, ok := Resolve(base, p.Image); ok {
				p.Image = abs
			}
		}
		products = append(products, p)
	})
	return products
}

// ExtractCandidate applies every heuristic to one candidate. ok is false
// when nothing was found.
func (x *ProductExtractor) ExtractCandidate(candidate *goquery.Selection) (models.Product, bool) {
	var p models.Product
	for _, h := range x.Heuristics {
		if v, ok := h.Extract(candidate); ok {
			p.Set(h.Field(), v)
		}
	}
	return p, !p.IsEmpty()
}
