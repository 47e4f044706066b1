package extract

import (
	"fmt"
	"hash/fnv"
	"iter"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/harvest/models"
	"golang.org/x/net/html"
)

// NoLimit disables the image count bound.
const NoLimit = -1

// DefaultImageExt is appended to synthesized filenames.
const DefaultImageExt = ".jpg"

// DefaultImageAttrs is the attribute fallback order for image sources:
// the regular source first, then the common lazy-load attribute.
var DefaultImageAttrs = []string{"src", "data-src"}

// ImageExtractor discovers <img> references and resolves them to absolute URLs.
type ImageExtractor struct {
	// Attrs is tried in order; the first non-blank value is the image URL.
	Attrs []string
}

// NewImageExtractor creates an ImageExtractor. With no attrs it uses
// DefaultImageAttrs.
func NewImageExtractor(attrs ...string) *ImageExtractor {
	if len(attrs) == 0 {
		attrs = DefaultImageAttrs
	}
	return &ImageExtractor{Attrs: attrs}
}

// Extract yields image references in document order. Elements without a
// usable source are skipped and do not count toward limit. A negative limit
// means unbounded; once limit references are yielded the walk stops.
//
// The sequence is single-use and lazy: nothing past the consumer's last
// accepted element is resolved.
func (x *ImageExtractor) Extract(doc *goquery.Document, baseURL string, limit int) iter.Seq[models.ImageReference] {
	return func(yield func(models.ImageReference) bool) {
		if limit == 0 || doc == nil {
			return
		}
		base, err := url.Parse(baseURL)
		if err != nil {
			slog.Warn("invalid base url, no images extracted", "base", baseURL, "error", err)
			return
		}

		n := 0
		for _, root := range doc.Nodes {
			more := elements(root, "img", func(img *html.Node) bool {
				raw, ok := nodeAttr(img, x.Attrs)
				if !ok {
					return true
				}
				abs, ok := Resolve(base, raw)
				if !ok {
					slog.Debug("skipping unresolvable image", "src", truncate(raw, 80))
					return true
				}
				n++
				ref := models.ImageReference{
					SourceURL:         abs,
					SuggestedFilename: SuggestFilename(abs),
				}
				if !yield(ref) {
					return false
				}
				return limit < 0 || n < limit
			})
			if !more {
				return
			}
		}
	}
}

// Collect drains Extract into a slice.
func (x *ImageExtractor) Collect(doc *goquery.Document, baseURL string, limit int) []models.ImageReference {
	var refs []models.ImageReference
	for ref := range x.Extract(doc, baseURL, limit) {
		refs = append(refs, ref)
	}
	return refs
}

// Resolve joins ref onto base with standard URL reference resolution.
// Only http and https results are usable; anything else (data:, javascript:,
// unparsable input, relative refs on a relative base) is rejected.
func Resolve(base *url.URL, ref string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String(), true
	}
	return "", false
}

// SuggestFilename derives a local filename for an image URL. The path
// basename is used when it carries an extension separator; otherwise the
// name is image_<fnv64a(url)> plus DefaultImageExt.
func SuggestFilename(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && !strings.HasSuffix(u.Path, "/") {
		name := path.Base(u.Path)
		if name != "." && name != ".." && name != "/" && strings.Contains(name, ".") {
			if clean := sanitizeFilename(name); clean != "" {
				return clean
			}
		}
	}
	h := fnv.New64a()
	h.Write([]byte(rawURL))
	return fmt.Sprintf("image_%016x%s", h.Sum64(), DefaultImageExt)
}

const maxFilenameLen = 200

// sanitizeFilename replaces characters that are unsafe on common filesystems
// and caps the length while keeping the extension.
func sanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return '_'
		case strings.ContainsRune(`\/:*?"<>|`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, " ")
	if name == "" || strings.Trim(name, ".") == "" {
		return ""
	}
	if len(name) > maxFilenameLen {
		ext := path.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:maxFilenameLen-len(ext)] + ext
	}
	return name
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
