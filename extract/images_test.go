package extract

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/harvest/models"
)

func mustParse(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := ParseString(markup)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	return doc
}

func sources(refs []models.ImageReference) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.SourceURL)
	}
	return out
}

func TestExtractImages_SrcAndDataSrc(t *testing.T) {
	doc := mustParse(t, `<html><body><img src="a.png"><img data-src="b.png"></body></html>`)

	got := NewImageExtractor().Collect(doc, "https://x.test/", NoLimit)
	want := []models.ImageReference{
		{SourceURL: "https://x.test/a.png", SuggestedFilename: "a.png"},
		{SourceURL: "https://x.test/b.png", SuggestedFilename: "b.png"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("references mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractImages_AttributePriority(t *testing.T) {
	doc := mustParse(t, `
		<img src="primary.png" data-src="lazy.png">
		<img src="" data-src="fallback.png">
		<img src="   " data-src="blank.png">
		<img alt="no source">`)

	got := sources(NewImageExtractor().Collect(doc, "https://x.test/", NoLimit))
	want := []string{
		"https://x.test/primary.png",
		"https://x.test/fallback.png",
		"https://x.test/blank.png",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractImages_CustomAttrs(t *testing.T) {
	doc := mustParse(t, `<img data-lazy="l.png" src="s.png"><img data-original="o.png">`)

	got := sources(NewImageExtractor("data-lazy", "data-original", "src").Collect(doc, "https://x.test/", NoLimit))
	want := []string{"https://x.test/l.png", "https://x.test/o.png"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractImages_Resolution(t *testing.T) {
	tests := []struct {
		name string
		base string
		src  string
		want string
	}{
		{"relative path", "https://x.test/p/", "a/b.jpg", "https://x.test/p/a/b.jpg"},
		{"relative to page", "https://x.test/p/page.html", "b.jpg", "https://x.test/p/b.jpg"},
		{"root relative", "https://x.test/p/", "/img/c.jpg", "https://x.test/img/c.jpg"},
		{"parent", "https://x.test/p/q/", "../d.jpg", "https://x.test/p/d.jpg"},
		{"protocol relative", "https://x.test/", "//cdn.test/e.jpg", "https://cdn.test/e.jpg"},
		{"absolute unchanged", "https://x.test/p/", "http://other.test/f.jpg?w=100", "http://other.test/f.jpg?w=100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustParse(t, `<img src="`+tt.src+`">`)
			got := sources(NewImageExtractor().Collect(doc, tt.base, NoLimit))
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("got %v, want [%s]", got, tt.want)
			}
		})
	}
}

func TestExtractImages_SkipsNonHTTP(t *testing.T) {
	doc := mustParse(t, `
		<img src="data:image/png;base64,iVBORw0KGgo=">
		<img src="javascript:void(0)">
		<img src="ok.png">`)

	got := sources(NewImageExtractor().Collect(doc, "https://x.test/", 1))
	if diff := cmp.Diff([]string{"https://x.test/ok.png"}, got); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractImages_Noscript(t *testing.T) {
	doc := mustParse(t, `<img data-src="lazy.jpg"><noscript><img src="real.jpg"></noscript>`)

	got := NewImageExtractor().Collect(doc, "https://x.test/", NoLimit)
	want := []models.ImageReference{
		{SourceURL: "https://x.test/lazy.jpg", SuggestedFilename: "lazy.jpg"},
		{SourceURL: "https://x.test/real.jpg", SuggestedFilename: "real.jpg"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("references mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractImages_Limit(t *testing.T) {
	doc := mustParse(t, `
		<img alt="skip me">
		<img src="1.png">
		<img data-src="2.png">
		<img>
		<img src="3.png">
		<img src="4.png">`)
	all := []string{
		"https://x.test/1.png",
		"https://x.test/2.png",
		"https://x.test/3.png",
		"https://x.test/4.png",
	}

	x := NewImageExtractor()
	for k := 0; k <= 6; k++ {
		got := sources(x.Collect(doc, "https://x.test/", k))
		want := all[:min(k, len(all))]
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("limit %d mismatch (-want +got):\n%s", k, diff)
		}
	}

	if got := x.Collect(doc, "https://x.test/", NoLimit); len(got) != len(all) {
		t.Errorf("NoLimit yielded %d, want %d", len(got), len(all))
	}
}

func TestExtractImages_LimitStopsWalk(t *testing.T) {
	doc := mustParse(t, `<img src="1.png"><img src="2.png"><img src="3.png">`)

	visited := 0
	x := &ImageExtractor{Attrs: []string{"src"}}
	for range x.Extract(doc, "https://x.test/", 2) {
		visited++
	}
	if visited != 2 {
		t.Errorf("visited %d references, want 2", visited)
	}
}

func TestExtractImages_ConsumerBreak(t *testing.T) {
	doc := mustParse(t, `<img src="1.png"><img src="2.png"><img src="3.png">`)

	var got []string
	for ref := range NewImageExtractor().Extract(doc, "https://x.test/", NoLimit) {
		got = append(got, ref.SourceURL)
		if len(got) == 1 {
			break
		}
	}
	if len(got) != 1 || got[0] != "https://x.test/1.png" {
		t.Errorf("got %v, want first reference only", got)
	}
}

func TestExtractImages_Idempotent(t *testing.T) {
	doc := mustParse(t, `<img src="a.png"><div><img data-src="/b"></div><img src="c.gif?x=1">`)

	x := NewImageExtractor()
	first := x.Collect(doc, "https://x.test/shop/", NoLimit)
	second := x.Collect(doc, "https://x.test/shop/", NoLimit)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second pass differs (-first +second):\n%s", diff)
	}
	if len(first) != 3 {
		t.Errorf("got %d references, want 3", len(first))
	}
}

func TestExtractImages_InvalidBase(t *testing.T) {
	doc := mustParse(t, `<img src="a.png">`)
	if got := NewImageExtractor().Collect(doc, "http://[::1", NoLimit); len(got) != 0 {
		t.Errorf("invalid base should yield nothing, got %v", got)
	}
}

func TestSuggestFilename(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://x.test/img/photo.jpg", "photo.jpg"},
		{"https://x.test/img/photo.jpg?w=200#top", "photo.jpg"},
		{"https://x.test/a/b/archive.tar.gz", "archive.tar.gz"},
		{"https://x.test/img/my%20pic.png", "my pic.png"},
	}
	for _, tt := range tests {
		if got := SuggestFilename(tt.url); got != tt.want {
			t.Errorf("SuggestFilename(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestSuggestFilename_Fallback(t *testing.T) {
	urls := []string{
		"https://x.test/",
		"https://x.test",
		"https://x.test/image",
		"https://x.test/render?id=42",
		"https://x.test/render?id=43",
		"https://x.test/dir.d/photo",
		"https://x.test/v1.2/",
		"https://x.test/assets/logo.png/",
	}
	seen := map[string]string{}
	for _, u := range urls {
		got := SuggestFilename(u)
		if got == "" {
			t.Fatalf("SuggestFilename(%q) is empty", u)
		}
		if !strings.HasPrefix(got, "image_") || !strings.HasSuffix(got, DefaultImageExt) {
			t.Errorf("SuggestFilename(%q) = %q, want image_<hash>%s", u, got, DefaultImageExt)
		}
		if prev, dup := seen[got]; dup {
			t.Errorf("%q and %q share fallback name %q", prev, u, got)
		}
		seen[got] = u

		if again := SuggestFilename(u); again != got {
			t.Errorf("SuggestFilename(%q) not deterministic: %q vs %q", u, got, again)
		}
	}
}

func TestSuggestFilename_Sanitizes(t *testing.T) {
	got := SuggestFilename(`https://x.test/a%3Ab%2A.png`)
	if got != "a_b_.png" {
		t.Errorf("got %q, want a_b_.png", got)
	}

	long := "https://x.test/" + strings.Repeat("n", 300) + ".webp"
	got = SuggestFilename(long)
	if len(got) > maxFilenameLen || !strings.HasSuffix(got, ".webp") {
		t.Errorf("long name not capped: len=%d name=%q", len(got), got)
	}
}

func TestResolve(t *testing.T) {
	base, _ := url.Parse("https://x.test/p/")
	if got, ok := Resolve(base, " a.png "); !ok || got != "https://x.test/p/a.png" {
		t.Errorf("Resolve trimmed = %q, %v", got, ok)
	}
	if _, ok := Resolve(base, "mailto:a@b.test"); ok {
		t.Error("mailto should not resolve")
	}
	if _, ok := Resolve(nil, "relative.png"); ok {
		t.Error("relative ref without base should not resolve")
	}
	if got, ok := Resolve(nil, "https://cdn.test/x.png"); !ok || got != "https://cdn.test/x.png" {
		t.Errorf("absolute without base = %q, %v", got, ok)
	}
}
