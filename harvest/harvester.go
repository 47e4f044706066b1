// Package harvest fetches a page once and runs the image and product
// pipelines over the parsed document.
package harvest

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/metrics"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/persist"
	"golang.org/x/sync/errgroup"
)

// Client is the network side the harvester needs: whole pages and
// streamed images.
type Client interface {
	engine.Fetcher
	engine.Streamer
}

// Harvester wires the HTTP engine, both extraction pipelines and the saver.
// It is safe for concurrent use.
type Harvester struct {
	client     Client
	images     *extract.ImageExtractor
	products   *extract.ProductExtractor
	saver      *persist.Saver
	extractCfg config.ExtractConfig
	workers    int
	outputDir  string
}

// New builds a Harvester from the application configuration.
func New(client Client, cfg *config.Config) (*Harvester, error) {
	products, err := extract.NewProductExtractor(cfg.Extract)
	if err != nil {
		return nil, err
	}
	saver, err := persist.NewSaver(client, cfg.Download)
	if err != nil {
		return nil, err
	}
	workers := cfg.Download.Workers
	if workers < 1 {
		workers = 1
	}
	return &Harvester{
		client:     client,
		images:     extract.NewImageExtractor(cfg.Extract.ImageAttrs...),
		products:   products,
		saver:      saver,
		extractCfg: cfg.Extract,
		workers:    workers,
		outputDir:  cfg.Download.OutputDir,
	}, nil
}

// OutputDir returns the configured output directory.
func (h *Harvester) OutputDir() string { return h.outputDir }

// Page is a fetched and parsed document.
type Page struct {
	URL        string
	FinalURL   string
	Title      string
	StatusCode int
	Doc        *goquery.Document
	FetchMs    int64
}

// base returns the URL relative references resolve against.
func (p *Page) base() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// Load fetches targetURL and parses it. A zero timeout leaves the engine's
// own timeout in charge.
func (h *Harvester) Load(ctx context.Context, targetURL string, timeout time.Duration) (*Page, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	res, err := h.client.Fetch(ctx, targetURL)
	if err != nil {
		return nil, models.AsHarvestError(err)
	}
	fetchMs := time.Since(started).Milliseconds()

	doc, err := extract.ParseBytes(res.Body)
	if err != nil {
		return nil, models.AsHarvestError(err)
	}
	slog.Debug("page loaded", "url", targetURL, "final_url", res.FinalURL, "bytes", len(res.Body))

	return &Page{
		URL:        targetURL,
		FinalURL:   res.FinalURL,
		Title:      res.Title,
		StatusCode: res.StatusCode,
		Doc:        doc,
		FetchMs:    fetchMs,
	}, nil
}

// Images returns up to limit image references from page. A negative limit
// means no limit.
func (h *Harvester) Images(page *Page, limit int) []models.ImageReference {
	refs := h.images.Collect(page.Doc, page.base(), limit)
	metrics.ImagesExtracted.Add(float64(len(refs)))
	return refs
}

// Products returns the product records of page. A non-empty selector
// overrides the configured candidate detection for this call.
func (h *Harvester) Products(page *Page, selector string) ([]models.Product, error) {
	x := h.products
	if selector != "" {
		cfg := h.extractCfg
		cfg.ProductSelector = selector
		var err error
		if x, err = extract.NewProductExtractor(cfg); err != nil {
			return nil, err
		}
	}

	var base *url.URL
	if h.extractCfg.ResolveProductImages {
		if u, err := url.Parse(page.base()); err == nil {
			base = u
		}
	}
	products := x.ExtractWithBase(page.Doc, base)
	metrics.ProductsExtracted.Add(float64(len(products)))
	return products, nil
}

// Download saves refs into dir with at most Workers concurrent downloads.
// Results are in reference order. An empty dir means the configured
// output directory.
func (h *Harvester) Download(ctx context.Context, refs []models.ImageReference, dir string) []models.DownloadResult {
	if dir == "" {
		dir = h.outputDir
	}
	results := make([]models.DownloadResult, len(refs))

	var g errgroup.Group
	g.SetLimit(h.workers)
	for i, ref := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = models.Failure(ref.SourceURL,
					models.NewHarvestError(models.ErrCodeFetch, "download cancelled", err))
				return nil
			}
			results[i] = h.saver.Save(ctx, ref, dir)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Options selects what Run does.
type Options struct {
	URL             string
	Mode            string // images, products or both; empty means images
	Limit           int    // image limit; negative means none
	Dir             string // output directory; empty means configured, released after the run
	ProductSelector string
	Timeout         time.Duration
}

// Result is the outcome of one Run.
type Result struct {
	URL        string
	FinalURL   string
	Title      string
	StatusCode int
	Images     []models.ImageReference
	Downloads  []models.DownloadResult
	Products   []models.Product
	Timing     models.TimingInfo
}

// Downloaded counts successful downloads, skips included.
func (r *Result) Downloaded() int {
	n := 0
	for _, d := range r.Downloads {
		if d.OK() {
			n++
		}
	}
	return n
}

// Failed counts failed downloads.
func (r *Result) Failed() int {
	return len(r.Downloads) - r.Downloaded()
}

// Run fetches the page once and runs the pipelines opts.Mode selects.
// Images are downloaded. An unreachable page yields an empty result and
// the fetch error; per-image failures are reported in Downloads only.
func (h *Harvester) Run(ctx context.Context, opts Options) (*Result, error) {
	started := time.Now()
	res := &Result{URL: opts.URL}

	page, err := h.Load(ctx, opts.URL, opts.Timeout)
	if err != nil {
		res.Timing.TotalMs = time.Since(started).Milliseconds()
		return res, err
	}
	res.FinalURL = page.FinalURL
	res.Title = page.Title
	res.StatusCode = page.StatusCode
	res.Timing.FetchMs = page.FetchMs

	mode := opts.Mode
	if mode == "" {
		mode = models.ModeImages
	}

	extractStart := time.Now()
	if mode == models.ModeProducts || mode == models.ModeBoth {
		products, err := h.Products(page, opts.ProductSelector)
		if err != nil {
			res.Timing.TotalMs = time.Since(started).Milliseconds()
			return res, err
		}
		res.Products = products
	}
	if mode == models.ModeImages || mode == models.ModeBoth {
		res.Images = h.Images(page, opts.Limit)
	}
	res.Timing.ExtractMs = time.Since(extractStart).Milliseconds()

	if len(res.Images) > 0 {
		res.Downloads = h.Download(ctx, res.Images, opts.Dir)
		if opts.Dir != "" && opts.Dir != h.outputDir {
			h.saver.Forget(opts.Dir)
		}
	}
	res.Timing.TotalMs = time.Since(started).Milliseconds()

	slog.Info("harvest complete",
		"url", opts.URL,
		"mode", mode,
		"images", len(res.Images),
		"downloaded", res.Downloaded(),
		"failed", res.Failed(),
		"products", len(res.Products),
		"total_ms", res.Timing.TotalMs,
	)
	return res, nil
}
