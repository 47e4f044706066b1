package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/harvest"
	"github.com/use-agent/harvest/models"
)

// fillFunc runs one pipeline over a loaded page and stores its output.
type fillFunc func(page *harvest.Page, req *models.ExtractRequest, resp *models.ExtractResponse) error

// Images returns a handler for POST /api/v1/images. It lists resolved
// image references without downloading them.
func Images(h *harvest.Harvester, cc *cache.Cache) gin.HandlerFunc {
	return extractHandler("images", h, cc, func(page *harvest.Page, req *models.ExtractRequest, resp *models.ExtractResponse) error {
		resp.Images = h.Images(page, req.Limit())
		return nil
	})
}

// Products returns a handler for POST /api/v1/products.
func Products(h *harvest.Harvester, cc *cache.Cache) gin.HandlerFunc {
	return extractHandler("products", h, cc, func(page *harvest.Page, req *models.ExtractRequest, resp *models.ExtractResponse) error {
		products, err := h.Products(page, req.ProductSelector)
		if err != nil {
			return err
		}
		resp.Products = products
		return nil
	})
}

// extractHandler is the shared flow of the synchronous endpoints:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup when max_age is set.
//  3. Fetch and parse the page           (records fetch_ms)
//  4. Run the pipeline                   (records extract_ms)
//  5. Cache store, respond.
func extractHandler(kind string, h *harvest.Harvester, cc *cache.Cache, fill fillFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		req.Defaults()

		cacheKey := cache.Key(kind, req.URL, req.Limit(), req.ProductSelector)
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				resp := *cached
				resp.CacheStatus = "hit"
				resp.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
				c.JSON(http.StatusOK, resp)
				return
			}
		}

		page, err := h.Load(c.Request.Context(), req.URL, time.Duration(req.Timeout)*time.Second)
		if err != nil {
			respondError(c, err, req.URL, models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()})
			return
		}

		resp := &models.ExtractResponse{
			Success:    true,
			URL:        req.URL,
			StatusCode: page.StatusCode,
			FinalURL:   page.FinalURL,
			Title:      page.Title,
		}
		extractStart := time.Now()
		if err := fill(page, &req, resp); err != nil {
			respondError(c, err, req.URL, models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
				FetchMs: page.FetchMs,
			})
			return
		}
		resp.Timing = models.TimingInfo{
			TotalMs:   time.Since(totalStart).Milliseconds(),
			FetchMs:   page.FetchMs,
			ExtractMs: time.Since(extractStart).Milliseconds(),
		}

		if cc != nil && req.MaxAge > 0 {
			cc.Set(cacheKey, resp)
			out := *resp
			out.CacheStatus = "miss"
			c.JSON(http.StatusOK, out)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
