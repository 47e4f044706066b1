package models

// ExtractResponse is the response for POST /api/v1/images and POST /api/v1/products.
type ExtractResponse struct {
	// Success indicates whether the page could be fetched and parsed.
	Success bool `json:"success"`

	// URL is the page that was processed.
	URL string `json:"url"`

	// StatusCode is the HTTP status code of the page fetch.
	StatusCode int `json:"status_code,omitempty"`

	// FinalURL is the URL after following redirects. Relative references
	// are resolved against it.
	FinalURL string `json:"final_url,omitempty"`

	// Title is the page <title>.
	Title string `json:"title,omitempty"`

	// Images lists resolved image references (images endpoint).
	Images []ImageReference `json:"images,omitempty"`

	// Products lists extracted product records (products endpoint).
	Products []Product `json:"products,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// FetchMs is the time spent fetching the page.
	FetchMs int64 `json:"fetch_ms"`

	// ExtractMs is the time spent parsing and running the heuristics.
	ExtractMs int64 `json:"extract_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"` // "healthy" or "degraded"
	Uptime     string `json:"uptime"`
	ActiveJobs int    `json:"active_jobs"`
	Version    string `json:"version"`
}
