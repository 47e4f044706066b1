package models

// Extraction modes.
const (
	ModeImages   = "images"
	ModeProducts = "products"
	ModeBoth     = "both"
)

// ExtractRequest is the payload for POST /api/v1/images and POST /api/v1/products.
type ExtractRequest struct {
	// URL is the target page. Required.
	URL string `json:"url" binding:"required,url"`

	// MaxImages bounds the number of image references returned.
	// Omitted means no limit.
	MaxImages *int `json:"max_images,omitempty" binding:"omitempty,min=0"`

	// Timeout is the page fetch timeout in seconds.
	// Default: 30. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// ProductSelector replaces the class-substring candidate heuristic
	// with a CSS selector.
	ProductSelector string `json:"product_selector,omitempty"`

	// MaxAge enables the response cache: a cached response younger than
	// MaxAge milliseconds is returned without fetching. 0 disables caching.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *ExtractRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 30
	}
}

// Limit returns the image limit, or -1 when none was requested.
func (r *ExtractRequest) Limit() int {
	if r.MaxImages == nil {
		return -1
	}
	return *r.MaxImages
}

// HarvestRequest is the payload for POST /api/v1/harvest.
type HarvestRequest struct {
	ExtractRequest

	// Mode selects the pipelines to run.
	// Allowed: "images" (default), "products", "both".
	Mode string `json:"mode,omitempty" binding:"omitempty,oneof=images products both"`

	// WebhookURL receives a harvest.completed event when the job finishes.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *HarvestRequest) Defaults() {
	r.ExtractRequest.Defaults()
	if r.Mode == "" {
		r.Mode = ModeImages
	}
}
