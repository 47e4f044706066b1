package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Fetch     FetchConfig
	Extract   ExtractConfig
	Download  DownloadConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server started by `harvest serve`.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// MaxJobs bounds concurrently running harvest jobs.
	MaxJobs int // default: 16
}

// FetchConfig controls the HTTP engine used for pages and images.
type FetchConfig struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration // default: 30s

	// UserAgent is sent with every request.
	UserAgent string

	// MaxPageBytes caps the page body read into memory.
	MaxPageBytes int64 // default: 10 MiB

	// RequestsPerSecond throttles outbound requests. 0 disables throttling.
	RequestsPerSecond float64 // default: 0

	// ChromeTLS enables the Chrome TLS fingerprint for https requests.
	ChromeTLS bool // default: true
}

// ExtractConfig controls the extraction heuristics.
type ExtractConfig struct {
	// ImageAttrs is the ordered attribute fallback list for image URLs.
	ImageAttrs []string // default: ["src", "data-src"]

	// ProductSelector replaces the class-substring candidate heuristic
	// with a CSS selector when non-empty.
	ProductSelector string

	// ResolveProductImages resolves product image references against the page URL.
	ResolveProductImages bool // default: true
}

// DownloadConfig controls image persistence.
type DownloadConfig struct {
	// OutputDir is where images are written.
	OutputDir string // default: "downloads"

	// Workers bounds concurrent image downloads.
	Workers int // default: 4

	// Collision is the filename collision policy: suffix, overwrite, skip, fail.
	Collision string // default: "suffix"

	// MaxImageBytes caps a single image. 0 means unlimited.
	MaxImageBytes int64 // default: 0
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// CacheConfig controls the extraction response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 1000
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// DefaultUserAgent is a browser-like client identifier.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    envOr("HARVEST_HOST", "0.0.0.0"),
			Port:    envIntOr("HARVEST_PORT", 8080),
			Mode:    envOr("HARVEST_MODE", "release"),
			MaxJobs: envIntOr("HARVEST_MAX_JOBS", 16),
		},
		Fetch: FetchConfig{
			Timeout:           envDurationOr("HARVEST_TIMEOUT", 30*time.Second),
			UserAgent:         envOr("HARVEST_USER_AGENT", DefaultUserAgent),
			MaxPageBytes:      int64(envIntOr("HARVEST_MAX_PAGE_BYTES", 10<<20)),
			RequestsPerSecond: envFloatOr("HARVEST_FETCH_RPS", 0),
			ChromeTLS:         envBoolOr("HARVEST_CHROME_TLS", true),
		},
		Extract: ExtractConfig{
			ImageAttrs:           envSliceOr("HARVEST_IMAGE_ATTRS", []string{"src", "data-src"}),
			ProductSelector:      os.Getenv("HARVEST_PRODUCT_SELECTOR"),
			ResolveProductImages: envBoolOr("HARVEST_RESOLVE_PRODUCT_IMAGES", true),
		},
		Download: DownloadConfig{
			OutputDir:     envOr("HARVEST_OUTPUT", "downloads"),
			Workers:       envIntOr("HARVEST_WORKERS", 4),
			Collision:     envOr("HARVEST_COLLISION", "suffix"),
			MaxImageBytes: int64(envIntOr("HARVEST_MAX_IMAGE_BYTES", 0)),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("HARVEST_AUTH_ENABLED", true),
			APIKeys: envSliceOr("HARVEST_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("HARVEST_RATE_RPS", 5.0),
			Burst:             envIntOr("HARVEST_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("HARVEST_CACHE_MAX_ENTRIES", 1000),
		},
		Log: LogConfig{
			Level:  envOr("HARVEST_LOG_LEVEL", "info"),
			Format: envOr("HARVEST_LOG_FORMAT", "text"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
