package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/metrics"
	"github.com/use-agent/harvest/models"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// HTTPEngine fetches pages and streams images over plain net/http with
// browser-like headers. It is safe for concurrent use and is meant to be
// built once per process and shared read-only.
type HTTPEngine struct {
	client       *http.Client
	userAgent    string
	maxPageBytes int64
	limiter      *rate.Limiter
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var (
	chromeH1Spec   tls.ClientHelloSpec
	chromeSpecOkay bool
)

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
	chromeSpecOkay = true
}

// NewHTTPEngine creates an HTTPEngine from the fetch configuration.
func NewHTTPEngine(cfg config.FetchConfig) *HTTPEngine {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   false,
	}
	if cfg.ChromeTLS && chromeSpecOkay {
		transport.DialTLSContext = dialTLSChrome
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	maxPage := cfg.MaxPageBytes
	if maxPage <= 0 {
		maxPage = 10 << 20
	}

	e := &HTTPEngine{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				if !isHTTPScheme(req.URL) {
					return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
				}
				return nil
			},
		},
		userAgent:    userAgent,
		maxPageBytes: maxPage,
	}
	if cfg.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return e
}

// dialTLSChrome establishes a TLS connection using the Chrome fingerprint.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// Fetch retrieves a page and reads at most MaxPageBytes of its body.
// Non-2xx responses are failures.
func (e *HTTPEngine) Fetch(ctx context.Context, targetURL string) (*FetchResult, error) {
	started := time.Now()
	resp, err := e.do(ctx, targetURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		metrics.ObserveFetch("page", outcomeOf(err), started)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxPageBytes))
	if err != nil {
		metrics.ObserveFetch("page", outcomeOf(err), started)
		return nil, classify(targetURL, "read page body", err)
	}
	metrics.ObserveFetch("page", "ok", started)

	return &FetchResult{
		Body:        body,
		Title:       extractTitle(body),
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// Stream issues a GET and returns the open body without buffering it.
// The client timeout still bounds the whole exchange, body reads included.
func (e *HTTPEngine) Stream(ctx context.Context, targetURL string) (*StreamResult, error) {
	started := time.Now()
	resp, err := e.do(ctx, targetURL, "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	if err != nil {
		metrics.ObserveFetch("image", outcomeOf(err), started)
		return nil, err
	}
	metrics.ObserveFetch("image", "ok", started)

	return &StreamResult{
		Body:          resp.Body,
		StatusCode:    resp.StatusCode,
		FinalURL:      resp.Request.URL.String(),
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// do sends the request and rejects anything but a 2xx response.
// On success the caller owns resp.Body.
func (e *HTTPEngine) do(ctx context.Context, targetURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeFetch, "invalid url "+targetURL, err)
	}
	if !isHTTPScheme(req.URL) {
		return nil, models.NewHarvestError(models.ErrCodeFetch,
			fmt.Sprintf("unsupported URL scheme %q", req.URL.Scheme), nil)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, classify(targetURL, "rate limiter", err)
		}
	}

	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classify(targetURL, "request failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, models.NewHarvestError(models.ErrCodeFetch,
			fmt.Sprintf("HTTP %d for %s", resp.StatusCode, targetURL), nil)
	}

	slog.Debug("fetched", "url", targetURL, "status", resp.StatusCode)
	return resp, nil
}

// classify wraps a transport error, separating timeouts from other failures.
func classify(targetURL, msg string, err error) *models.HarvestError {
	if isTimeout(err) {
		return models.NewHarvestError(models.ErrCodeTimeout, msg+": timeout fetching "+targetURL, err)
	}
	return models.NewHarvestError(models.ErrCodeFetch, msg+": "+targetURL, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func outcomeOf(err error) string {
	if models.ErrorCode(err) == models.ErrCodeTimeout || isTimeout(err) {
		return "timeout"
	}
	return "error"
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// extractTitle uses the Go HTML tokenizer to find the first <title> element.
func extractTitle(body []byte) string {
	tokenizer := html.NewTokenizer(strings.NewReader(string(body)))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
