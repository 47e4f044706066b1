package engine

import (
	"context"
	"io"
)

// Fetcher retrieves a page into memory.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// Streamer opens a response body for incremental reading.
// The caller must close StreamResult.Body.
type Streamer interface {
	Stream(ctx context.Context, url string) (*StreamResult, error)
}

// FetchResult is the output of a successful page fetch.
type FetchResult struct {
	Body        []byte
	Title       string
	StatusCode  int
	FinalURL    string
	ContentType string
}

// StreamResult is an open, successful (2xx) response.
type StreamResult struct {
	Body          io.ReadCloser
	StatusCode    int
	FinalURL      string
	ContentType   string
	ContentLength int64 // -1 when unknown
}
