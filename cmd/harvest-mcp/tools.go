package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/use-agent/harvest/models"
)

// apiClient talks to a running harvest API.
type apiClient struct {
	apiURL       string
	apiKey       string
	http         *http.Client
	pollInterval time.Duration
}

// post sends a POST request to the harvest API and decodes the response into out.
func (c *apiClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) error {
	req.Header.Set("X-API-Key", c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	return nil
}

// pollJob polls a harvest job until it leaves the processing state or ctx ends.
func (c *apiClient) pollJob(ctx context.Context, id string) (*models.HarvestStatusResponse, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var status models.HarvestStatusResponse
			if err := c.get(ctx, "/api/v1/harvest/"+id, &status); err != nil {
				return nil, err
			}
			if status.Error != nil && status.ID == "" {
				return nil, fmt.Errorf("[%s] %s", status.Error.Code, status.Error.Message)
			}
			if status.Status != models.JobProcessing {
				return &status, nil
			}
		}
	}
}

// extractPayload builds the request body shared by the synchronous tools.
func extractPayload(request mcp.CallToolRequest) (map[string]any, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return nil, fmt.Errorf("url is required")
	}
	payload := map[string]any{"url": url}
	if n, ok := request.GetArguments()["max_images"]; ok {
		payload["max_images"] = n
	}
	if sel := request.GetString("product_selector", ""); sel != "" {
		payload["product_selector"] = sel
	}
	return payload, nil
}

func apiError(resp *models.ExtractResponse, fallback string) *mcp.CallToolResult {
	if resp.Error != nil {
		return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message))
	}
	return mcp.NewToolResultError(fallback)
}

func (c *apiClient) handleExtractImages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := extractPayload(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var resp models.ExtractResponse
	if err := c.post(ctx, "/api/v1/images", payload, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !resp.Success {
		return apiError(&resp, "image extraction failed"), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\nSource: %s\n\nFound %d images:\n", resp.Title, resp.URL, len(resp.Images))
	for _, img := range resp.Images {
		fmt.Fprintf(&sb, "%s  (%s)\n", img.SourceURL, img.SuggestedFilename)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (c *apiClient) handleExtractProducts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := extractPayload(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var resp models.ExtractResponse
	if err := c.post(ctx, "/api/v1/products", payload, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !resp.Success {
		return apiError(&resp, "product extraction failed"), nil
	}

	data, err := json.MarshalIndent(resp.Products, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("format products: %v", err)), nil
	}
	result := fmt.Sprintf("Title: %s\nSource: %s\n\nFound %d products:\n%s", resp.Title, resp.URL, len(resp.Products), data)
	return mcp.NewToolResultText(result), nil
}

func (c *apiClient) handleHarvestPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := extractPayload(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if mode := request.GetString("mode", ""); mode != "" {
		payload["mode"] = mode
	}

	var accepted struct {
		models.HarvestResponse
		Error *models.ErrorDetail `json:"error"`
	}
	if err := c.post(ctx, "/api/v1/harvest", payload, &accepted); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if accepted.ID == "" {
		if accepted.Error != nil {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", accepted.Error.Code, accepted.Error.Message)), nil
		}
		return mcp.NewToolResultError("harvest job creation failed"), nil
	}

	status, err := c.pollJob(ctx, accepted.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("polling harvest job failed: %v", err)), nil
	}
	if status.Status == models.JobFailed && status.Error != nil {
		return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", status.Error.Code, status.Error.Message)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Harvest %s: %s (%d downloaded, %d failed)\n", status.ID, status.Status, status.Downloaded, status.Failed)
	for _, d := range status.Downloads {
		if d.Error != nil {
			fmt.Fprintf(&sb, "FAILED %s: %s\n", d.SourceURL, d.Error.Message)
			continue
		}
		fmt.Fprintf(&sb, "%s -> %s\n", d.SourceURL, d.Path)
	}
	if len(status.Products) > 0 {
		data, _ := json.MarshalIndent(status.Products, "", "  ")
		fmt.Fprintf(&sb, "\nProducts:\n%s\n", data)
	}
	return mcp.NewToolResultText(sb.String()), nil
}
