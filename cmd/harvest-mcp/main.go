package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("HARVEST_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("HARVEST_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "HARVEST_API_KEY is required")
		os.Exit(1)
	}

	if err := server.ServeStdio(newServer(newAPIClient(apiURL, apiKey))); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// newServer registers the harvest tools on a fresh MCP server.
func newServer(c *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"harvest",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("extract_images",
		mcp.WithDescription("List the images a web page references, as absolute URLs with suggested filenames. Nothing is downloaded."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page"),
		),
		mcp.WithNumber("max_images",
			mcp.Description("Maximum number of images to return (default: all)"),
		),
	), c.handleExtractImages)

	s.AddTool(mcp.NewTool("extract_products",
		mcp.WithDescription("Infer product records (title, price, image) from a web page's markup. Fields the page does not expose are omitted."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page"),
		),
		mcp.WithString("product_selector",
			mcp.Description("CSS selector for product containers. Default: article/div elements whose class mentions 'product'"),
		),
	), c.handleExtractProducts)

	s.AddTool(mcp.NewTool("harvest_page",
		mcp.WithDescription("Download a page's images to the server's output directory and/or extract its products. Waits for the job to finish."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page"),
		),
		mcp.WithString("mode",
			mcp.Description("What to harvest: 'images' (default), 'products' or 'both'"),
			mcp.Enum("images", "products", "both"),
		),
		mcp.WithNumber("max_images",
			mcp.Description("Maximum number of images to download (default: all)"),
		),
	), c.handleHarvestPage)

	return s
}

func newAPIClient(apiURL, apiKey string) *apiClient {
	return &apiClient{
		apiURL:       apiURL,
		apiKey:       apiKey,
		http:         &http.Client{Timeout: 600 * time.Second},
		pollInterval: 2 * time.Second,
	}
}
