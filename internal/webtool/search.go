package webtool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"scout/internal/logging"
)

// SearchResult represents a single search result.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearchTool queries the DuckDuckGo HTML interface. No API key required.
type WebSearchTool struct {
	endpoint   string
	userAgent  string
	maxResults int
	httpClient *http.Client
	cache      *ResearchCache
}

// SearchOptions configures a WebSearchTool.
type SearchOptions struct {
	// Endpoint is the search URL base, e.g. https://html.duckduckgo.com/html
	Endpoint string

	// UserAgent is sent with every request
	UserAgent string

	// MaxResults caps results per query when the caller passes 0
	MaxResults int

	// Timeout bounds a single search call
	Timeout time.Duration

	// Cache holds prior responses; nil disables caching
	Cache *ResearchCache
}

// NewWebSearchTool creates a search tool. Zero-value options fall back to
// the DuckDuckGo HTML endpoint with browser-like headers.
func NewWebSearchTool(opts SearchOptions) *WebSearchTool {
	if opts.Endpoint == "" {
		opts.Endpoint = "https://html.duckduckgo.com/html"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &WebSearchTool{
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		userAgent:  opts.UserAgent,
		maxResults: opts.MaxResults,
		httpClient: &http.Client{Timeout: opts.Timeout},
		cache:      opts.Cache,
	}
}

// Search runs a query and returns up to maxResults results. A maxResults of
// 0 uses the tool default. Results are served from cache when available.
func (t *WebSearchTool) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	if maxResults <= 0 {
		maxResults = t.maxResults
	}
	if maxResults > 30 {
		maxResults = 30 // Cap at 30 results
	}

	logging.SearchDebug("Web search: query=%q, max_results=%d", query, maxResults)

	cacheKey := hashKey("search", query, strconv.Itoa(maxResults))
	if t.cache != nil {
		if entry, found := t.cache.Get(cacheKey); found {
			var cached []SearchResult
			if err := json.Unmarshal([]byte(entry.Value), &cached); err == nil {
				logging.SearchDebug("Search cache hit for %q (%d results)", query, len(cached))
				return cached, nil
			}
			t.cache.Delete(cacheKey)
		}
	}

	start := time.Now()
	results, err := t.search(ctx, query, maxResults)
	logging.Audit().SearchQuery(query, len(results), time.Since(start), err)
	if err != nil {
		logging.SearchError("Web search failed for %q: %v", query, err)
		return nil, err
	}

	if len(results) == 0 {
		logging.Search("Web search returned no results for: %s", query)
		return results, nil
	}

	if t.cache != nil {
		if data, err := json.Marshal(results); err == nil {
			t.cache.Set(cacheKey, string(data), "search")
		}
	}

	logging.Search("Web search completed: %d results for %q", len(results), query)
	return results, nil
}

func (t *WebSearchTool) search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	searchURL := fmt.Sprintf("%s/?q=%s", t.endpoint, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to look like a browser
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return parseSearchResults(string(body), maxResults)
}

// parseSearchResults extracts search results from DuckDuckGo HTML.
func parseSearchResults(htmlContent string, maxResults int) ([]SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []SearchResult

	// DuckDuckGo HTML uses class="result results_links ..." for each hit
	var findResults func(*html.Node)
	findResults = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}

		if n.Type == html.ElementNode && n.Data == "div" {
			class := getAttrValue(n, "class")
			if strings.Contains(class, "result") && strings.Contains(class, "results_links") {
				result := extractResult(n)
				if result.URL != "" && result.Title != "" {
					results = append(results, result)
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findResults(c)
		}
	}

	findResults(doc)
	return results, nil
}

// extractResult extracts a single search result from a result div.
func extractResult(n *html.Node) SearchResult {
	var result SearchResult

	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			class := getAttrValue(n, "class")
			if strings.Contains(class, "result__a") {
				result.URL = getAttrValue(n, "href")
				result.Title = getTextContent(n)
			} else if strings.Contains(class, "result__snippet") {
				result.Snippet = getTextContent(n)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}

	extract(n)
	result.URL = unwrapRedirect(result.URL)
	return result
}

// unwrapRedirect resolves DuckDuckGo's /l/?uddg= redirect wrapper to the
// destination URL.
func unwrapRedirect(raw string) string {
	const prefix = "//duckduckgo.com/l/?uddg="
	if !strings.HasPrefix(raw, prefix) {
		return raw
	}
	decoded, err := url.QueryUnescape(strings.TrimPrefix(raw, prefix))
	if err != nil {
		return raw
	}
	if idx := strings.Index(decoded, "&"); idx > 0 {
		decoded = decoded[:idx]
	}
	return decoded
}

// getAttrValue returns the value of an attribute.
func getAttrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// getTextContent returns all text content within a node.
func getTextContent(n *html.Node) string {
	var sb strings.Builder
	var getText func(*html.Node)
	getText = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			getText(c)
		}
	}
	getText(n)
	return strings.TrimSpace(sb.String())
}
