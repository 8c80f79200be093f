package webtool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"scout/internal/logging"
)

// Pre-compile regex patterns to avoid recompilation overhead
var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t]{2,}`)
)

// truncationNotice is appended when page content exceeds the extraction cap.
const truncationNotice = "... [content truncated for length]"

// Page is the extracted content of a fetched web page.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// PageFetcher downloads pages and converts them to a simplified markdown
// suitable for feeding to a language model.
type PageFetcher struct {
	userAgent    string
	timeout      time.Duration
	maxChars     int
	includeLinks bool
	httpClient   *http.Client
	cache        *ResearchCache
	browser      *BrowserFetcher
}

// FetchOptions configures a PageFetcher.
type FetchOptions struct {
	// UserAgent is sent with every request
	UserAgent string

	// Timeout bounds a single fetch call
	Timeout time.Duration

	// MaxContentChars caps extracted content length
	MaxContentChars int

	// IncludeLinks renders anchors as [text](href) instead of bare text
	IncludeLinks bool

	// Cache holds prior responses; nil disables caching
	Cache *ResearchCache

	// Browser renders pages in headless Chrome when set; nil uses plain HTTP
	Browser *BrowserFetcher
}

// NewPageFetcher creates a fetcher. Zero-value options get sane defaults.
func NewPageFetcher(opts FetchOptions) *PageFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; scout/1.0; +https://github.com/scout)"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxContentChars <= 0 {
		opts.MaxContentChars = 12000
	}
	return &PageFetcher{
		userAgent:    opts.UserAgent,
		timeout:      opts.Timeout,
		maxChars:     opts.MaxContentChars,
		includeLinks: opts.IncludeLinks,
		httpClient:   &http.Client{Timeout: opts.Timeout},
		cache:        opts.Cache,
		browser:      opts.Browser,
	}
}

// Fetch downloads pageURL and returns its title and extracted content.
// Content longer than the configured cap is truncated with a notice.
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	if strings.TrimSpace(pageURL) == "" {
		return nil, fmt.Errorf("url is required")
	}

	logging.FetchDebug("Web fetch: url=%s", pageURL)

	cacheKey := hashKey("fetch", pageURL)
	if f.cache != nil {
		if entry, found := f.cache.Get(cacheKey); found {
			var cached Page
			if err := json.Unmarshal([]byte(entry.Value), &cached); err == nil {
				logging.FetchDebug("Fetch cache hit for %s", pageURL)
				return &cached, nil
			}
			f.cache.Delete(cacheKey)
		}
	}

	start := time.Now()
	page, err := f.fetch(ctx, pageURL)
	logging.Audit().FetchPage(pageURL, time.Since(start), err)
	if err != nil {
		logging.FetchError("Web fetch failed for %s: %v", pageURL, err)
		return nil, err
	}

	if f.cache != nil {
		if data, err := json.Marshal(page); err == nil {
			f.cache.Set(cacheKey, string(data), "fetch")
		}
	}

	logging.Fetch("Web fetch completed: %s (%d chars)", pageURL, len(page.Content))
	return page, nil
}

func (f *PageFetcher) fetch(ctx context.Context, pageURL string) (*Page, error) {
	if f.browser != nil {
		rendered, err := f.browser.FetchHTML(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		return f.extractPage(pageURL, rendered), nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20)) // 2MB limit
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")

	// Plain text and markdown pass through without HTML extraction
	if strings.Contains(contentType, "text/plain") ||
		strings.Contains(contentType, "text/markdown") {
		return &Page{
			URL:     pageURL,
			Content: f.truncate(strings.TrimSpace(string(body))),
		}, nil
	}

	return f.extractPage(pageURL, string(body)), nil
}

func (f *PageFetcher) extractPage(pageURL, htmlContent string) *Page {
	title, content := extractReadable(htmlContent, f.includeLinks)
	return &Page{
		URL:     pageURL,
		Title:   title,
		Content: f.truncate(content),
	}
}

func (f *PageFetcher) truncate(content string) string {
	if len(content) <= f.maxChars {
		return content
	}
	return content[:f.maxChars] + truncationNotice
}

// extractReadable converts HTML to a simplified markdown and pulls out the
// document title. A parse failure degrades to the raw input.
func extractReadable(htmlContent string, includeLinks bool) (title, content string) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", cleanText(htmlContent)
	}

	var sb strings.Builder
	extractText(doc, &sb, includeLinks, 0)

	return findTitle(doc), cleanText(sb.String())
}

// findTitle returns the text of the first <title> element.
func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return getTextContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}

func extractText(n *html.Node, sb *strings.Builder, includeLinks bool, depth int) {
	if depth > 50 {
		return // Prevent excessive recursion
	}

	switch n.Type {
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header", "title":
			return // Skip these elements
		case "h1":
			sb.WriteString("\n\n# ")
		case "h2":
			sb.WriteString("\n\n## ")
		case "h3":
			sb.WriteString("\n\n### ")
		case "h4":
			sb.WriteString("\n\n#### ")
		case "h5":
			sb.WriteString("\n\n##### ")
		case "h6":
			sb.WriteString("\n\n###### ")
		case "p", "div":
			sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
		case "code":
			sb.WriteString("`")
		case "pre":
			sb.WriteString("\n\n```\n")
		case "strong", "b":
			sb.WriteString("**")
		case "em", "i":
			sb.WriteString("*")
		case "a":
			if includeLinks {
				href := getAttrValue(n, "href")
				if href != "" && !strings.HasPrefix(href, "#") {
					sb.WriteString("[")
				}
			}
		case "img":
			alt := getAttrValue(n, "alt")
			if alt != "" {
				sb.WriteString(fmt.Sprintf("[Image: %s]", alt))
			}
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb, includeLinks, depth+1)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n")
		case "code":
			sb.WriteString("`")
		case "pre":
			sb.WriteString("\n```\n\n")
		case "strong", "b":
			sb.WriteString("**")
		case "em", "i":
			sb.WriteString("*")
		case "a":
			if includeLinks {
				href := getAttrValue(n, "href")
				if href != "" && !strings.HasPrefix(href, "#") {
					sb.WriteString(fmt.Sprintf("](%s)", href))
				}
			}
		}
	}
}

// cleanText removes excessive whitespace from extracted content.
func cleanText(s string) string {
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	s = multiSpacePattern.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")

	return strings.TrimSpace(s)
}
