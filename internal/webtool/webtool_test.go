package webtool

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const searchFixture = `
<html><body>
<div class="results">
  <div class="result results_links results_links_deep web-result">
    <div class="links_main links_deep result__body">
      <h2 class="result__title">
        <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc123">Go Documentation</a>
      </h2>
      <a class="result__snippet" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F">Learn how to write Go.</a>
    </div>
  </div>
  <div class="result results_links results_links_deep web-result">
    <div class="links_main links_deep result__body">
      <h2 class="result__title">
        <a rel="nofollow" class="result__a" href="https://example.com/tutorial">Example Tutorial</a>
      </h2>
      <a class="result__snippet" href="https://example.com/tutorial">Go <b>tutorials</b> here.</a>
    </div>
  </div>
</div>
</body></html>`

// =============================================================================
// SEARCH TESTS
// =============================================================================

func TestParseSearchResults(t *testing.T) {
	t.Parallel()

	results, err := parseSearchResults(searchFixture, 10)
	if err != nil {
		t.Fatalf("parseSearchResults failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	if results[0].Title != "Go Documentation" {
		t.Errorf("Title mismatch: got %q", results[0].Title)
	}
	if results[0].URL != "https://go.dev/doc/" {
		t.Errorf("redirect not unwrapped: got %q", results[0].URL)
	}
	if results[0].Snippet != "Learn how to write Go." {
		t.Errorf("Snippet mismatch: got %q", results[0].Snippet)
	}

	if results[1].URL != "https://example.com/tutorial" {
		t.Errorf("URL mismatch: got %q", results[1].URL)
	}
	if results[1].Snippet != "Go tutorials here." {
		t.Errorf("nested markup not flattened: got %q", results[1].Snippet)
	}
}

func TestParseSearchResults_MaxResults(t *testing.T) {
	t.Parallel()

	results, err := parseSearchResults(searchFixture, 1)
	if err != nil {
		t.Fatalf("parseSearchResults failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result with cap, got %d", len(results))
	}
}

func TestUnwrapRedirect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain url untouched",
			in:   "https://example.com/page",
			want: "https://example.com/page",
		},
		{
			name: "uddg unwrapped",
			in:   "//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F",
			want: "https://go.dev/doc/",
		},
		{
			name: "trailing params stripped",
			in:   "//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&rut=abc123",
			want: "https://go.dev/doc/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unwrapRedirect(tt.in); got != tt.want {
				t.Errorf("unwrapRedirect(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWebSearchTool_Search(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "golang testing" {
			t.Errorf("query mismatch: got %q", got)
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, searchFixture)
	}))
	defer ts.Close()

	tool := NewWebSearchTool(SearchOptions{Endpoint: ts.URL})

	results, err := tool.Search(context.Background(), "golang testing", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

func TestWebSearchTool_Search_EmptyQuery(t *testing.T) {
	t.Parallel()

	tool := NewWebSearchTool(SearchOptions{})
	_, err := tool.Search(context.Background(), "   ", 5)
	if err == nil {
		t.Error("expected error for empty query")
	}
}

func TestWebSearchTool_Search_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	tool := NewWebSearchTool(SearchOptions{Endpoint: ts.URL})
	_, err := tool.Search(context.Background(), "golang", 5)
	if err == nil {
		t.Error("expected error for HTTP 429")
	}
	if !strings.Contains(err.Error(), "HTTP 429") {
		t.Errorf("expected status in error, got: %v", err)
	}
}

func TestWebSearchTool_Search_CacheHit(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, searchFixture)
	}))
	defer ts.Close()

	tool := NewWebSearchTool(SearchOptions{
		Endpoint: ts.URL,
		Cache:    NewResearchCache(10, time.Hour),
	})

	for i := 0; i < 2; i++ {
		results, err := tool.Search(context.Background(), "golang", 5)
		if err != nil {
			t.Fatalf("Search %d failed: %v", i, err)
		}
		if len(results) != 2 {
			t.Fatalf("Search %d: expected 2 results, got %d", i, len(results))
		}
	}

	if hits.Load() != 1 {
		t.Errorf("expected 1 server hit with cache, got %d", hits.Load())
	}
}

// =============================================================================
// FETCH TESTS
// =============================================================================

func TestPageFetcher_Fetch_HTML(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintln(w, `<html><head><title>Test Page</title><script>alert("x")</script></head>`+
			`<body><h1>Main Heading</h1><p>Body text here.</p></body></html>`)
	}))
	defer ts.Close()

	fetcher := NewPageFetcher(FetchOptions{})

	page, err := fetcher.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if page.Title != "Test Page" {
		t.Errorf("Title mismatch: got %q", page.Title)
	}
	if !strings.Contains(page.Content, "# Main Heading") {
		t.Errorf("expected markdown heading, got: %s", page.Content)
	}
	if !strings.Contains(page.Content, "Body text here") {
		t.Errorf("expected body text, got: %s", page.Content)
	}
	if strings.Contains(page.Content, "alert") {
		t.Errorf("script content leaked into extraction: %s", page.Content)
	}
}

func TestPageFetcher_Fetch_PlainText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "Just plain text.")
	}))
	defer ts.Close()

	fetcher := NewPageFetcher(FetchOptions{})

	page, err := fetcher.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if page.Content != "Just plain text." {
		t.Errorf("expected passthrough, got: %q", page.Content)
	}
}

func TestPageFetcher_Fetch_404(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	fetcher := NewPageFetcher(FetchOptions{})

	_, err := fetcher.Fetch(context.Background(), ts.URL)
	if err == nil {
		t.Error("expected error for 404")
	}
	if !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("expected 404 error, got: %v", err)
	}
}

func TestPageFetcher_Truncation(t *testing.T) {
	long := strings.Repeat("evidence ", 100)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, long)
	}))
	defer ts.Close()

	fetcher := NewPageFetcher(FetchOptions{MaxContentChars: 40})

	page, err := fetcher.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !strings.HasSuffix(page.Content, truncationNotice) {
		t.Errorf("expected truncation notice, got: %q", page.Content)
	}
	if len(page.Content) != 40+len(truncationNotice) {
		t.Errorf("truncation length mismatch: got %d", len(page.Content))
	}
}

func TestExtractReadable(t *testing.T) {
	t.Parallel()

	input := `
		<html>
			<head><title>Page Title</title></head>
			<body>
				<h1>Header 1</h1>
				<p>Paragraph with <a href="http://example.com">link</a>.</p>
				<ul>
					<li>Item 1</li>
					<li>Item 2</li>
				</ul>
			</body>
		</html>`

	title, content := extractReadable(input, true)

	if title != "Page Title" {
		t.Errorf("title mismatch: got %q", title)
	}
	if strings.Contains(content, "Page Title") {
		t.Errorf("title should not repeat in content:\n%s", content)
	}

	expectedParts := []string{
		"# Header 1",
		"Paragraph with [link ](http://example.com).", // Note: converter adds space
		"- Item 1",
		"- Item 2",
	}
	for _, part := range expectedParts {
		if !strings.Contains(content, part) {
			t.Errorf("content missing expected part: %q\nGot:\n%s", part, content)
		}
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	in := "a\n\n\n\nb   c\t\td\n   e   \n"
	got := cleanText(in)
	want := "a\n\nb c d\ne"
	if got != want {
		t.Errorf("cleanText mismatch: got %q, want %q", got, want)
	}
}

// =============================================================================
// CACHE TESTS
// =============================================================================

func TestNewResearchCache(t *testing.T) {
	t.Parallel()

	cache := NewResearchCache(100, 30*time.Minute)

	if cache == nil {
		t.Fatal("expected non-nil cache")
	}
}

func TestResearchCache_GetSet(t *testing.T) {
	t.Parallel()

	cache := NewResearchCache(100, time.Hour)

	// Initially empty
	_, found := cache.Get("test-key")
	if found {
		t.Error("expected not found for missing key")
	}

	cache.Set("test-key", "test-value", "test-source")

	entry, found := cache.Get("test-key")
	if !found {
		t.Error("expected to find key after Set")
	}
	if entry == nil {
		t.Fatal("expected non-nil entry")
	}
	if entry.Value != "test-value" {
		t.Errorf("Value mismatch: got %q", entry.Value)
	}
	if entry.Source != "test-source" {
		t.Errorf("Source mismatch: got %q", entry.Source)
	}
}

func TestResearchCache_Expiry(t *testing.T) {
	t.Parallel()

	cache := NewResearchCache(100, time.Millisecond)

	cache.Set("key", "value", "source")
	time.Sleep(5 * time.Millisecond)

	_, found := cache.Get("key")
	if found {
		t.Error("expected expired entry to be evicted")
	}
}

func TestResearchCache_Delete(t *testing.T) {
	t.Parallel()

	cache := NewResearchCache(100, time.Hour)

	cache.Set("key", "value", "source")
	cache.Delete("key")

	_, found := cache.Get("key")
	if found {
		t.Error("expected not found after Delete")
	}
}

func TestResearchCache_Clear(t *testing.T) {
	t.Parallel()

	cache := NewResearchCache(100, time.Hour)

	cache.Set("key1", "value1", "source")
	cache.Set("key2", "value2", "source")

	cache.Clear()

	if cache.Size() != 0 {
		t.Errorf("expected 0 size after Clear, got %d", cache.Size())
	}
}

func TestResearchCache_Eviction(t *testing.T) {
	t.Parallel()

	// Create cache with max size 2
	cache := NewResearchCache(2, time.Hour)

	cache.Set("key1", "value1", "source")
	cache.Set("key2", "value2", "source")
	cache.Set("key3", "value3", "source") // Should trigger eviction

	if cache.Size() > 2 {
		t.Errorf("expected max 2 entries, got %d", cache.Size())
	}
}

func TestPersistentCache_SurvivesRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	first, err := NewPersistentCache(100, time.Hour, dir)
	if err != nil {
		t.Fatalf("NewPersistentCache failed: %v", err)
	}
	first.Set("key", "value", "search")

	// A fresh cache over the same directory sees the entry
	second, err := NewPersistentCache(100, time.Hour, dir)
	if err != nil {
		t.Fatalf("NewPersistentCache failed: %v", err)
	}

	entry, found := second.Get("key")
	if !found {
		t.Fatal("expected disk entry to be found")
	}
	if entry.Value != "value" {
		t.Errorf("Value mismatch: got %q", entry.Value)
	}
	if entry.Source != "search" {
		t.Errorf("Source mismatch: got %q", entry.Source)
	}
}

func TestHashKey(t *testing.T) {
	t.Parallel()

	a := hashKey("search", "golang")
	b := hashKey("search", "golang")
	c := hashKey("fetch", "golang")

	if a != b {
		t.Error("expected deterministic keys")
	}
	if a == c {
		t.Error("expected distinct keys for distinct inputs")
	}
	if len(a) != 16 {
		t.Errorf("expected 16-char key, got %d", len(a))
	}
}
