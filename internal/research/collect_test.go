package research

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"scout/internal/webtool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubSearch scripts the search boundary.
type stubSearch struct {
	fn func(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error)
}

func (s *stubSearch) Search(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error) {
	return s.fn(ctx, query, maxResults)
}

// stubFetcher scripts the fetch boundary.
type stubFetcher struct {
	fn func(ctx context.Context, url string) (*webtool.Page, error)
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) (*webtool.Page, error) {
	return s.fn(ctx, url)
}

// happyFetcher returns a page with enough content to stand on its own.
func happyFetcher() *stubFetcher {
	return &stubFetcher{fn: func(ctx context.Context, url string) (*webtool.Page, error) {
		return &webtool.Page{
			URL:     url,
			Title:   "Page at " + url,
			Content: "Substantial page content fetched from " + url + " covering the subject in detail.",
		}, nil
	}}
}

func searchResults(urls ...string) []webtool.SearchResult {
	results := make([]webtool.SearchResult, len(urls))
	for i, u := range urls {
		results[i] = webtool.SearchResult{Title: "Result " + u, URL: u, Snippet: "snippet for " + u}
	}
	return results
}

func newTestCollector(search SearchTool, fetcher FetchTool, cfg Config) *Collector {
	return NewCollector(search, fetcher, NewRelevanceScorer(nil), cfg)
}

// === COLLECTOR TESTS ===

func TestCollect_OrderPreserved(t *testing.T) {
	t.Parallel()

	subtasks := []Subtask{
		{Objective: "A", SearchTerms: []string{"term a"}, Priority: 1},
		{Objective: "B", SearchTerms: []string{"term b"}, Priority: 2},
		{Objective: "C", SearchTerms: []string{"term c"}, Priority: 3},
	}

	// A finishes last, C first; output order must still be A, B, C.
	delays := map[string]time.Duration{"term a": 60 * time.Millisecond, "term b": 30 * time.Millisecond, "term c": 0}
	search := &stubSearch{fn: func(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error) {
		for term, d := range delays {
			if strings.Contains(query, term) {
				time.Sleep(d)
				return searchResults("https://example.com/" + strings.ReplaceAll(term, " ", "-")), nil
			}
		}
		return nil, fmt.Errorf("unexpected query %q", query)
	}}

	c := newTestCollector(search, happyFetcher(), testConfig())
	results := c.Collect(context.Background(), "topic", subtasks)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	var order []string
	for _, r := range results {
		order = append(order, r.Subtask.Objective)
	}
	if !reflect.DeepEqual(order, []string{"A", "B", "C"}) {
		t.Errorf("result order = %v, want [A B C] regardless of completion order", order)
	}
	for _, r := range results {
		if r.Status != StatusComplete {
			t.Errorf("subtask %s status = %s, want complete", r.Subtask.Objective, r.Status)
		}
	}
}

func TestCollect_TransientRetryRecovers(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	search := &stubSearch{fn: func(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, errors.New("connection reset")
		}
		return searchResults("https://example.com/doc"), nil
	}}

	c := newTestCollector(search, happyFetcher(), testConfig())
	results := c.Collect(context.Background(), "topic", []Subtask{
		{Objective: "only", SearchTerms: []string{"term"}, Priority: 1},
	})

	if calls != 2 {
		t.Errorf("search called %d times, want 2 (failure + retry)", calls)
	}
	// A term that recovers on retry is a full success, not a partial one.
	if results[0].Status != StatusComplete {
		t.Errorf("status = %s, want complete", results[0].Status)
	}
	if len(results[0].DataPoints) != 1 {
		t.Errorf("got %d data points, want 1", len(results[0].DataPoints))
	}
}

func TestCollect_PartialWhenTermFails(t *testing.T) {
	t.Parallel()

	search := &stubSearch{fn: func(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error) {
		if strings.Contains(query, "good term") {
			return searchResults("https://example.com/good"), nil
		}
		return nil, errors.New("search backend down")
	}}

	c := newTestCollector(search, happyFetcher(), testConfig())
	results := c.Collect(context.Background(), "topic", []Subtask{
		{Objective: "mixed", SearchTerms: []string{"good term", "bad term"}, Priority: 1},
	})

	r := results[0]
	if r.Status != StatusPartial {
		t.Errorf("status = %s, want partial (one term failed after retry)", r.Status)
	}
	if len(r.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(r.DataPoints))
	}
	if r.DataPoints[0].SourceURL != "https://example.com/good" {
		t.Errorf("data point from %q, want the good term's result", r.DataPoints[0].SourceURL)
	}
}

func TestCollect_FailedWhenNoEvidence(t *testing.T) {
	t.Parallel()

	search := &stubSearch{fn: func(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error) {
		return nil, errors.New("everything is down")
	}}

	c := newTestCollector(search, happyFetcher(), testConfig())
	results := c.Collect(context.Background(), "topic", []Subtask{
		{Objective: "doomed", SearchTerms: []string{"term"}, Priority: 1},
	})

	// Total failure is a status on the result, never an error from Collect.
	if results[0].Status != StatusFailed {
		t.Errorf("status = %s, want failed", results[0].Status)
	}
	if len(results[0].DataPoints) != 0 {
		t.Errorf("got %d data points, want 0", len(results[0].DataPoints))
	}
}

func TestCollect_ExtractionFailureSkipped(t *testing.T) {
	t.Parallel()

	search := &stubSearch{fn: func(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error) {
		return searchResults("https://example.com/broken", "https://example.com/fine"), nil
	}}
	fetcher := &stubFetcher{fn: func(ctx context.Context, url string) (*webtool.Page, error) {
		if strings.Contains(url, "broken") {
			return nil, errors.New("522 origin unreachable")
		}
		return &webtool.Page{URL: url, Title: "Fine", Content: "Long enough content to use as an excerpt here."}, nil
	}}

	c := newTestCollector(search, fetcher, testConfig())
	results := c.Collect(context.Background(), "topic", []Subtask{
		{Objective: "resilient", SearchTerms: []string{"term"}, Priority: 1},
	})

	r := results[0]
	if len(r.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1 (broken page skipped)", len(r.DataPoints))
	}
	if r.DataPoints[0].SourceURL != "https://example.com/fine" {
		t.Errorf("kept %q, want the fetchable page", r.DataPoints[0].SourceURL)
	}
	// A lost page is skipped evidence, not a failed search term.
	if r.Status != StatusComplete {
		t.Errorf("status = %s, want complete", r.Status)
	}
}

func TestCollect_AllExtractionsFailed(t *testing.T) {
	t.Parallel()

	search := &stubSearch{fn: func(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error) {
		return searchResults("https://example.com/a", "https://example.com/b"), nil
	}}
	fetcher := &stubFetcher{fn: func(ctx context.Context, url string) (*webtool.Page, error) {
		return nil, errors.New("blocked by robots")
	}}

	c := newTestCollector(search, fetcher, testConfig())
	results := c.Collect(context.Background(), "topic", []Subtask{
		{Objective: "unlucky", SearchTerms: []string{"term"}, Priority: 1},
	})

	if results[0].Status != StatusFailed {
		t.Errorf("status = %s, want failed (no evidence survived extraction)", results[0].Status)
	}
}

func TestCollect_ConcurrencyBounded(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	current, peak := 0, 0
	enter := func() {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	leave := func() {
		mu.Lock()
		current--
		mu.Unlock()
	}

	search := &stubSearch{fn: func(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error) {
		enter()
		defer leave()
		return searchResults("https://example.com/" + query), nil
	}}
	fetcher := &stubFetcher{fn: func(ctx context.Context, url string) (*webtool.Page, error) {
		enter()
		defer leave()
		return &webtool.Page{URL: url, Title: "t", Content: "Plenty of content for the excerpt to use."}, nil
	}}

	cfg := testConfig()
	cfg.Concurrency = 2

	var subtasks []Subtask
	for i := 0; i < 6; i++ {
		subtasks = append(subtasks, Subtask{
			Objective:   fmt.Sprintf("objective %d", i),
			SearchTerms: []string{fmt.Sprintf("term %d a", i), fmt.Sprintf("term %d b", i)},
			Priority:    i + 1,
		})
	}

	c := newTestCollector(search, fetcher, cfg)
	results := c.Collect(context.Background(), "topic", subtasks)

	if len(results) != 6 {
		t.Fatalf("got %d results, want 6", len(results))
	}
	mu.Lock()
	gotPeak := peak
	mu.Unlock()
	if gotPeak > cfg.Concurrency {
		t.Errorf("peak concurrent tool calls = %d, want <= %d", gotPeak, cfg.Concurrency)
	}
}

func TestCollect_UntrustedSourceSkipped(t *testing.T) {
	t.Parallel()

	search := &stubSearch{fn: func(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error) {
		return searchResults("@internal-reference", "https://example.com/real"), nil
	}}
	var mu sync.Mutex
	var fetched []string
	fetcher := &stubFetcher{fn: func(ctx context.Context, url string) (*webtool.Page, error) {
		mu.Lock()
		fetched = append(fetched, url)
		mu.Unlock()
		return &webtool.Page{URL: url, Title: "t", Content: "Plenty of content for the excerpt to use."}, nil
	}}

	c := newTestCollector(search, fetcher, testConfig())
	results := c.Collect(context.Background(), "topic", []Subtask{
		{Objective: "o", SearchTerms: []string{"term"}, Priority: 1},
	})

	if len(fetched) != 1 || fetched[0] != "https://example.com/real" {
		t.Errorf("fetched %v, want only the real URL", fetched)
	}
	for _, dp := range results[0].DataPoints {
		if strings.HasPrefix(dp.SourceURL, "@") {
			t.Errorf("untrusted source %q leaked into data points", dp.SourceURL)
		}
	}
}

func TestCollect_SnippetFallbackForThinPages(t *testing.T) {
	t.Parallel()

	search := &stubSearch{fn: func(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error) {
		return []webtool.SearchResult{{
			Title:   "Thin page",
			URL:     "https://example.com/thin",
			Snippet: "A rich snippet with more substance than the page body itself carries.",
		}}, nil
	}}
	fetcher := &stubFetcher{fn: func(ctx context.Context, url string) (*webtool.Page, error) {
		return &webtool.Page{URL: url, Title: "Thin", Content: "Stub."}, nil
	}}

	c := newTestCollector(search, fetcher, testConfig())
	results := c.Collect(context.Background(), "topic", []Subtask{
		{Objective: "o", SearchTerms: []string{"term"}, Priority: 1},
	})

	if len(results[0].DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(results[0].DataPoints))
	}
	got := results[0].DataPoints[0].Excerpt
	if !strings.Contains(got, "rich snippet") {
		t.Errorf("excerpt = %q, want the snippet to stand in for thin page content", got)
	}
}

func TestCollect_BudgetSkipsExcessTerms(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var queries []string
	search := &stubSearch{fn: func(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error) {
		mu.Lock()
		queries = append(queries, query)
		mu.Unlock()
		return searchResults("https://example.com/" + strings.ReplaceAll(query, " ", "-")), nil
	}}

	cfg := testConfig() // MaxSearchResults = 3
	c := newTestCollector(search, happyFetcher(), cfg)
	results := c.Collect(context.Background(), "topic", []Subtask{
		{Objective: "wide", SearchTerms: []string{"t1", "t2", "t3", "t4"}, Priority: 1},
	})

	if len(queries) != 3 {
		t.Errorf("ran %d searches, want 3 (budget of %d across 4 terms)", len(queries), cfg.MaxSearchResults)
	}
	for _, q := range queries {
		if strings.Contains(q, "t4") {
			t.Errorf("term beyond the budget was searched: %q", q)
		}
	}
	if results[0].Status != StatusComplete {
		t.Errorf("status = %s, want complete (skipped terms are not failures)", results[0].Status)
	}
}

func TestCollect_ObjectiveStandsInForMissingTerms(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var queries []string
	search := &stubSearch{fn: func(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error) {
		mu.Lock()
		queries = append(queries, query)
		mu.Unlock()
		return searchResults("https://example.com/x"), nil
	}}

	c := newTestCollector(search, happyFetcher(), testConfig())
	c.Collect(context.Background(), "solar power", []Subtask{
		{Objective: "grid storage economics", SearchTerms: nil, Priority: 1},
	})

	if len(queries) != 1 {
		t.Fatalf("ran %d searches, want 1", len(queries))
	}
	if want := "solar power grid storage economics"; queries[0] != want {
		t.Errorf("query = %q, want %q", queries[0], want)
	}
}

// === QUOTA TESTS ===

func TestSplitQuota(t *testing.T) {
	t.Parallel()

	tests := []struct {
		budget, terms int
		want          []int
	}{
		{3, 1, []int{3}},
		{3, 2, []int{2, 1}},
		{3, 3, []int{1, 1, 1}},
		{3, 4, []int{1, 1, 1, 0}},
		{5, 2, []int{3, 2}},
		{1, 3, []int{1, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_across_%d", tt.budget, tt.terms), func(t *testing.T) {
			got := splitQuota(tt.budget, tt.terms)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitQuota(%d, %d) = %v, want %v", tt.budget, tt.terms, got, tt.want)
			}
		})
	}
}
