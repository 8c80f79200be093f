package research

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"scout/internal/logging"
	"scout/internal/webtool"
)

// SearchTool is the web-search boundary the collector drives.
type SearchTool interface {
	Search(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error)
}

// FetchTool is the page-fetch boundary the collector drives.
type FetchTool interface {
	Fetch(ctx context.Context, url string) (*webtool.Page, error)
}

// Collector gathers evidence for each subtask concurrently: one task per
// subtask, one task per search term inside it, all sharing a global
// concurrency gate so outstanding external calls stay bounded.
type Collector struct {
	search  SearchTool
	fetcher FetchTool
	scorer  *RelevanceScorer
	cfg     Config
	retry   Policy
	gate    chan struct{}
}

// NewCollector creates a collector over the given search and fetch tools.
func NewCollector(search SearchTool, fetcher FetchTool, scorer *RelevanceScorer, cfg Config) *Collector {
	if scorer == nil {
		scorer = NewRelevanceScorer(nil)
	}
	return &Collector{
		search:  search,
		fetcher: fetcher,
		scorer:  scorer,
		cfg:     cfg,
		retry:   retryOnce(cfg.RetryBackoff),
		gate:    make(chan struct{}, cfg.Concurrency),
	}
}

// Collect gathers evidence for every subtask and returns one SubtaskResult
// per subtask in input order, regardless of completion order. A subtask that
// produces nothing yields a Failed result; Collect itself never fails, so
// partial evidence always reaches the synthesizer.
func (c *Collector) Collect(ctx context.Context, topic string, subtasks []Subtask) []SubtaskResult {
	timer := logging.StartTimer(logging.CategoryCollect, "collect")
	defer timer.StopWithInfo()

	results := make([]SubtaskResult, len(subtasks))

	g, ctx := errgroup.WithContext(ctx)
	for i, st := range subtasks {
		i, st := i, st
		g.Go(func() error {
			results[i] = c.collectSubtask(ctx, topic, st)
			return nil
		})
	}
	// Workers absorb their failures into statuses and never return errors,
	// so this wait is purely the fan-in barrier.
	_ = g.Wait()

	complete, partial, failed := CountStatuses(results)
	logging.Collect("Collected %d subtasks: %d complete, %d partial, %d failed", len(results), complete, partial, failed)
	return results
}

// termOutcome is the fan-in record for one search term.
type termOutcome struct {
	points []DataPoint
	err    error
	ran    bool
}

func (c *Collector) collectSubtask(ctx context.Context, topic string, st Subtask) SubtaskResult {
	terms := st.SearchTerms
	if len(terms) == 0 {
		terms = []string{st.Objective}
	}
	quotas := splitQuota(c.cfg.MaxSearchResults, len(terms))

	outcomes := make([]termOutcome, len(terms))
	var wg sync.WaitGroup
	for i, term := range terms {
		if quotas[i] == 0 {
			logging.CollectDebug("Skipping term %q for %q: result budget exhausted", term, st.Objective)
			continue
		}
		wg.Add(1)
		go func(i int, term string) {
			defer wg.Done()
			points, err := c.collectTerm(ctx, st.Objective, searchQuery(topic, term), quotas[i])
			outcomes[i] = termOutcome{points: points, err: err, ran: true}
		}(i, term)
	}
	wg.Wait()

	var points []DataPoint
	anyTermFailed := false
	for i, out := range outcomes {
		if !out.ran {
			continue
		}
		if out.err != nil {
			anyTermFailed = true
			logging.CollectWarn("Search term %q failed for %q: %v", terms[i], st.Objective, out.err)
			continue
		}
		points = append(points, out.points...)
	}

	status := StatusComplete
	switch {
	case len(points) == 0:
		status = StatusFailed
	case anyTermFailed:
		status = StatusPartial
	}

	logging.Collect("Subtask %q: %d data points, status=%s", st.Objective, len(points), status)
	return SubtaskResult{Subtask: st, DataPoints: points, Status: status}
}

// collectTerm runs one search term: a single search (retried once on
// transient failure), then extraction of each result up to the term's
// quota. Extraction failures are skipped as lost evidence, never failing
// the term.
func (c *Collector) collectTerm(ctx context.Context, objective, query string, quota int) ([]DataPoint, error) {
	var found []webtool.SearchResult
	err := c.retry.Do(ctx, func() error {
		results, searchErr := c.searchOnce(ctx, query, quota)
		if searchErr != nil {
			return searchErr
		}
		found = results
		return nil
	})
	if err != nil {
		return nil, err
	}

	var points []DataPoint
	for _, result := range found {
		if len(points) >= quota {
			break
		}
		if strings.HasPrefix(result.URL, "@") {
			logging.Audit().EvidenceLost(result.URL, "untrusted source reference")
			continue
		}

		point, extractErr := c.extractPoint(ctx, objective, result)
		if extractErr != nil {
			logging.CollectWarn("Lost evidence from %s: %v", result.URL, extractErr)
			logging.Audit().EvidenceLost(result.URL, extractErr.Error())
			continue
		}
		points = append(points, point)
	}
	return points, nil
}

func (c *Collector) searchOnce(ctx context.Context, query string, max int) ([]webtool.SearchResult, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	results, err := c.search.Search(callCtx, query, max)
	if err != nil {
		return nil, &SearchError{Query: query, Err: err}
	}
	return results, nil
}

// extractPoint turns one search result into a DataPoint by fetching the
// page and annotating the excerpt. When the page yields less than the
// search snippet, the snippet stands in as the excerpt.
func (c *Collector) extractPoint(ctx context.Context, objective string, result webtool.SearchResult) (DataPoint, error) {
	if err := c.acquire(ctx); err != nil {
		return DataPoint{}, err
	}
	defer c.release()

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	page, err := c.fetcher.Fetch(callCtx, result.URL)
	if err != nil {
		return DataPoint{}, &FetchError{URL: result.URL, Err: err}
	}

	excerpt := strings.TrimSpace(page.Content)
	if len(excerpt) < len(result.Snippet) {
		excerpt = result.Snippet
	}
	if excerpt == "" {
		return DataPoint{}, &FetchError{URL: result.URL, Err: fmt.Errorf("page yielded no content")}
	}

	title := page.Title
	if title == "" {
		title = result.Title
	}

	return DataPoint{
		SourceURL:     result.URL,
		SourceTitle:   title,
		Excerpt:       excerpt,
		RelevanceNote: c.scorer.Note(ctx, objective, excerpt),
	}, nil
}

// acquire takes a slot on the global concurrency gate. Waiting here is
// delay, not failure; only caller cancellation interrupts it.
func (c *Collector) acquire(ctx context.Context) error {
	select {
	case c.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Collector) release() {
	<-c.gate
}

// searchQuery prefixes the term with the topic so searches stay anchored to
// the research subject.
func searchQuery(topic, term string) string {
	return topic + " " + term
}

// splitQuota divides a per-subtask result budget across terms, earlier
// terms first. Terms beyond the budget get zero and are not searched.
func splitQuota(budget, terms int) []int {
	quotas := make([]int, terms)
	for i := 0; i < terms; i++ {
		quotas[i] = budget / terms
		if i < budget%terms {
			quotas[i]++
		}
	}
	return quotas
}
