package research

import (
	"fmt"
	"time"
)

// Subtask is one focused line of inquiry derived from the research topic.
// Priority 1 is highest; lower numbers are synthesized first.
type Subtask struct {
	Objective   string   `json:"objective"`
	SearchTerms []string `json:"search_terms"`
	Priority    int      `json:"priority"`
}

// DataPoint is a single piece of evidence extracted from one search result.
type DataPoint struct {
	SourceURL     string `json:"source_url"`
	SourceTitle   string `json:"source_title"`
	Excerpt       string `json:"excerpt"`
	RelevanceNote string `json:"relevance_note"`
}

// Status describes how evidence collection went for one subtask.
type Status string

const (
	// StatusComplete means every search term produced usable evidence.
	StatusComplete Status = "complete"

	// StatusPartial means some search terms failed but evidence was gathered.
	StatusPartial Status = "partial"

	// StatusFailed means no evidence could be gathered at all.
	StatusFailed Status = "failed"
)

// SubtaskResult pairs a subtask with the evidence gathered for it.
type SubtaskResult struct {
	Subtask    Subtask     `json:"subtask"`
	DataPoints []DataPoint `json:"data_points"`
	Status     Status      `json:"status"`
}

// Report is the terminal artifact of a research run. It is never mutated
// after the pipeline returns it.
type Report struct {
	Topic      string   `json:"topic"`
	Objectives []string `json:"objectives"`
	Synthesis  string   `json:"synthesis"`
	References []string `json:"references"`
	Degraded   bool     `json:"degraded"`
}

// Config bounds a research run. It is built once, validated at pipeline
// construction, and passed down unchanged; stages never mutate it.
type Config struct {
	// MinSubtasks and MaxSubtasks bound the decomposition plan size
	MinSubtasks int
	MaxSubtasks int

	// MaxSearchResults caps results processed per subtask
	MaxSearchResults int

	// MinReportWords is the synthesis length threshold
	MinReportWords int

	// Concurrency caps simultaneous outstanding search/fetch calls
	Concurrency int

	// CallTimeout bounds a single search or fetch call
	CallTimeout time.Duration

	// LLMTimeout bounds a single generation call
	LLMTimeout time.Duration

	// RetryBackoff is the delay before the single retry of a transient failure
	RetryBackoff time.Duration
}

// DefaultConfig returns the standard run bounds.
func DefaultConfig() Config {
	return Config{
		MinSubtasks:      3,
		MaxSubtasks:      5,
		MaxSearchResults: 3,
		MinReportWords:   1000,
		Concurrency:      5,
		CallTimeout:      90 * time.Second,
		LLMTimeout:       5 * time.Minute,
		RetryBackoff:     time.Second,
	}
}

// Validate rejects configurations that cannot produce a well-formed run.
func (c Config) Validate() error {
	if c.MinSubtasks < 1 {
		return fmt.Errorf("min subtasks must be at least 1, got %d", c.MinSubtasks)
	}
	if c.MaxSubtasks < c.MinSubtasks {
		return fmt.Errorf("max subtasks (%d) must be >= min subtasks (%d)", c.MaxSubtasks, c.MinSubtasks)
	}
	if c.MaxSearchResults < 1 {
		return fmt.Errorf("max search results must be at least 1, got %d", c.MaxSearchResults)
	}
	if c.MinReportWords < 1 {
		return fmt.Errorf("min report words must be at least 1, got %d", c.MinReportWords)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got %v", c.CallTimeout)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("llm timeout must be positive, got %v", c.LLMTimeout)
	}
	if c.RetryBackoff <= 0 {
		return fmt.Errorf("retry backoff must be positive, got %v", c.RetryBackoff)
	}
	return nil
}

// CountStatuses tallies results by status.
func CountStatuses(results []SubtaskResult) (complete, partial, failed int) {
	for _, r := range results {
		switch r.Status {
		case StatusComplete:
			complete++
		case StatusPartial:
			partial++
		case StatusFailed:
			failed++
		}
	}
	return complete, partial, failed
}
