package config

import "time"

// PipelineTimeouts centralizes all timeout configuration for pipeline operations.
// This ensures consistency across the codebase and prevents timeout conflicts.
//
// KEY INSIGHT: In Go, the SHORTEST timeout in the chain wins.
// If you have a 5-minute HTTP client but wrap the call in a 90-second context,
// the context wins and the call fails after 90 seconds.
type PipelineTimeouts struct {
	// LLMCallTimeout is the maximum time for a single LLM completion,
	// including connection, TLS handshake, and full response body read.
	// Synthesis over a full evidence set can take minutes.
	LLMCallTimeout time.Duration `json:"llm_call_timeout"`

	// SearchCallTimeout is the timeout for a single web search request.
	SearchCallTimeout time.Duration `json:"search_call_timeout"`

	// FetchCallTimeout is the timeout for fetching and extracting one page.
	FetchCallTimeout time.Duration `json:"fetch_call_timeout"`

	// RetryBackoffBase is the base duration for exponential backoff between retries.
	RetryBackoffBase time.Duration `json:"retry_backoff_base"`

	// RetryBackoffMax is the maximum backoff duration.
	RetryBackoffMax time.Duration `json:"retry_backoff_max"`

	// DecomposeTimeout covers query decomposition including the one retry.
	DecomposeTimeout time.Duration `json:"decompose_timeout"`

	// CollectTimeout covers the full concurrent evidence collection stage.
	CollectTimeout time.Duration `json:"collect_timeout"`

	// SynthesizeTimeout covers report generation including the expand retry.
	SynthesizeTimeout time.Duration `json:"synthesize_timeout"`

	// RunTimeout covers an entire research run end to end.
	RunTimeout time.Duration `json:"run_timeout"`
}

// DefaultPipelineTimeouts returns sensible defaults for hosted LLM APIs
// and public search endpoints.
func DefaultPipelineTimeouts() PipelineTimeouts {
	return PipelineTimeouts{
		LLMCallTimeout:    5 * time.Minute,
		SearchCallTimeout: 30 * time.Second,
		FetchCallTimeout:  60 * time.Second,
		RetryBackoffBase:  1 * time.Second,
		RetryBackoffMax:   30 * time.Second,

		DecomposeTimeout:  6 * time.Minute,  // Two decomposition attempts plus parsing
		CollectTimeout:    15 * time.Minute, // Bounded by subtasks x terms x per-call timeouts
		SynthesizeTimeout: 12 * time.Minute, // Initial draft plus one expand attempt

		RunTimeout: 30 * time.Minute,
	}
}

// FastPipelineTimeouts returns shorter timeouts for small topics and tests.
func FastPipelineTimeouts() PipelineTimeouts {
	return PipelineTimeouts{
		LLMCallTimeout:    2 * time.Minute,
		SearchCallTimeout: 15 * time.Second,
		FetchCallTimeout:  30 * time.Second,
		RetryBackoffBase:  500 * time.Millisecond,
		RetryBackoffMax:   10 * time.Second,

		DecomposeTimeout:  3 * time.Minute,
		CollectTimeout:    6 * time.Minute,
		SynthesizeTimeout: 5 * time.Minute,

		RunTimeout: 12 * time.Minute,
	}
}

// Global singleton for consistent timeout access.
var globalPipelineTimeouts = DefaultPipelineTimeouts()

// GetPipelineTimeouts returns the global pipeline timeout configuration.
func GetPipelineTimeouts() PipelineTimeouts {
	return globalPipelineTimeouts
}

// SetPipelineTimeouts updates the global pipeline timeout configuration.
// This should be called early in application startup.
func SetPipelineTimeouts(t PipelineTimeouts) {
	globalPipelineTimeouts = t
}
