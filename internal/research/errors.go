package research

import (
	"errors"
	"fmt"
)

// InvalidInputError indicates the research topic itself was unusable.
// It is surfaced immediately; no pipeline work is attempted.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid research input: " + e.Reason
}

// DecompositionError indicates the planner could not produce a usable set of
// subtasks after its retry. It is the one stage failure that aborts a run.
type DecompositionError struct {
	Topic string
	Err   error
}

func (e *DecompositionError) Error() string {
	return fmt.Sprintf("failed to decompose topic %q: %v", e.Topic, e.Err)
}

func (e *DecompositionError) Unwrap() error { return e.Err }

// SearchError indicates a single web search call failed. Callers can use
// errors.As to detect this type; it is transient and retried once.
type SearchError struct {
	Query string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search for %q failed: %v", e.Query, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// FetchError indicates a single page fetch or extraction failed. The result
// is skipped and logged as lost evidence; the subtask continues.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch of %s failed: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// GenerationError indicates an LLM call failed or returned output that did
// not match the requested shape.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed during %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// AbortedError is returned when a run terminates before any evidence was
// collected. The underlying cause is always a DecompositionError, reachable
// via errors.As or Unwrap.
type AbortedError struct {
	Topic string
	Err   error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("research run aborted for %q: %v", e.Topic, e.Err)
}

func (e *AbortedError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a stage-local failure worth one retry.
// Anything else (bad input, context cancellation) is permanent.
func IsTransient(err error) bool {
	var searchErr *SearchError
	var fetchErr *FetchError
	var genErr *GenerationError
	return errors.As(err, &searchErr) || errors.As(err, &fetchErr) || errors.As(err, &genErr)
}
