package research

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// === ERROR TAXONOMY TESTS ===

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"search error", &SearchError{Query: "q", Err: errors.New("timeout")}, true},
		{"fetch error", &FetchError{URL: "https://example.com", Err: errors.New("503")}, true},
		{"generation error", &GenerationError{Stage: "decompose", Err: errors.New("rate limited")}, true},
		{"wrapped search error", fmt.Errorf("attempt 1: %w", &SearchError{Query: "q", Err: errors.New("x")}), true},
		{"invalid input", &InvalidInputError{Reason: "empty"}, false},
		{"decomposition error", &DecompositionError{Topic: "t", Err: errors.New("x")}, false},
		{"plain error", errors.New("boom"), false},
		{"context canceled", context.Canceled, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	t.Parallel()

	cause := &DecompositionError{Topic: "quantum computing", Err: errors.New("model unavailable")}
	aborted := &AbortedError{Topic: "quantum computing", Err: cause}

	var gotDecomp *DecompositionError
	if !errors.As(aborted, &gotDecomp) {
		t.Fatal("AbortedError should unwrap to DecompositionError")
	}
	if gotDecomp.Topic != "quantum computing" {
		t.Errorf("unwrapped topic = %q, want %q", gotDecomp.Topic, "quantum computing")
	}

	var gotAborted *AbortedError
	if !errors.As(error(aborted), &gotAborted) {
		t.Fatal("errors.As should match AbortedError itself")
	}
}

// === RETRY POLICY TESTS ===

func TestPolicyDo_FirstTrySuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	policy := retryOnce(time.Millisecond)
	err := policy.Do(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestPolicyDo_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	policy := retryOnce(time.Millisecond)
	err := policy.Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &SearchError{Query: "q", Err: errors.New("flaky")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry should have recovered, got: %v", err)
	}
	if calls != 2 {
		t.Errorf("op called %d times, want 2", calls)
	}
}

func TestPolicyDo_NonTransientNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	permanent := &InvalidInputError{Reason: "empty topic"}
	policy := retryOnce(time.Millisecond)
	err := policy.Do(context.Background(), func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, error(permanent)) {
		t.Fatalf("expected the permanent error back, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1 (no retry for permanent errors)", calls)
	}
}

func TestPolicyDo_ExhaustedReturnsLastError(t *testing.T) {
	t.Parallel()

	calls := 0
	policy := retryOnce(time.Millisecond)
	err := policy.Do(context.Background(), func() error {
		calls++
		return &SearchError{Query: "q", Err: fmt.Errorf("attempt %d", calls)}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 2 {
		t.Errorf("op called %d times, want 2 (initial + one retry)", calls)
	}
	var searchErr *SearchError
	if !errors.As(err, &searchErr) {
		t.Fatalf("expected SearchError, got %T", err)
	}
	if got := searchErr.Err.Error(); got != "attempt 2" {
		t.Errorf("should return the last attempt's error, got %q", got)
	}
}

func TestPolicyDo_CancelDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := Policy{Retries: 1, Backoff: time.Minute, ShouldRetry: IsTransient}
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func() error {
			calls++
			return &SearchError{Query: "q", Err: errors.New("flaky")}
		})
	}()

	// Give the op time to fail once and enter backoff, then cancel.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1 (cancel interrupted the backoff)", calls)
	}
}
