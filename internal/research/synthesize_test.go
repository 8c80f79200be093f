package research

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func synthConfig() Config {
	cfg := testConfig()
	cfg.MinReportWords = 50
	return cfg
}

func longDraft(words int) string {
	return strings.TrimSpace(strings.Repeat("insight ", words)) + "\n\n## References\n\n1. https://example.com/a\n"
}

func completeResult(objective string, priority int, urls ...string) SubtaskResult {
	points := make([]DataPoint, len(urls))
	for i, u := range urls {
		points[i] = DataPoint{
			SourceURL:   u,
			SourceTitle: "Title " + u,
			Excerpt:     "Evidence gathered from " + u + " about " + objective + ".",
		}
	}
	return SubtaskResult{
		Subtask:    Subtask{Objective: objective, SearchTerms: []string{objective}, Priority: priority},
		DataPoints: points,
		Status:     StatusComplete,
	}
}

// === SYNTHESIZER TESTS ===

func TestSynthesize_AllFailed(t *testing.T) {
	t.Parallel()

	calls := 0
	client := &stubClient{
		systemFn: func(ctx context.Context, system, user string) (string, error) {
			calls++
			return longDraft(100), nil
		},
	}

	results := []SubtaskResult{
		{Subtask: Subtask{Objective: "first angle", Priority: 1}, Status: StatusFailed},
		{Subtask: Subtask{Objective: "second angle", Priority: 2}, Status: StatusFailed},
	}

	s := NewSynthesizer(client, synthConfig())
	report := s.Synthesize(context.Background(), "dead topic", results)

	if calls != 0 {
		t.Errorf("generation invoked %d times, want 0 when nothing was collected", calls)
	}
	if !report.Degraded {
		t.Error("report should be degraded when every subtask failed")
	}
	if report.Synthesis == "" {
		t.Error("even a failed run must produce a synthesis")
	}
	if !strings.Contains(report.Synthesis, "dead topic") {
		t.Errorf("synthesis should name the topic, got %q", report.Synthesis)
	}
	if !strings.Contains(report.Synthesis, "No data found") {
		t.Errorf("synthesis should state that objectives came up empty, got %q", report.Synthesis)
	}
	if report.References == nil || len(report.References) != 0 {
		t.Errorf("references = %v, want empty list", report.References)
	}
}

func TestSynthesize_EmptyResults(t *testing.T) {
	t.Parallel()

	s := NewSynthesizer(&stubClient{}, synthConfig())
	report := s.Synthesize(context.Background(), "nothing planned", nil)

	if !report.Degraded {
		t.Error("empty results should degrade the report")
	}
	if len(report.References) != 0 {
		t.Errorf("references = %v, want empty", report.References)
	}
	if !strings.Contains(report.Synthesis, "nothing planned") {
		t.Errorf("synthesis should still name the topic, got %q", report.Synthesis)
	}
}

func TestSynthesize_ReferencesFromEvidenceOnly(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		systemFn: func(ctx context.Context, system, user string) (string, error) {
			// The model cites a page that was never collected.
			return longDraft(100) + "\nSee also https://fabricated.example/nowhere\n", nil
		},
	}

	results := []SubtaskResult{
		completeResult("alpha", 1, "https://example.com/1", "https://example.com/2"),
		completeResult("beta", 2, "https://example.com/1", "https://example.com/3"),
	}

	s := NewSynthesizer(client, synthConfig())
	report := s.Synthesize(context.Background(), "topic", results)

	want := []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"}
	if !reflect.DeepEqual(report.References, want) {
		t.Errorf("references = %v, want %v (distinct source URLs, first seen order)", report.References, want)
	}
	if report.Degraded {
		t.Error("report should not be degraded")
	}
	if got := report.Objectives; !reflect.DeepEqual(got, []string{"alpha", "beta"}) {
		t.Errorf("objectives = %v, want input order", got)
	}
}

func TestSynthesize_ExpandRecoversShortDraft(t *testing.T) {
	t.Parallel()

	calls := 0
	client := &stubClient{
		systemFn: func(ctx context.Context, system, user string) (string, error) {
			calls++
			if calls == 1 {
				return "Too short a report.", nil
			}
			return longDraft(120), nil
		},
	}

	s := NewSynthesizer(client, synthConfig())
	report := s.Synthesize(context.Background(), "topic", []SubtaskResult{
		completeResult("alpha", 1, "https://example.com/1"),
	})

	if calls != 2 {
		t.Errorf("client called %d times, want 2 (draft + expansion)", calls)
	}
	if report.Degraded {
		t.Error("report should not be degraded once the expansion meets the floor")
	}
	if !strings.Contains(report.Synthesis, "insight") {
		t.Errorf("synthesis should be the expanded draft, got %q", report.Synthesis)
	}
}

func TestSynthesize_StillShortDegrades(t *testing.T) {
	t.Parallel()

	calls := 0
	client := &stubClient{
		systemFn: func(ctx context.Context, system, user string) (string, error) {
			calls++
			if calls == 1 {
				return "Short draft number one, slightly wordy.", nil
			}
			return "Short draft two, a little longer than before it was.", nil
		},
	}

	s := NewSynthesizer(client, synthConfig())
	report := s.Synthesize(context.Background(), "topic", []SubtaskResult{
		completeResult("alpha", 1, "https://example.com/1"),
	})

	if calls != 2 {
		t.Errorf("client called %d times, want 2 (one expansion only)", calls)
	}
	if !report.Degraded {
		t.Error("report should be degraded when both drafts miss the word floor")
	}
	// The longer of the two drafts wins.
	if !strings.Contains(report.Synthesis, "draft two") {
		t.Errorf("synthesis should keep the longer draft, got %q", report.Synthesis)
	}
}

func TestSynthesize_GenerationFailureDegrades(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		systemFn: func(ctx context.Context, system, user string) (string, error) {
			return "", errors.New("provider outage")
		},
	}

	results := []SubtaskResult{
		completeResult("alpha", 1, "https://example.com/1"),
	}

	s := NewSynthesizer(client, synthConfig())
	report := s.Synthesize(context.Background(), "resilient topic", results)

	if !report.Degraded {
		t.Error("generation failure should degrade, not fail, the run")
	}
	if !strings.Contains(report.Synthesis, "# Research Report: resilient topic") {
		t.Errorf("fallback synthesis should carry the report header, got %q", report.Synthesis)
	}
	if !strings.Contains(report.Synthesis, "https://example.com/1") {
		t.Errorf("fallback synthesis should surface the collected sources, got %q", report.Synthesis)
	}
	if want := []string{"https://example.com/1"}; !reflect.DeepEqual(report.References, want) {
		t.Errorf("references = %v, want %v", report.References, want)
	}
}

// === REFERENCE TESTS ===

func TestComputeReferences(t *testing.T) {
	t.Parallel()

	results := []SubtaskResult{
		{DataPoints: []DataPoint{
			{SourceURL: "https://example.com/b"},
			{SourceURL: "https://example.com/a"},
			{SourceURL: "@internal-note"},
		}},
		{DataPoints: []DataPoint{
			{SourceURL: "https://example.com/a"},
			{SourceURL: ""},
			{SourceURL: "https://example.com/c"},
		}},
	}

	want := []string{"https://example.com/b", "https://example.com/a", "https://example.com/c"}
	got := ComputeReferences(results)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("references = %v, want %v", got, want)
	}

	// Same input, same output: the computation has no hidden state.
	again := ComputeReferences(results)
	if !reflect.DeepEqual(got, again) {
		t.Errorf("repeated computation diverged: %v vs %v", got, again)
	}
}

func TestComputeReferences_Empty(t *testing.T) {
	t.Parallel()

	got := ComputeReferences(nil)
	if got == nil {
		t.Fatal("references should be an empty list, not nil")
	}
	if len(got) != 0 {
		t.Errorf("references = %v, want empty", got)
	}
}

// === REPORT SHAPE TESTS ===

func TestEnsureReferencesSection(t *testing.T) {
	t.Parallel()

	refs := []string{"https://example.com/1", "https://example.com/2"}

	t.Run("appends when missing", func(t *testing.T) {
		got := ensureReferencesSection("# Report\n\nBody text.", refs)
		if !strings.Contains(got, "## References") {
			t.Errorf("section not appended: %q", got)
		}
		if !strings.Contains(got, "1. https://example.com/1") || !strings.Contains(got, "2. https://example.com/2") {
			t.Errorf("references not numbered: %q", got)
		}
	})

	t.Run("leaves existing section alone", func(t *testing.T) {
		draft := "# Report\n\nBody.\n\n## References\n\n1. https://example.com/1\n"
		if got := ensureReferencesSection(draft, refs); got != draft {
			t.Errorf("draft with a References section should be unchanged")
		}
	})

	t.Run("no references, no section", func(t *testing.T) {
		draft := "# Report\n\nBody."
		if got := ensureReferencesSection(draft, nil); got != draft {
			t.Errorf("draft should be unchanged when there is nothing to cite")
		}
	})
}

func TestMinimalSynthesis(t *testing.T) {
	t.Parallel()

	results := []SubtaskResult{
		{
			Subtask: Subtask{Objective: "covered angle", Priority: 1},
			DataPoints: []DataPoint{{
				SourceURL: "https://example.com/long",
				Excerpt:   strings.Repeat("x", 400),
			}},
			Status: StatusComplete,
		},
		{
			Subtask: Subtask{Objective: "empty angle", Priority: 2},
			Status:  StatusFailed,
		},
	}

	got := minimalSynthesis("fallback topic", results)

	if !strings.Contains(got, "# Research Report: fallback topic") {
		t.Errorf("missing title: %q", got)
	}
	if !strings.Contains(got, "## covered angle") || !strings.Contains(got, "## empty angle") {
		t.Errorf("missing objective sections: %q", got)
	}
	if !strings.Contains(got, "No data found for this objective.") {
		t.Errorf("empty objective should say so: %q", got)
	}
	if !strings.Contains(got, "### Information from https://example.com/long") {
		t.Errorf("missing source section: %q", got)
	}
	if !strings.Contains(got, strings.Repeat("x", 300)+"...") {
		t.Errorf("long excerpts should be previewed at 300 chars")
	}
	if !strings.Contains(got, "- https://example.com/long") {
		t.Errorf("missing reference bullet: %q", got)
	}
}

func TestBuildEvidence(t *testing.T) {
	t.Parallel()

	results := []SubtaskResult{
		completeResult("second by priority", 2, "https://example.com/2"),
		completeResult("first by priority", 1, "https://example.com/1"),
		{Subtask: Subtask{Objective: "nothing here", Priority: 3}, Status: StatusFailed},
	}

	got := buildEvidence(results)

	first := strings.Index(got, "## first by priority")
	second := strings.Index(got, "## second by priority")
	if first == -1 || second == -1 {
		t.Fatalf("missing objective sections: %q", got)
	}
	if first > second {
		t.Error("evidence should order objectives by priority, highest first")
	}
	if strings.Contains(got, "nothing here") {
		t.Error("objectives with no data points should be omitted from evidence")
	}
}

func TestBuildEvidence_CapsVerboseSections(t *testing.T) {
	t.Parallel()

	huge := completeResult("verbose", 1, "https://example.com/big")
	huge.DataPoints[0].Excerpt = strings.Repeat("a", 12000)

	got := buildEvidence([]SubtaskResult{huge})
	if !strings.Contains(got, "[Content truncated for length]") {
		t.Error("oversized section should carry a truncation marker")
	}
	if len(got) > 11000 {
		t.Errorf("evidence length %d, want capped near 10000", len(got))
	}
}

func TestWordCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"two words", 2},
		{"split\nacross\nlines and   spaces", 5},
	}
	for _, tt := range tests {
		if got := wordCount(tt.in); got != tt.want {
			t.Errorf("wordCount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
