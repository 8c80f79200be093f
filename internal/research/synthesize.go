package research

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"scout/internal/core"
	"scout/internal/logging"
)

const synthesizeSystemPrompt = `You are a research analyst. You write thorough, well-structured research reports in Markdown from evidence gathered on the web.

Rules:
- Use the evidence provided. Do not invent facts or sources.
- Organize the report with a title, an introduction, one section per research objective, and a conclusion.
- Cite sources inline where a claim comes from a specific page.
- End the report with a "## References" section listing every source as a numbered list.`

// Synthesizer turns collected evidence into the final report. It never
// fails outright: when generation breaks or the evidence is too thin it
// degrades to a structured summary built straight from the data points.
type Synthesizer struct {
	client core.LLMClient
	cfg    Config
}

// NewSynthesizer creates a synthesizer backed by the given model client.
func NewSynthesizer(client core.LLMClient, cfg Config) *Synthesizer {
	return &Synthesizer{client: client, cfg: cfg}
}

// Synthesize assembles the report from subtask results. References come
// from the collected data points, never from model output, so they stay
// stable across retries and rephrasings.
func (s *Synthesizer) Synthesize(ctx context.Context, topic string, results []SubtaskResult) *Report {
	timer := logging.StartTimer(logging.CategorySynthesize, "synthesize")
	defer timer.StopWithInfo()

	objectives := make([]string, len(results))
	for i, r := range results {
		objectives[i] = r.Subtask.Objective
	}
	references := ComputeReferences(results)

	report := &Report{
		Topic:      topic,
		Objectives: objectives,
		References: references,
	}

	if allFailed(results) {
		logging.SynthesizeWarn("No evidence collected for %q, skipping generation", topic)
		report.Synthesis = minimalSynthesis(topic, results)
		report.Degraded = true
		return report
	}

	evidence := buildEvidence(results)
	draft, err := s.generate(ctx, topic, objectives, evidence, references)
	if err != nil {
		logging.SynthesizeError("Generation failed for %q: %v", topic, err)
		report.Synthesis = minimalSynthesis(topic, results)
		report.Degraded = true
		return report
	}

	words := wordCount(draft)
	if words < s.cfg.MinReportWords {
		logging.Synthesize("Draft has %d words, below %d, requesting expansion", words, s.cfg.MinReportWords)
		expanded, expandErr := s.expand(ctx, topic, draft)
		if expandErr != nil {
			logging.SynthesizeWarn("Expansion failed for %q: %v", topic, expandErr)
		} else if wordCount(expanded) > words {
			draft = expanded
			words = wordCount(expanded)
		}
		if words < s.cfg.MinReportWords {
			logging.SynthesizeWarn("Report for %q still short at %d words, marking degraded", topic, words)
			report.Degraded = true
		}
	}

	report.Synthesis = ensureReferencesSection(draft, references)
	logging.Synthesize("Report for %q: %d words, %d references, degraded=%v", topic, wordCount(report.Synthesis), len(references), report.Degraded)
	return report
}

func (s *Synthesizer) generate(ctx context.Context, topic string, objectives []string, evidence string, references []string) (string, error) {
	var sources strings.Builder
	for i, ref := range references {
		fmt.Fprintf(&sources, "[%d] %s\n", i+1, ref)
	}

	prompt := fmt.Sprintf(`Write a research report on: %s

Research objectives:
%s

Evidence gathered from the web:
%s

Sources:
%s
The report must be at least %d words and must end with a "## References" section listing the sources above as a numbered list.`,
		topic, bulletList(objectives), evidence, sources.String(), s.cfg.MinReportWords)

	return s.complete(ctx, prompt)
}

// expand asks for a longer rewrite of a draft that came in under the word
// floor. One attempt only; the caller keeps whichever draft is longer.
func (s *Synthesizer) expand(ctx context.Context, topic string, draft string) (string, error) {
	prompt := fmt.Sprintf(`The following research report on %q is too short. Rewrite it to at least %d words, adding depth and detail to every section while keeping all facts and the References section unchanged.

%s`, topic, s.cfg.MinReportWords, draft)

	return s.complete(ctx, prompt)
}

func (s *Synthesizer) complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	out, err := s.client.CompleteWithSystem(callCtx, synthesizeSystemPrompt, prompt)
	if err != nil {
		return "", &GenerationError{Stage: "synthesize", Err: err}
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", &GenerationError{Stage: "synthesize", Err: fmt.Errorf("model returned empty report")}
	}
	return out, nil
}

// ComputeReferences extracts the distinct source URLs across all data
// points, in first-seen order. Internal '@'-prefixed references are not
// citable pages and are dropped. The result is derived purely from the
// collected evidence, so repeated calls over the same results always
// agree.
func ComputeReferences(results []SubtaskResult) []string {
	references := []string{}
	seen := make(map[string]bool)
	for _, r := range results {
		for _, dp := range r.DataPoints {
			url := dp.SourceURL
			if url == "" || strings.HasPrefix(url, "@") {
				continue
			}
			if seen[url] {
				continue
			}
			seen[url] = true
			references = append(references, url)
		}
	}
	return references
}

// buildEvidence renders the collected data points as markdown sections,
// highest-priority objectives first. Each objective's evidence is capped
// so one verbose source cannot crowd out the rest of the prompt.
func buildEvidence(results []SubtaskResult) string {
	const maxSectionChars = 10000

	ordered := make([]SubtaskResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Subtask.Priority < ordered[j].Subtask.Priority
	})

	var b strings.Builder
	for _, r := range ordered {
		if len(r.DataPoints) == 0 {
			continue
		}
		var section strings.Builder
		fmt.Fprintf(&section, "## %s\n\n", r.Subtask.Objective)
		for _, dp := range r.DataPoints {
			fmt.Fprintf(&section, "Source: %s\n", dp.SourceURL)
			if dp.RelevanceNote != "" {
				fmt.Fprintf(&section, "Relevance: %s\n", dp.RelevanceNote)
			}
			fmt.Fprintf(&section, "%s\n\n", dp.Excerpt)
		}
		text := section.String()
		if len(text) > maxSectionChars {
			text = text[:maxSectionChars] + "\n[Content truncated for length]\n"
		}
		b.WriteString(text)
	}
	return strings.TrimSpace(b.String())
}

// ensureReferencesSection appends the references as a numbered section
// when the model left them out. Reports with no citable sources are left
// alone.
func ensureReferencesSection(draft string, references []string) string {
	if len(references) == 0 {
		return draft
	}
	if strings.Contains(draft, "References") || strings.Contains(draft, "REFERENCES") {
		return draft
	}
	var b strings.Builder
	b.WriteString(draft)
	b.WriteString("\n\n## References\n\n")
	for i, ref := range references {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ref)
	}
	return strings.TrimSpace(b.String())
}

// minimalSynthesis builds a report directly from the evidence with no
// model involvement. It is the fallback shape for failed generation and
// for runs where nothing was collected.
func minimalSynthesis(topic string, results []SubtaskResult) string {
	const previewChars = 300

	var b strings.Builder
	fmt.Fprintf(&b, "# Research Report: %s\n", topic)
	for _, r := range results {
		fmt.Fprintf(&b, "\n## %s\n", r.Subtask.Objective)
		if len(r.DataPoints) == 0 {
			b.WriteString("\nNo data found for this objective.\n")
			continue
		}
		for _, dp := range r.DataPoints {
			fmt.Fprintf(&b, "\n### Information from %s\n\n", dp.SourceURL)
			excerpt := dp.Excerpt
			if len(excerpt) > previewChars {
				excerpt = excerpt[:previewChars] + "..."
			}
			fmt.Fprintf(&b, "%s\n", excerpt)
		}
	}
	references := ComputeReferences(results)
	if len(references) > 0 {
		b.WriteString("\n## References\n\n")
		for _, ref := range references {
			fmt.Fprintf(&b, "- %s\n", ref)
		}
	}
	return strings.TrimSpace(b.String())
}

func allFailed(results []SubtaskResult) bool {
	for _, r := range results {
		if r.Status != StatusFailed {
			return false
		}
	}
	return true
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return b.String()
}
