package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"scout/internal/core"
	"scout/internal/logging"
)

const decomposeSystemPrompt = "You are a research planner. You break open-ended research topics into focused, non-overlapping subtasks that together cover the topic."

// subtaskSchema is the JSON schema enforced at the provider when the client
// supports it. The prompt fallback asks for the same shape.
const subtaskSchema = `{
  "type": "object",
  "properties": {
    "subtasks": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "objective": {"type": "string"},
          "search_terms": {"type": "array", "items": {"type": "string"}},
          "priority": {"type": "integer"}
        },
        "required": ["objective", "search_terms", "priority"],
        "additionalProperties": false
      }
    }
  },
  "required": ["subtasks"],
  "additionalProperties": false
}`

// Decomposer turns a research topic into a bounded, priority-ordered plan
// of subtasks.
type Decomposer struct {
	client core.LLMClient
	cfg    Config
	retry  Policy
}

// NewDecomposer creates a decomposer using client for plan generation.
func NewDecomposer(client core.LLMClient, cfg Config) *Decomposer {
	return &Decomposer{
		client: client,
		cfg:    cfg,
		retry:  retryOnce(cfg.RetryBackoff),
	}
}

// Decompose produces between MinSubtasks and MaxSubtasks subtasks for topic.
// An empty topic fails with InvalidInputError. Generation failures and
// schema-invalid output are retried once, then fail with DecompositionError;
// so does a plan too narrow to pad up to the minimum.
func (d *Decomposer) Decompose(ctx context.Context, topic string) ([]Subtask, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, &InvalidInputError{Reason: "topic must not be empty"}
	}

	timer := logging.StartTimer(logging.CategoryDecompose, "decompose")
	defer timer.StopWithInfo()

	var subtasks []Subtask
	err := d.retry.Do(ctx, func() error {
		out, genErr := d.generate(ctx, topic)
		if genErr != nil {
			logging.DecomposeWarn("Plan generation attempt failed: %v", genErr)
			return genErr
		}
		subtasks = out
		return nil
	})
	if err != nil {
		return nil, &DecompositionError{Topic: topic, Err: err}
	}

	subtasks = normalizeSubtasks(subtasks)
	if len(subtasks) == 0 {
		return nil, &DecompositionError{Topic: topic, Err: errors.New("plan contained no usable subtasks")}
	}

	subtasks, err = d.clamp(topic, subtasks)
	if err != nil {
		return nil, err
	}

	logging.Decompose("Topic %q decomposed into %d subtasks", topic, len(subtasks))
	return subtasks, nil
}

func (d *Decomposer) generate(ctx context.Context, topic string) ([]Subtask, error) {
	prompt := decomposePrompt(topic, d.cfg.MinSubtasks, d.cfg.MaxSubtasks)

	ctx, cancel := context.WithTimeout(ctx, d.cfg.LLMTimeout)
	defer cancel()

	var raw string
	var err error
	if schemaClient, ok := core.AsSchemaCapable(d.client); ok {
		raw, err = schemaClient.CompleteWithSchema(ctx, decomposeSystemPrompt, prompt, subtaskSchema)
		if errors.Is(err, core.ErrSchemaNotSupported) {
			logging.DecomposeDebug("Provider rejected schema enforcement, falling back to prompt JSON")
			raw, err = d.client.CompleteWithSystem(ctx, decomposeSystemPrompt, prompt)
		}
	} else {
		raw, err = d.client.CompleteWithSystem(ctx, decomposeSystemPrompt, prompt)
	}
	if err != nil {
		return nil, &GenerationError{Stage: "decompose", Err: err}
	}

	subtasks, err := parseSubtasks(raw)
	if err != nil {
		return nil, &GenerationError{Stage: "decompose", Err: err}
	}
	return subtasks, nil
}

func decomposePrompt(topic string, min, max int) string {
	return fmt.Sprintf(`Break down the research topic into %d-%d logical subtasks.

Each subtask needs:
- "objective": a clear, specific research question or goal
- "search_terms": 1-2 web search phrases
- "priority": an integer rank (1 is highest)

Example for "AI in Healthcare":
{
  "subtasks": [
    {"objective": "Current AI applications in clinical diagnosis", "search_terms": ["AI medical diagnosis", "clinical AI systems"], "priority": 1},
    {"objective": "Regulatory challenges for AI in healthcare", "search_terms": ["healthcare AI regulation", "medical AI ethics"], "priority": 2}
  ]
}

Respond with JSON only, no commentary.

Topic: %s`, min, max, topic)
}

// parseSubtasks extracts a subtask plan from model output. It tolerates
// markdown fences, surrounding prose, and a bare array instead of the
// requested object.
func parseSubtasks(raw string) ([]Subtask, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var envelope struct {
		Subtasks []Subtask `json:"subtasks"`
	}
	if err := json.Unmarshal([]byte(s), &envelope); err == nil && len(envelope.Subtasks) > 0 {
		return envelope.Subtasks, nil
	}

	var bare []Subtask
	if err := json.Unmarshal([]byte(s), &bare); err == nil && len(bare) > 0 {
		return bare, nil
	}

	// Find JSON in response (might have surrounding text)
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start != -1 && end > start {
		if err := json.Unmarshal([]byte(s[start:end+1]), &envelope); err == nil && len(envelope.Subtasks) > 0 {
			return envelope.Subtasks, nil
		}
	}
	if start, end := strings.Index(s, "["), strings.LastIndex(s, "]"); start != -1 && end > start {
		if err := json.Unmarshal([]byte(s[start:end+1]), &bare); err == nil && len(bare) > 0 {
			return bare, nil
		}
	}

	return nil, errors.New("response contained no subtask plan")
}

// normalizeSubtasks cleans a raw plan: blank objectives are dropped, search
// terms are trimmed with the objective standing in when none survive, and
// priorities are renumbered 1..n after a stable sort (unranked subtasks
// keep their relative order behind ranked ones).
func normalizeSubtasks(subtasks []Subtask) []Subtask {
	kept := make([]Subtask, 0, len(subtasks))
	for i, st := range subtasks {
		st.Objective = strings.TrimSpace(st.Objective)
		if st.Objective == "" {
			continue
		}

		terms := make([]string, 0, len(st.SearchTerms))
		for _, term := range st.SearchTerms {
			if term = strings.TrimSpace(term); term != "" {
				terms = append(terms, term)
			}
		}
		if len(terms) == 0 {
			terms = []string{st.Objective}
		}
		st.SearchTerms = terms

		if st.Priority <= 0 {
			st.Priority = len(subtasks) + i + 1
		}
		kept = append(kept, st)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Priority < kept[j].Priority
	})
	for i := range kept {
		kept[i].Priority = i + 1
	}
	return kept
}

// clamp forces the plan into [MinSubtasks, MaxSubtasks]. Oversized plans are
// truncated keeping the highest priorities; undersized plans are padded by
// splitting search terms off the highest-priority subtask that has spares.
func (d *Decomposer) clamp(topic string, subtasks []Subtask) ([]Subtask, error) {
	if len(subtasks) > d.cfg.MaxSubtasks {
		logging.Decompose("Truncating plan from %d to %d subtasks", len(subtasks), d.cfg.MaxSubtasks)
		subtasks = subtasks[:d.cfg.MaxSubtasks]
	}

	for len(subtasks) < d.cfg.MinSubtasks {
		donor := -1
		for i := range subtasks {
			if len(subtasks[i].SearchTerms) >= 2 {
				donor = i
				break
			}
		}
		if donor == -1 {
			return nil, &DecompositionError{
				Topic: topic,
				Err:   fmt.Errorf("cannot pad %d subtasks to %d: no subtask has spare search terms", len(subtasks), d.cfg.MinSubtasks),
			}
		}

		terms := subtasks[donor].SearchTerms
		keep := (len(terms) + 1) / 2
		moved := terms[keep:]
		subtasks[donor].SearchTerms = terms[:keep]

		subtasks = append(subtasks, Subtask{
			Objective:   fmt.Sprintf("%s (focus: %s)", subtasks[donor].Objective, strings.Join(moved, ", ")),
			SearchTerms: moved,
			Priority:    len(subtasks) + 1,
		})
		logging.Decompose("Padded plan to %d subtasks by splitting %q", len(subtasks), subtasks[donor].Objective)
	}

	return subtasks, nil
}
