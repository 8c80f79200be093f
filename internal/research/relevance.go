package research

import (
	"context"
	"fmt"

	"scout/internal/embedding"
	"scout/internal/logging"
)

// relevanceExcerptLimit caps how much of an excerpt is embedded for scoring.
const relevanceExcerptLimit = 2000

// RelevanceScorer annotates evidence with a note describing how it relates
// to the subtask objective. It is a lightweight heuristic over embedding
// similarity, not a generation call, so scoring adds no LLM traffic.
type RelevanceScorer struct {
	engine embedding.Engine
}

// NewRelevanceScorer creates a scorer. A nil engine falls back to the
// keyword engine, which needs no credentials.
func NewRelevanceScorer(engine embedding.Engine) *RelevanceScorer {
	if engine == nil {
		engine = embedding.NewKeywordEngine()
	}
	return &RelevanceScorer{engine: engine}
}

// Note returns a short relevance annotation for an excerpt against an
// objective. Scoring failures degrade to a generic note rather than erroring;
// a data point is never dropped over its annotation.
func (s *RelevanceScorer) Note(ctx context.Context, objective, excerpt string) string {
	if len(excerpt) > relevanceExcerptLimit {
		excerpt = excerpt[:relevanceExcerptLimit]
	}

	score, err := s.score(ctx, objective, excerpt)
	if err != nil {
		logging.EmbedWarn("Relevance scoring failed, using generic note: %v", err)
		return fmt.Sprintf("Collected for objective: %s", objective)
	}

	switch {
	case score >= 0.6:
		return fmt.Sprintf("Directly relevant to objective: %s (similarity %.2f)", objective, score)
	case score >= 0.25:
		return fmt.Sprintf("Related to objective: %s (similarity %.2f)", objective, score)
	default:
		return fmt.Sprintf("Background material for objective: %s (similarity %.2f)", objective, score)
	}
}

func (s *RelevanceScorer) score(ctx context.Context, objective, excerpt string) (float64, error) {
	vecs, err := s.engine.EmbedBatch(ctx, []string{objective, excerpt})
	if err != nil {
		return 0, err
	}
	if len(vecs) != 2 {
		return 0, fmt.Errorf("expected 2 embeddings, got %d", len(vecs))
	}
	return embedding.CosineSimilarity(vecs[0], vecs[1])
}
