package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

const keywordDimensions = 256

// KeywordEngine produces deterministic bag-of-words embeddings via feature
// hashing. It needs no network or credentials, so relevance scoring keeps
// working when no embedding API key is configured. Shared tokens land in
// shared buckets, so CosineSimilarity over these vectors tracks term overlap.
type KeywordEngine struct{}

// NewKeywordEngine creates a new keyword hashing engine.
func NewKeywordEngine() *KeywordEngine {
	return &KeywordEngine{}
}

// Embed generates a hashed bag-of-words vector for a single text.
func (e *KeywordEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, keywordDimensions)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%keywordDimensions]++
	}
	return vec, nil
}

// EmbedBatch generates vectors for multiple texts.
func (e *KeywordEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *KeywordEngine) Dimensions() int {
	return keywordDimensions
}

// Name returns the engine name.
func (e *KeywordEngine) Name() string {
	return "keyword"
}

// tokenize lowercases text and splits it into word tokens, dropping anything
// shorter than three characters.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
