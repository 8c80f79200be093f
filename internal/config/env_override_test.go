package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("GROQ_API_KEY sets key and provider", func(t *testing.T) {
		clearLLMKeys(t)
		t.Setenv("GROQ_API_KEY", "groq-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "groq-key", cfg.LLM.APIKey)
		assert.Equal(t, "groq", cfg.LLM.Provider)
	})

	t.Run("Precedence: Full Chain", func(t *testing.T) {
		// 1. All set -> GROQ wins
		t.Run("All Set -> Groq", func(t *testing.T) {
			setAllLLMKeys(t)
			cfg := &Config{}
			cfg.applyEnvOverrides()
			assert.Equal(t, "groq", cfg.LLM.APIKey)
			assert.Equal(t, "groq", cfg.LLM.Provider)
		})

		// 2. No Groq -> OpenAI wins
		t.Run("No Groq -> OpenAI", func(t *testing.T) {
			setAllLLMKeys(t)
			t.Setenv("GROQ_API_KEY", "")
			cfg := &Config{}
			cfg.applyEnvOverrides()
			assert.Equal(t, "oa", cfg.LLM.APIKey)
			assert.Equal(t, "openai", cfg.LLM.Provider)
		})

		// 3. No OpenAI -> Anthropic wins
		t.Run("No OpenAI -> Anthropic", func(t *testing.T) {
			setAllLLMKeys(t)
			t.Setenv("GROQ_API_KEY", "")
			t.Setenv("OPENAI_API_KEY", "")
			cfg := &Config{}
			cfg.applyEnvOverrides()
			assert.Equal(t, "ant", cfg.LLM.APIKey)
			assert.Equal(t, "anthropic", cfg.LLM.Provider)
		})

		// 4. No Anthropic -> Gemini wins
		t.Run("No Anthropic -> Gemini", func(t *testing.T) {
			setAllLLMKeys(t)
			t.Setenv("GROQ_API_KEY", "")
			t.Setenv("OPENAI_API_KEY", "")
			t.Setenv("ANTHROPIC_API_KEY", "")
			cfg := &Config{}
			cfg.applyEnvOverrides()
			assert.Equal(t, "gem", cfg.LLM.APIKey)
			assert.Equal(t, "gemini", cfg.LLM.Provider)
		})
	})
}

func setAllLLMKeys(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "groq")
	t.Setenv("OPENAI_API_KEY", "oa")
	t.Setenv("ANTHROPIC_API_KEY", "ant")
	t.Setenv("GEMINI_API_KEY", "gem")
	t.Setenv("GENAI_API_KEY", "")
}

func TestEnvOverrides_Embedding(t *testing.T) {
	t.Run("GENAI_API_KEY sets key and provider", func(t *testing.T) {
		clearLLMKeys(t)
		t.Setenv("GENAI_API_KEY", "gen-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gen-key", cfg.Embedding.GenAIAPIKey)
		assert.Equal(t, "genai", cfg.Embedding.Provider)
	})

	t.Run("GEMINI_API_KEY fallback", func(t *testing.T) {
		clearLLMKeys(t)
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.Embedding.GenAIAPIKey)
		assert.Equal(t, "genai", cfg.Embedding.Provider)
	})

	t.Run("GENAI_API_KEY priority over GEMINI_API_KEY", func(t *testing.T) {
		clearLLMKeys(t)
		t.Setenv("GENAI_API_KEY", "gen-key")
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gen-key", cfg.Embedding.GenAIAPIKey)
	})
}

func TestEnvOverrides_Pipeline(t *testing.T) {
	clearLLMKeys(t)
	t.Setenv("SCOUT_SEARCH_ENDPOINT", "https://search.example/html")
	t.Setenv("SCOUT_FAST_MODEL", "fast-x")
	t.Setenv("SCOUT_SYNTHESIS_MODEL", "synth-x")
	t.Setenv("SCOUT_REPORT_DIR", "/tmp/out")
	t.Setenv("SCOUT_DB", "/tmp/test.db")

	cfg := &Config{}
	cfg.applyEnvOverrides()

	assert.Equal(t, "https://search.example/html", cfg.Search.Endpoint)
	assert.Equal(t, "fast-x", cfg.LLM.FastModel)
	assert.Equal(t, "synth-x", cfg.LLM.SynthesisModel)
	assert.Equal(t, "/tmp/out", cfg.Report.Dir)
	assert.Equal(t, "/tmp/test.db", cfg.Report.ArchivePath)
}
