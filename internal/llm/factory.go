package llm

import (
	"fmt"
	"os"

	"scout/internal/config"
	"scout/internal/core"
)

// ProviderConfig holds the resolved provider and API key.
type ProviderConfig struct {
	Provider Provider
	APIKey   string
	Model    string // Optional model override
}

// DefaultConfigPath returns the default path to .scout/config.json.
func DefaultConfigPath() string {
	return config.DefaultUserConfigPath()
}

// LoadConfigJSON loads provider configuration from a JSON config file.
// This delegates to the unified config.LoadUserConfig().
func LoadConfigJSON(path string) (*ProviderConfig, error) {
	userCfg, err := config.LoadUserConfig(path)
	if err != nil {
		return nil, err
	}

	providerStr, apiKey := userCfg.GetActiveProvider()
	if apiKey == "" {
		return nil, fmt.Errorf("no API key found in config")
	}

	return &ProviderConfig{
		Provider: Provider(providerStr),
		APIKey:   apiKey,
		Model:    userCfg.Model,
	}, nil
}

// DetectProvider checks .scout/config.json first, then environment variables.
// Priority: config.json > env vars (GROQ > OPENAI > ANTHROPIC > GEMINI)
func DetectProvider() (*ProviderConfig, error) {
	configPath := DefaultConfigPath()
	if cfg, err := LoadConfigJSON(configPath); err == nil && cfg.APIKey != "" {
		return cfg, nil
	}

	// Fall back to environment variables
	providers := []struct {
		envVar   string
		provider Provider
	}{
		{"GROQ_API_KEY", ProviderGroq},
		{"OPENAI_API_KEY", ProviderOpenAI},
		{"ANTHROPIC_API_KEY", ProviderAnthropic},
		{"GEMINI_API_KEY", ProviderGemini},
	}

	for _, p := range providers {
		if key := os.Getenv(p.envVar); key != "" {
			return &ProviderConfig{
				Provider: p.provider,
				APIKey:   key,
			}, nil
		}
	}

	return nil, fmt.Errorf("no API key found; configure .scout/config.json or set one of: GROQ_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY")
}

// NewClientFromEnv creates an LLM client based on config file or environment variables.
func NewClientFromEnv() (core.LLMClient, error) {
	cfg, err := DetectProvider()
	if err != nil {
		return nil, err
	}
	return NewClientFromConfig(cfg)
}

// NewClientFromConfig creates an LLM client from a provider config.
func NewClientFromConfig(cfg *ProviderConfig) (core.LLMClient, error) {
	switch cfg.Provider {
	case ProviderGroq:
		client := NewGroqClient(cfg.APIKey)
		if cfg.Model != "" {
			client.SetModel(cfg.Model)
		}
		return client, nil

	case ProviderOpenAI:
		client := NewOpenAIClient(cfg.APIKey)
		if cfg.Model != "" {
			client.SetModel(cfg.Model)
		}
		return client, nil

	case ProviderAnthropic:
		client := NewAnthropicClient(cfg.APIKey)
		if cfg.Model != "" {
			client.SetModel(cfg.Model)
		}
		return client, nil

	case ProviderGemini:
		client := NewGeminiClient(cfg.APIKey)
		if cfg.Model != "" {
			client.SetModel(cfg.Model)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
