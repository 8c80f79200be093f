package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// UserConfig holds ALL per-workspace scout settings from .scout/config.json.
// This is the single source of truth for API keys and user preferences.
//
// Supported models by provider:
//   - groq:      llama-3.1-8b-instant (default fast), llama-3.3-70b-versatile (synthesis)
//   - openai:    gpt-4o-mini (default), gpt-4o
//   - anthropic: claude-sonnet-4-5-20250514 (default)
//   - gemini:    gemini-2.5-flash (default), gemini-2.5-pro
type UserConfig struct {
	// Provider selection (groq, openai, anthropic, gemini)
	Provider string `json:"provider,omitempty"`

	// API keys for each provider
	APIKey          string `json:"api_key,omitempty"`           // Legacy: single key
	GroqAPIKey      string `json:"groq_api_key,omitempty"`      // Groq
	OpenAIAPIKey    string `json:"openai_api_key,omitempty"`    // OpenAI
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty"` // Anthropic/Claude
	GeminiAPIKey    string `json:"gemini_api_key,omitempty"`    // Google Gemini

	// Optional model override (see supported models above)
	Model string `json:"model,omitempty"`

	// Theme for the TUI ("light" or "dark")
	Theme string `json:"theme,omitempty"`

	// Default research topic for interactive mode
	DefaultTopic string `json:"default_topic,omitempty"`

	// Logging configuration (also read directly by the logging package)
	Logging *UserLoggingConfig `json:"logging,omitempty"`
}

// UserLoggingConfig is the logging section of .scout/config.json.
type UserLoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level,omitempty"`
	JSONFormat bool            `json:"json_format,omitempty"`
}

// DefaultUserConfigPath returns the default path to .scout/config.json.
func DefaultUserConfigPath() string {
	root, err := FindWorkspaceRoot()
	if err != nil {
		return ".scout/config.json"
	}
	return filepath.Join(root, ".scout", "config.json")
}

// FindWorkspaceRoot attempts to find the project root by looking for .scout or go.mod.
// If not found, returns the current working directory.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".scout")); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}

// LoadUserConfig loads configuration from .scout/config.json.
func LoadUserConfig(path string) (*UserConfig, error) {
	cfg := &UserConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return empty config if file doesn't exist
		}
		return nil, fmt.Errorf("failed to read user config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to .scout/config.json.
func (c *UserConfig) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write user config: %w", err)
	}

	return nil
}

// GetActiveProvider returns the provider and API key to use.
// Priority: explicit provider setting > first available key (groq > openai > anthropic > gemini)
func (c *UserConfig) GetActiveProvider() (provider string, apiKey string) {
	// If provider is explicitly set, use that provider's key
	if c.Provider != "" {
		switch c.Provider {
		case "groq":
			if c.GroqAPIKey != "" {
				return "groq", c.GroqAPIKey
			}
		case "openai":
			if c.OpenAIAPIKey != "" {
				return "openai", c.OpenAIAPIKey
			}
		case "anthropic":
			if c.AnthropicAPIKey != "" {
				return "anthropic", c.AnthropicAPIKey
			}
		case "gemini":
			if c.GeminiAPIKey != "" {
				return "gemini", c.GeminiAPIKey
			}
		}
	}

	// Check for provider-specific keys in priority order
	if c.GroqAPIKey != "" {
		return "groq", c.GroqAPIKey
	}
	if c.OpenAIAPIKey != "" {
		return "openai", c.OpenAIAPIKey
	}
	if c.AnthropicAPIKey != "" {
		return "anthropic", c.AnthropicAPIKey
	}
	if c.GeminiAPIKey != "" {
		return "gemini", c.GeminiAPIKey
	}

	// Legacy: single api_key field (assume groq for backward compatibility)
	if c.APIKey != "" {
		return "groq", c.APIKey
	}

	return "", ""
}

// GetLogging returns logging settings with defaults.
func (c *UserConfig) GetLogging() UserLoggingConfig {
	if c.Logging != nil {
		cfg := *c.Logging
		if cfg.Level == "" {
			cfg.Level = "info"
		}
		return cfg
	}
	return UserLoggingConfig{
		Level:     "info",
		DebugMode: false, // Production mode by default
	}
}

// GetDefaultTopic returns the interactive-mode default topic.
func (c *UserConfig) GetDefaultTopic() string {
	if c.DefaultTopic != "" {
		return c.DefaultTopic
	}
	return "AI in Healthcare"
}

// DefaultUserConfig returns a UserConfig with sensible defaults.
func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Provider: "groq",
		Theme:    "dark",
	}
}

// GlobalConfig is a convenience function to load config from the default path.
// Returns an empty config (with defaults available via Get* methods) if file doesn't exist.
func GlobalConfig() (*UserConfig, error) {
	return LoadUserConfig(DefaultUserConfigPath())
}
