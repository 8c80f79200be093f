// Package config holds scout configuration. Two layers exist: the YAML
// application config (scout.yaml) and the per-workspace user config at
// .scout/config.json. Environment variables override both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all scout configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Pipeline shape: subtask and evidence bounds
	Research ResearchConfig `yaml:"research"`

	// Evidence collection fan-out
	Collector CollectorConfig `yaml:"collector"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Web search configuration
	Search SearchConfig `yaml:"search"`

	// Embedding engine for relevance scoring
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Report output and archive
	Report ReportConfig `yaml:"report"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ResearchConfig bounds the research plan and the synthesized report.
type ResearchConfig struct {
	MinSubtasks      int `yaml:"min_subtasks"`
	MaxSubtasks      int `yaml:"max_subtasks"`
	MaxSearchResults int `yaml:"max_search_results"` // Per-subtask evidence cap
	MinReportWords   int `yaml:"min_report_words"`
}

// CollectorConfig configures the concurrent evidence collector.
type CollectorConfig struct {
	// Global cap on in-flight search/fetch calls
	Concurrency int `yaml:"concurrency"`

	// Timeout for a single search or fetch call
	CallTimeout string `yaml:"call_timeout"`

	// Use a headless browser for page fetching instead of plain HTTP
	UseBrowser bool `yaml:"use_browser"`
}

// LLMConfig configures the LLM clients.
type LLMConfig struct {
	Provider       string `yaml:"provider"` // groq, openai, anthropic, gemini
	APIKey         string `yaml:"api_key"`
	FastModel      string `yaml:"fast_model"`      // Decomposition and relevance notes
	SynthesisModel string `yaml:"synthesis_model"` // Report generation
	Timeout        string `yaml:"timeout"`
}

// SearchConfig configures the web search tool.
type SearchConfig struct {
	Endpoint   string `yaml:"endpoint"`
	MaxResults int    `yaml:"max_results"`
	CacheTTL   string `yaml:"cache_ttl"`
	UserAgent  string `yaml:"user_agent"`
}

// EmbeddingConfig configures the embedding engine used for relevance scoring.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // genai, keyword
	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`
	TaskType    string `yaml:"task_type"`
}

// ReportConfig configures report rendering and persistence.
type ReportConfig struct {
	Dir         string `yaml:"dir"`
	Format      string `yaml:"format"` // txt, md, json
	ArchivePath string `yaml:"archive_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "scout",
		Version: "1.0.0",

		Research: ResearchConfig{
			MinSubtasks:      3,
			MaxSubtasks:      5,
			MaxSearchResults: 3,
			MinReportWords:   1000,
		},

		Collector: CollectorConfig{
			Concurrency: 5,
			CallTimeout: "90s",
			UseBrowser:  false,
		},

		LLM: LLMConfig{
			Provider:       "groq",
			FastModel:      "llama-3.1-8b-instant",
			SynthesisModel: "llama-3.3-70b-versatile",
			Timeout:        "120s",
		},

		Search: SearchConfig{
			Endpoint:   "https://html.duckduckgo.com/html",
			MaxResults: 3,
			CacheTTL:   "24h",
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},

		Embedding: EmbeddingConfig{
			Provider:   "keyword",
			GenAIModel: "gemini-embedding-001",
			TaskType:   "SEMANTIC_SIMILARITY",
		},

		Report: ReportConfig{
			Dir:         "reports",
			Format:      "txt",
			ArchivePath: ".scout/research.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "scout.log",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
// API keys are checked lowest priority first so the highest-priority
// provider with a key set wins: GROQ > OPENAI > ANTHROPIC > GEMINI.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "groq"
	}

	// Embedding key: GENAI_API_KEY preferred, GEMINI_API_KEY as fallback
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.Embedding.GenAIAPIKey == "" {
		c.Embedding.GenAIAPIKey = key
		c.Embedding.Provider = "genai"
	}
	if key := os.Getenv("GENAI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
		c.Embedding.Provider = "genai"
	}

	// Pipeline overrides
	if endpoint := os.Getenv("SCOUT_SEARCH_ENDPOINT"); endpoint != "" {
		c.Search.Endpoint = endpoint
	}
	if model := os.Getenv("SCOUT_FAST_MODEL"); model != "" {
		c.LLM.FastModel = model
	}
	if model := os.Getenv("SCOUT_SYNTHESIS_MODEL"); model != "" {
		c.LLM.SynthesisModel = model
	}
	if dir := os.Getenv("SCOUT_REPORT_DIR"); dir != "" {
		c.Report.Dir = dir
	}
	if path := os.Getenv("SCOUT_DB"); path != "" {
		c.Report.ArchivePath = path
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetCallTimeout returns the per-call collector timeout as a duration.
func (c *Config) GetCallTimeout() time.Duration {
	d, err := time.ParseDuration(c.Collector.CallTimeout)
	if err != nil {
		return 90 * time.Second
	}
	return d
}

// GetCacheTTL returns the search cache TTL as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Search.CacheTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"groq", "openai", "anthropic", "gemini"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GROQ_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, or GEMINI_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.Research.MinSubtasks < 1 {
		return fmt.Errorf("min_subtasks must be at least 1, got %d", c.Research.MinSubtasks)
	}
	if c.Research.MaxSubtasks < c.Research.MinSubtasks {
		return fmt.Errorf("max_subtasks (%d) must be >= min_subtasks (%d)", c.Research.MaxSubtasks, c.Research.MinSubtasks)
	}
	if c.Research.MaxSearchResults < 1 {
		return fmt.Errorf("max_search_results must be at least 1, got %d", c.Research.MaxSearchResults)
	}
	if c.Research.MinReportWords < 1 {
		return fmt.Errorf("min_report_words must be at least 1, got %d", c.Research.MinReportWords)
	}
	if c.Collector.Concurrency < 1 {
		return fmt.Errorf("collector concurrency must be at least 1, got %d", c.Collector.Concurrency)
	}

	return nil
}

// IsBrowserEnabled returns whether headless-browser fetching is enabled.
func (c *Config) IsBrowserEnabled() bool {
	return c.Collector.UseBrowser
}
