package main

import (
	"fmt"
	"os"

	"scout/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configCmd groups configuration management commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the scout configuration",
	Long: `Manage the scout configuration file.

Settings resolve in three layers: built-in defaults, the YAML config file,
and environment variables (GROQ_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY,
GEMINI_API_KEY, SCOUT_SEARCH_ENDPOINT, SCOUT_FAST_MODEL,
SCOUT_SYNTHESIS_MODEL, SCOUT_REPORT_DIR, SCOUT_DB). Later layers win.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Writes a configuration file with the default settings.

Example:
  scout config init
  scout config init --config ./custom.yaml --force`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !configForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("✓ Wrote default config to %s\n", configPath)
	fmt.Println("  Set an API key via the llm.api_key field or an environment")
	fmt.Println("  variable (GROQ_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY,")
	fmt.Println("  GEMINI_API_KEY), then run 'scout research <topic>'.")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Never echo credentials
	masked := *cfg
	masked.LLM.APIKey = maskKey(cfg.LLM.APIKey)
	masked.Embedding.GenAIAPIKey = maskKey(cfg.Embedding.GenAIAPIKey)

	out, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	fmt.Printf("# Effective config (file: %s)\n", configPath)
	fmt.Print(string(out))

	if err := cfg.Validate(); err != nil {
		fmt.Printf("\nwarning: %v\n", err)
	}
	return nil
}

// maskKey hides all but the last four characters of a credential
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
