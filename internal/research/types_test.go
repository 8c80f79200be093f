package research

import (
	"strings"
	"testing"
)

// === CONFIG TESTS ===

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate, got: %v", err)
	}
	if cfg.MinSubtasks > cfg.MaxSubtasks {
		t.Errorf("MinSubtasks %d exceeds MaxSubtasks %d", cfg.MinSubtasks, cfg.MaxSubtasks)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	mutate := func(fn func(*Config)) Config {
		cfg := DefaultConfig()
		fn(&cfg)
		return cfg
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"valid default", DefaultConfig(), ""},
		{"zero min subtasks", mutate(func(c *Config) { c.MinSubtasks = 0 }), "min subtasks"},
		{"negative max subtasks", mutate(func(c *Config) { c.MaxSubtasks = -1 }), "max subtasks"},
		{"min above max", mutate(func(c *Config) { c.MinSubtasks = 9 }), "must be >= min subtasks"},
		{"zero search results", mutate(func(c *Config) { c.MaxSearchResults = 0 }), "search results"},
		{"zero report words", mutate(func(c *Config) { c.MinReportWords = 0 }), "report words"},
		{"zero concurrency", mutate(func(c *Config) { c.Concurrency = 0 }), "concurrency"},
		{"zero call timeout", mutate(func(c *Config) { c.CallTimeout = 0 }), "call timeout"},
		{"zero llm timeout", mutate(func(c *Config) { c.LLMTimeout = 0 }), "llm timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid config, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

// === STATUS TESTS ===

func TestCountStatuses(t *testing.T) {
	t.Parallel()

	results := []SubtaskResult{
		{Status: StatusComplete},
		{Status: StatusPartial},
		{Status: StatusComplete},
		{Status: StatusFailed},
		{Status: StatusPartial},
	}

	complete, partial, failed := CountStatuses(results)
	if complete != 2 || partial != 2 || failed != 1 {
		t.Errorf("got complete=%d partial=%d failed=%d, want 2/2/1", complete, partial, failed)
	}
}

func TestCountStatuses_Empty(t *testing.T) {
	t.Parallel()

	complete, partial, failed := CountStatuses(nil)
	if complete != 0 || partial != 0 || failed != 0 {
		t.Errorf("empty results should count 0/0/0, got %d/%d/%d", complete, partial, failed)
	}
}
