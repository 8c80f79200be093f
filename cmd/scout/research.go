package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"scout/internal/config"
	"scout/internal/embedding"
	"scout/internal/llm"
	"scout/internal/logging"
	"scout/internal/report"
	"scout/internal/research"
	"scout/internal/webtool"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	researchOutput    string
	researchFormat    string
	researchNoSave    bool
	researchNoArchive bool
	researchFast      bool
	researchBrowser   bool
)

// researchCmd runs the full pipeline for a single topic
var researchCmd = &cobra.Command{
	Use:   "research [topic]",
	Short: "Research a topic and produce a referenced report",
	Long: `Runs the full research pipeline for a topic:
  1. Decompose: split the topic into focused subtasks with search terms
  2. Collect: gather web evidence for every subtask concurrently
  3. Synthesize: write a structured report grounded in the evidence

The finished report is printed, saved to the report directory, and archived
in the local report database.

Example:
  scout research "solid state battery manufacturing"
  scout research --format json --output ./out "fusion energy timelines"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().StringVarP(&researchOutput, "output", "o", "", "Directory for the saved report (defaults to the configured report dir)")
	researchCmd.Flags().StringVarP(&researchFormat, "format", "f", "", "Report format: text, markdown, or json (defaults to the configured format)")
	researchCmd.Flags().BoolVar(&researchNoSave, "no-save", false, "Print the report without writing it to disk")
	researchCmd.Flags().BoolVar(&researchNoArchive, "no-archive", false, "Skip archiving the report in the local database")
	researchCmd.Flags().BoolVar(&researchFast, "fast", false, "Use shortened stage timeouts")
	researchCmd.Flags().BoolVar(&researchBrowser, "browser", false, "Fetch pages with a headless browser")
}

// runResearch executes one research run end to end
func runResearch(cmd *cobra.Command, args []string) error {
	topic := strings.Join(args, " ")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w (run 'scout config init' and set an API key)", err)
	}

	if researchFast {
		config.SetPipelineTimeouts(config.FastPipelineTimeouts())
	}
	timeouts := config.GetPipelineTimeouts()

	runTimeout := timeout
	if runTimeout == 0 {
		runTimeout = timeouts.RunTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nResearch cancelled")
			cancel()
		case <-ctx.Done():
		}
	}()

	pipe, cleanup, err := buildPipeline(cfg, timeouts, researchBrowser || cfg.IsBrowserEnabled())
	if err != nil {
		return err
	}
	defer cleanup()

	// Progress callbacks run on this goroutine inside Run, so plain
	// variable capture is safe here.
	var lastResults []research.SubtaskResult
	pipe.OnProgress(func(p research.Progress) {
		if len(p.Results) > 0 {
			lastResults = p.Results
		}
		printProgress(p)
	})

	logger.Info("Starting research run",
		zap.String("topic", topic),
		zap.String("provider", cfg.LLM.Provider),
		zap.Duration("timeout", runTimeout))

	rep, err := pipe.Run(ctx, topic)
	if err != nil {
		var invalid *research.InvalidInputError
		if errors.As(err, &invalid) {
			return fmt.Errorf("invalid topic: %w", err)
		}
		return fmt.Errorf("research failed: %w", err)
	}

	format := cfg.Report.Format
	if researchFormat != "" {
		format = researchFormat
	}
	f, err := report.ParseFormat(format)
	if err != nil {
		return err
	}
	rendered, err := report.Render(rep, f)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	fmt.Println()
	fmt.Print(rendered)
	fmt.Println()

	complete, partial, failed := research.CountStatuses(lastResults)
	fmt.Printf("✓ %d subtasks researched (%d complete, %d partial, %d failed), %d references\n",
		len(lastResults), complete, partial, failed, len(rep.References))
	if rep.Degraded {
		fmt.Println("  Note: the report is degraded; some evidence or synthesis steps fell back.")
	}
	logger.Info("Research run complete",
		zap.String("topic", topic),
		zap.Bool("degraded", rep.Degraded),
		zap.Int("references", len(rep.References)),
		zap.Int("subtasks", len(lastResults)))

	if !researchNoSave {
		dir := cfg.Report.Dir
		if researchOutput != "" {
			dir = researchOutput
		}
		path, err := report.Save(rep, report.SaveOptions{Dir: dir, Format: f})
		if err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		fmt.Printf("✓ Report saved to %s\n", path)
		logger.Info("Report written", zap.String("path", path))
	}

	if !researchNoArchive {
		if err := archiveReport(ctx, cfg, rep, lastResults); err != nil {
			logger.Warn("Failed to archive report", zap.Error(err))
			fmt.Fprintf(os.Stderr, "warning: report not archived: %v\n", err)
		} else {
			fmt.Println("✓ Report archived (see 'scout reports list')")
		}
	}

	return nil
}

// printProgress reports pipeline state transitions on stdout
func printProgress(p research.Progress) {
	switch p.State {
	case research.StateDecomposing:
		fmt.Println("→ Decomposing topic into subtasks...")
	case research.StateCollecting:
		fmt.Println("→ Collecting evidence...")
	case research.StateSynthesizing:
		complete, partial, failed := research.CountStatuses(p.Results)
		fmt.Printf("→ Synthesizing report (%d complete, %d partial, %d failed subtasks)...\n",
			complete, partial, failed)
	case research.StateAborted:
		fmt.Println("✗ Research aborted")
	}
}

// buildPipeline wires the configured LLM, search, fetch, and scoring
// components into a runnable pipeline. The returned cleanup releases any
// browser the fetcher holds.
func buildPipeline(cfg *config.Config, timeouts config.PipelineTimeouts, useBrowser bool) (*research.Pipeline, func(), error) {
	provider := llm.Provider(cfg.LLM.Provider)

	fastClient, err := llm.NewClientFromConfig(&llm.ProviderConfig{
		Provider: provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.FastModel,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create decomposition client: %w", err)
	}

	synthClient, err := llm.NewClientFromConfig(&llm.ProviderConfig{
		Provider: provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.SynthesisModel,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create synthesis client: %w", err)
	}

	engine, err := embedding.NewEngine(embedding.Config{
		Provider:    cfg.Embedding.Provider,
		GenAIAPIKey: cfg.Embedding.GenAIAPIKey,
		GenAIModel:  cfg.Embedding.GenAIModel,
		TaskType:    cfg.Embedding.TaskType,
	})
	if err != nil {
		logging.Boot("Embedding engine unavailable, scoring by keyword overlap: %v", err)
		engine = embedding.NewKeywordEngine()
	}

	cache, err := webtool.NewPersistentCache(512, cfg.GetCacheTTL(), filepath.Join(workspace, ".scout", "cache"))
	if err != nil {
		logging.Boot("Persistent web cache unavailable, falling back to memory: %v", err)
		cache = webtool.NewResearchCache(512, cfg.GetCacheTTL())
	}

	searchTool := webtool.NewWebSearchTool(webtool.SearchOptions{
		Endpoint:   cfg.Search.Endpoint,
		UserAgent:  cfg.Search.UserAgent,
		MaxResults: cfg.Search.MaxResults,
		Timeout:    timeouts.SearchCallTimeout,
		Cache:      cache,
	})

	var browser *webtool.BrowserFetcher
	cleanup := func() {}
	if useBrowser {
		browser = webtool.NewBrowserFetcher(timeouts.FetchCallTimeout)
		cleanup = func() { _ = browser.Shutdown() }
	}

	fetcher := webtool.NewPageFetcher(webtool.FetchOptions{
		UserAgent: cfg.Search.UserAgent,
		Timeout:   timeouts.FetchCallTimeout,
		Cache:     cache,
		Browser:   browser,
	})

	rcfg := research.Config{
		MinSubtasks:      cfg.Research.MinSubtasks,
		MaxSubtasks:      cfg.Research.MaxSubtasks,
		MaxSearchResults: cfg.Research.MaxSearchResults,
		MinReportWords:   cfg.Research.MinReportWords,
		Concurrency:      cfg.Collector.Concurrency,
		CallTimeout:      cfg.GetCallTimeout(),
		LLMTimeout:       timeouts.LLMCallTimeout,
		RetryBackoff:     timeouts.RetryBackoffBase,
	}

	scorer := research.NewRelevanceScorer(engine)
	pipe, err := research.NewPipeline(rcfg,
		research.NewDecomposer(fastClient, rcfg),
		research.NewCollector(searchTool, fetcher, scorer, rcfg),
		research.NewSynthesizer(synthClient, rcfg))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return pipe, cleanup, nil
}

// archiveReport stores a finished report in the local archive database
func archiveReport(ctx context.Context, cfg *config.Config, rep *research.Report, results []research.SubtaskResult) error {
	store, err := report.NewStore(archivePath(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	complete, partial, failed := research.CountStatuses(results)
	_, err = store.Archive(ctx, rep, report.StatusCounts{
		Complete: complete,
		Partial:  partial,
		Failed:   failed,
	})
	return err
}

// archivePath resolves the archive database location against the workspace
func archivePath(cfg *config.Config) string {
	path := cfg.Report.ArchivePath
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}
