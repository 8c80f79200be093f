package main

import (
	"context"
	"fmt"

	"scout/internal/config"
	"scout/internal/report"

	"github.com/spf13/cobra"
)

var (
	reportsLimit      int
	reportsShowFormat string
)

// reportsCmd groups the archive browsing commands
var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Browse archived research reports",
	Long: `Browse the local report archive.

Every finished research run is archived in a local database unless
--no-archive was given. These commands list, search, and reprint
archived reports.`,
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived reports, newest first",
	RunE:  runReportsList,
}

var reportsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print an archived report",
	Long: `Prints an archived report by its id.

Example:
  scout reports show 3f2a9c1d
  scout reports show --format json 3f2a9c1d`,
	Args: cobra.ExactArgs(1),
	RunE: runReportsShow,
}

var reportsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search archived reports by topic",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReportsSearch,
}

func init() {
	reportsListCmd.Flags().IntVarP(&reportsLimit, "limit", "n", 20, "Maximum number of reports to show")
	reportsSearchCmd.Flags().IntVarP(&reportsLimit, "limit", "n", 20, "Maximum number of reports to show")
	reportsShowCmd.Flags().StringVarP(&reportsShowFormat, "format", "f", "", "Report format: text, markdown, or json (defaults to the configured format)")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsSearchCmd)
}

// openArchive opens the report store at the configured archive path
func openArchive() (*config.Config, *report.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	store, err := report.NewStore(archivePath(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open report archive: %w", err)
	}
	return cfg, store, nil
}

func runReportsList(cmd *cobra.Command, args []string) error {
	_, store, err := openArchive()
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.List(context.Background(), reportsLimit)
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}
	printArchivedRows(rows)
	return nil
}

func runReportsSearch(cmd *cobra.Command, args []string) error {
	_, store, err := openArchive()
	if err != nil {
		return err
	}
	defer store.Close()

	query := args[0]
	rows, err := store.Search(context.Background(), query, reportsLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(rows) == 0 {
		fmt.Printf("No archived reports match %q\n", query)
		return nil
	}
	printArchivedRows(rows)
	return nil
}

func runReportsShow(cmd *cobra.Command, args []string) error {
	cfg, store, err := openArchive()
	if err != nil {
		return err
	}
	defer store.Close()

	rep, meta, err := store.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	format := cfg.Report.Format
	if reportsShowFormat != "" {
		format = reportsShowFormat
	}
	f, err := report.ParseFormat(format)
	if err != nil {
		return err
	}
	rendered, err := report.Render(rep, f)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	fmt.Print(rendered)
	fmt.Printf("\nArchived %s (%d words, %d complete / %d partial / %d failed subtasks)\n",
		meta.CreatedAt.Format("2006-01-02 15:04"), meta.WordCount,
		meta.Counts.Complete, meta.Counts.Partial, meta.Counts.Failed)
	return nil
}

// printArchivedRows renders archive entries as a fixed-width table
func printArchivedRows(rows []report.ArchivedReport) {
	if len(rows) == 0 {
		fmt.Println("No archived reports yet. Run 'scout research <topic>' to create one.")
		return
	}
	fmt.Printf("%-10s %-17s %7s %-11s %s\n", "ID", "CREATED", "WORDS", "SUBTASKS", "TOPIC")
	for _, r := range rows {
		subtasks := fmt.Sprintf("%d/%d/%d", r.Counts.Complete, r.Counts.Partial, r.Counts.Failed)
		topic := r.Topic
		if r.Degraded {
			topic += " [degraded]"
		}
		fmt.Printf("%-10s %-17s %7d %-11s %s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.WordCount, subtasks, topic)
	}
}
