package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"scout/internal/logging"
	"scout/internal/research"
)

// DefaultDir is where reports land when no directory is configured.
const DefaultDir = "reports"

// SaveOptions control where and how a report file is written.
type SaveOptions struct {
	Dir    string
	Format Format
}

// Save renders the report and writes it under opts.Dir as
// <topic>_<timestamp><ext>. It returns the written path.
func Save(r *research.Report, opts SaveOptions) (string, error) {
	dir := opts.Dir
	if dir == "" {
		dir = DefaultDir
	}
	format := opts.Format
	if format == "" {
		format = FormatText
	}

	content, err := Render(r, format)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s%s", safeTopic(r.Topic), time.Now().Format("20060102_150405"), format.Extension())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	logging.Report("Saved report for %q to %s", r.Topic, path)
	logging.Audit().ReportSaved(path)
	return path, nil
}

// safeTopic reduces a topic to a filesystem-safe filename stem: letters,
// digits, dashes and underscores survive, spaces become underscores,
// everything else is dropped.
func safeTopic(topic string) string {
	var b strings.Builder
	for _, r := range topic {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" {
		return "report"
	}
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}
