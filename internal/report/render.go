package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"scout/internal/research"
)

// Format selects how a report is rendered for saving or display.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat maps user-facing format names (including file extensions)
// onto a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt", "":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want text, markdown, or json)", s)
	}
}

// Extension returns the file extension for a format, dot included.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// Render produces the report in the requested format.
func Render(r *research.Report, format Format) (string, error) {
	switch format {
	case FormatText:
		return renderText(r), nil
	case FormatMarkdown:
		return renderMarkdown(r), nil
	case FormatJSON:
		out, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode report: %w", err)
		}
		return string(out) + "\n", nil
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
}

const divider = "=================================================="

func renderText(r *research.Report) string {
	var b strings.Builder

	b.WriteString(divider + "\n")
	b.WriteString("RESEARCH REPORT\n")
	b.WriteString(divider + "\n\n")

	fmt.Fprintf(&b, "Research Topic: %s\n", r.Topic)
	if r.Degraded {
		b.WriteString("[!] Degraded: some evidence or generation steps failed; see the synthesis for gaps.\n")
	}

	b.WriteString("\nResearch Objectives:\n")
	for i, objective := range r.Objectives {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, objective)
	}

	b.WriteString("\n" + divider + "\n")
	b.WriteString("Synthesis\n")
	b.WriteString(divider + "\n\n")
	b.WriteString(strings.TrimSpace(r.Synthesis))
	b.WriteString("\n")

	b.WriteString("\n" + divider + "\n")
	b.WriteString("References\n")
	b.WriteString(divider + "\n\n")
	if len(r.References) == 0 {
		b.WriteString("  (none)\n")
	}
	for i, ref := range r.References {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, ref)
	}

	return b.String()
}

// renderMarkdown returns the synthesis itself, which is already a complete
// markdown document, with a degradation note prepended when needed.
func renderMarkdown(r *research.Report) string {
	if !r.Degraded {
		return strings.TrimSpace(r.Synthesis) + "\n"
	}
	return "> Note: this report is degraded. Some evidence could not be gathered or the full synthesis could not be generated.\n\n" +
		strings.TrimSpace(r.Synthesis) + "\n"
}
