package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/burrowapp/burrow/progress"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func statusMark(ok bool) string {
	if ok {
		return okStyle.Render("OK")
	}
	return failStyle.Render("FAIL")
}

func writeJSONOut(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printJSON(v any) error {
	return writeJSONOut(os.Stdout, v)
}

// progressBar renders processed/total as a fixed-width bar.
func progressBar(processed, total, width int) string {
	if total <= 0 {
		return "[" + strings.Repeat("░", width) + "]"
	}
	filled := processed * width / total
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// progressLine renders a one-line summary of p.
func progressLine(p progress.Progress) string {
	if !p.Running {
		if p.LastResult == "" {
			return "Idle"
		}
		return "Idle: " + p.LastResult
	}

	switch p.Phase {
	case progress.PhaseScanning:
		return "Scanning files..."
	case progress.PhaseCleanup:
		return fmt.Sprintf("Cleaning up (%d/%d processed, %d errors)", p.Processed, p.Total, p.Errors)
	}

	line := fmt.Sprintf("%s %d/%d", progressBar(p.Processed, p.Total, 30), p.Processed, p.Total)
	if p.Errors > 0 {
		line += failStyle.Render(fmt.Sprintf(" (%d errors)", p.Errors))
	}
	if p.CurrentFile != "" {
		line += " " + dimStyle.Render(p.CurrentFile)
	}
	return line
}
