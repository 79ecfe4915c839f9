// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ExecutionRow represents a finished execution attempt.
type ExecutionRow struct {
	Timestamp string
	Pair      string
	SellVenue string
	BuyVenue  string
	Outcome   string // "executed", "reverted", "aborted", "failed", "dry-run"
	TxHash    string
	Reason    string
}

// ExecutionsComponent renders the execution journal.
type ExecutionsComponent struct {
	rows    []ExecutionRow
	maxRows int
}

// NewExecutionsComponent creates a new executions component.
func NewExecutionsComponent(maxRows int) *ExecutionsComponent {
	return &ExecutionsComponent{
		rows:    make([]ExecutionRow, 0),
		maxRows: maxRows,
	}
}

// Add prepends a finished attempt to the journal.
func (e *ExecutionsComponent) Add(row ExecutionRow) {
	e.rows = append([]ExecutionRow{row}, e.rows...)
	if len(e.rows) > e.maxRows {
		e.rows = e.rows[:e.maxRows]
	}
}

// View renders the executions component.
func (e *ExecutionsComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	badStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("EXECUTIONS"))
	sb.WriteString("\n\n")

	if len(e.rows) == 0 {
		sb.WriteString(dimStyle.Render("  No executions yet..."))
		return sb.String()
	}

	for i, row := range e.rows {
		if i >= 6 {
			sb.WriteString(dimStyle.Render(fmt.Sprintf("  … %d more", len(e.rows)-6)))
			sb.WriteString("\n")
			break
		}

		var icon string
		var style lipgloss.Style
		switch row.Outcome {
		case "executed":
			icon, style = "✓", okStyle
		case "dry-run":
			icon, style = "◌", dimStyle
		case "aborted":
			icon, style = "↩", warnStyle
		default:
			icon, style = "✗", badStyle
		}

		route := row.SellVenue + "→" + row.BuyVenue
		line := fmt.Sprintf("  %s [%s] %s %s %s",
			style.Render(icon), row.Timestamp, row.Pair, route, style.Render(row.Outcome))
		if row.TxHash != "" {
			line += dimStyle.Render(" " + shortHash(row.TxHash))
		}
		sb.WriteString(line)
		sb.WriteString("\n")
		if row.Reason != "" {
			sb.WriteString(dimStyle.Render("      " + row.Reason))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:8] + "…" + h[len(h)-4:]
}
