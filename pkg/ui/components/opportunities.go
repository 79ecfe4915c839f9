// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// OpportunityRow represents a detected candidate in the list.
type OpportunityRow struct {
	Timestamp string
	Block     uint64
	Pair      string
	SellVenue string
	BuyVenue  string
	MarginBps int64
	NetProfit string
	RiskScore int
	Decision  string // "execute", "wait", "skip"
}

// OpportunitiesComponent renders the opportunities list.
type OpportunitiesComponent struct {
	rows    []OpportunityRow
	maxRows int
	offset  int
}

// NewOpportunitiesComponent creates a new opportunities component.
func NewOpportunitiesComponent(maxRows int) *OpportunitiesComponent {
	return &OpportunitiesComponent{
		rows:    make([]OpportunityRow, 0),
		maxRows: maxRows,
	}
}

// Add prepends a new opportunity to the list.
func (o *OpportunitiesComponent) Add(row OpportunityRow) {
	o.rows = append([]OpportunityRow{row}, o.rows...)
	if len(o.rows) > o.maxRows {
		o.rows = o.rows[:o.maxRows]
	}
}

// Clear clears all opportunities.
func (o *OpportunitiesComponent) Clear() {
	o.rows = make([]OpportunityRow, 0)
	o.offset = 0
}

// ScrollUp moves the view window up.
func (o *OpportunitiesComponent) ScrollUp() {
	if o.offset > 0 {
		o.offset--
	}
}

// ScrollDown moves the view window down.
func (o *OpportunitiesComponent) ScrollDown() {
	if o.offset < len(o.rows)-1 {
		o.offset++
	}
}

// View renders the opportunities component.
func (o *OpportunitiesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	executeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	skipStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	waitStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("OPPORTUNITIES"))
	sb.WriteString("\n\n")

	if len(o.rows) == 0 {
		sb.WriteString(dimStyle.Render("  No opportunities detected yet..."))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("  %-8s %9s  %-10s %-16s %7s %12s %5s  %s\n",
		"Time", "Block", "Pair", "Route", "Margin", "Net", "Risk", "Decision"))
	sb.WriteString(dimStyle.Render("  " + strings.Repeat("─", 88)))
	sb.WriteString("\n")

	visible := o.rows
	if o.offset < len(visible) {
		visible = visible[o.offset:]
	}
	for i, row := range visible {
		if i >= 10 {
			sb.WriteString(dimStyle.Render(fmt.Sprintf("  … %d more (↑↓ to scroll)", len(visible)-10)))
			sb.WriteString("\n")
			break
		}

		var style lipgloss.Style
		switch row.Decision {
		case "execute":
			style = executeStyle
		case "skip":
			style = skipStyle
		default:
			style = waitStyle
		}

		route := row.SellVenue + "→" + row.BuyVenue
		sb.WriteString(fmt.Sprintf("  %-8s %9d  %-10s %-16s %6db %12s %5d  %s\n",
			row.Timestamp,
			row.Block,
			row.Pair,
			route,
			row.MarginBps,
			row.NetProfit,
			row.RiskScore,
			style.Render(row.Decision),
		))
	}

	return sb.String()
}
