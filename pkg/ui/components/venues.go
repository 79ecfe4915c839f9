// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// VenueRow represents a venue's health in the table.
type VenueRow struct {
	Name        string
	State       string // "closed", "open", "half-open"
	Reliability float64
}

// VenuesComponent renders the venue health table.
type VenuesComponent struct {
	rows map[string]VenueRow
}

// NewVenuesComponent creates a new venues component.
func NewVenuesComponent() *VenuesComponent {
	return &VenuesComponent{
		rows: make(map[string]VenueRow),
	}
}

// Update records the latest health for a venue.
func (v *VenuesComponent) Update(row VenueRow) {
	v.rows[row.Name] = row
}

// View renders the venues component.
func (v *VenuesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	closedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	openStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	halfStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("VENUES"))
	sb.WriteString("\n\n")

	if len(v.rows) == 0 {
		sb.WriteString(dimStyle.Render("  No venue activity yet..."))
		return sb.String()
	}

	names := make([]string, 0, len(v.rows))
	for name := range v.rows {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString(fmt.Sprintf("  %-16s  %-10s  %s\n", "Venue", "Breaker", "Reliability"))
	sb.WriteString(dimStyle.Render("  " + strings.Repeat("─", 44)))
	sb.WriteString("\n")

	for _, name := range names {
		row := v.rows[name]

		var icon string
		var style lipgloss.Style
		switch row.State {
		case "open":
			icon, style = "✗", openStyle
		case "half-open":
			icon, style = "◐", halfStyle
		default:
			icon, style = "●", closedStyle
		}

		sb.WriteString(fmt.Sprintf("  %-16s  %s  %s\n",
			row.Name,
			style.Render(fmt.Sprintf("%s %-8s", icon, row.State)),
			dimStyle.Render(fmt.Sprintf("%5.1f%%", row.Reliability*100)),
		))
	}

	return sb.String()
}
