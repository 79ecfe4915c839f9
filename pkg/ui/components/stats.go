// Package components provides reusable TUI components.
package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds engine counters for display.
type Stats struct {
	Ticks         int64
	PairsScanned  int
	Detected      int64
	Dispatched    int64
	Executed      int64
	Failed        int64
	Skipped       int64
	Errors        int64
	LastTickMs    float64
	ExpiredPurged int64
}

// StatsComponent renders statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// Update updates the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	hitRate := float64(0)
	if s.stats.Detected > 0 {
		hitRate = float64(s.stats.Executed) / float64(s.stats.Detected) * 100
	}

	errorsDisplay := valueStyle.Render(fmt.Sprintf("%d", s.stats.Errors))
	if s.stats.Errors > 0 {
		errorsDisplay = errorStyle.Render(fmt.Sprintf("%d", s.stats.Errors))
	}

	return style.Render("STATS") + "\n" +
		fmt.Sprintf("Ticks: %s  │  Detected: %s  │  Dispatched: %s  │  Executed: %s (%.1f%%)\n",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Ticks)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Detected)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Dispatched)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Executed)),
			hitRate,
		) +
		fmt.Sprintf("Failed: %s  │  Skipped: %s  │  Purged: %s  │  Last tick: %s  │  Errors: %s",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Failed)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Skipped)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.ExpiredPurged)),
			valueStyle.Render(fmt.Sprintf("%.0fms", s.stats.LastTickMs)),
			errorsDisplay,
		)
}
