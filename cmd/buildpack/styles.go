package main

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	accent  = lipgloss.Color("#8BC34A") // Lime Green
	muted   = lipgloss.Color("#6b7280")
	warning = lipgloss.Color("#FFC107")
	danger  = lipgloss.Color("#e53935")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle = lipgloss.NewStyle().Foreground(muted)
	warnStyle  = lipgloss.NewStyle().Foreground(warning)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(danger)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(0, 1)
)

// table renders rows as two aligned columns.
func table(rows [][2]string) string {
	width := 0
	for _, r := range rows {
		if w := lipgloss.Width(r[0]); w > width {
			width = w
		}
	}
	col := lipgloss.NewStyle().Width(width + 2)
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, col.Render(r[0]), r[1]))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
