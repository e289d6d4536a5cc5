package watch

import "github.com/charmbracelet/lipgloss"

// Color palette mirrors the teacher's modern_tui.go scheme so the watch
// dashboard reads as part of the same tool family as the interactive agent
// CLI, not a bespoke one-off.
var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")

	headerStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(mutedColor).Padding(0, 1)
	paneStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(mutedColor).Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
)

// statusStyle returns the color a routing/execution status renders in.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "running":
		return lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	case "completed", "done":
		return lipgloss.NewStyle().Foreground(successColor)
	case "failed":
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(mutedColor)
	}
}
