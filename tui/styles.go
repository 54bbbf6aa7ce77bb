package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles of the terminal UI.
type Styles struct {
	Title      lipgloss.Style
	User       lipgloss.Style
	Assistant  lipgloss.Style
	Timestamp  lipgloss.Style
	Source     lipgloss.Style
	SourceMeta lipgloss.Style
	Hint       lipgloss.Style
	Notice     lipgloss.Style
	Up         lipgloss.Style
	Down       lipgloss.Style
	Unknown    lipgloss.Style
	StatusBar  lipgloss.Style
	InputBox   lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		User:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Assistant:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Timestamp:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Source:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		SourceMeta: lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true),
		Hint:       lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		Notice:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Up:         lipgloss.NewStyle().Foreground(lipgloss.Color("42")),  // Green
		Down:       lipgloss.NewStyle().Foreground(lipgloss.Color("196")), // Red
		Unknown:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")), // Grey
		StatusBar:  lipgloss.NewStyle().Padding(0, 1),
		InputBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
	}
}
