package console

import "github.com/charmbracelet/lipgloss"

var (
	colorCaregiver = lipgloss.Color("39")
	colorContact   = lipgloss.Color("252")
	colorAgent     = lipgloss.Color("141")
	colorMuted     = lipgloss.Color("244")
	colorAlert     = lipgloss.Color("203")
	colorOK        = lipgloss.Color("42")

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	roleStyles = map[string]lipgloss.Style{
		"user":      lipgloss.NewStyle().Foreground(colorCaregiver).Bold(true),
		"caregiver": lipgloss.NewStyle().Foreground(colorCaregiver).Bold(true),
		"contact":   lipgloss.NewStyle().Foreground(colorContact).Bold(true),
		"agent":     lipgloss.NewStyle().Foreground(colorAgent).Bold(true),
	}

	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle = lipgloss.NewStyle().Foreground(colorAlert)

	alertBanner = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(colorAlert).
			Padding(0, 1)

	agentBadge     = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(colorAgent).Padding(0, 1)
	caregiverBadge = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(colorOK).Padding(0, 1)

	dictationStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAgent).
			Padding(0, 1)
)

func roleStyle(role string) lipgloss.Style {
	if s, ok := roleStyles[role]; ok {
		return s
	}
	return mutedStyle
}
