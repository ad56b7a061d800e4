package status

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/imsim/internal/domain"
)

type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	user       lipgloss.Style
	detail     lipgloss.Style
	warning    lipgloss.Style
	section    lipgloss.Style
	empty      lipgloss.Style
	logTime    lipgloss.Style
	barBracket lipgloss.Style
	barFill    lipgloss.Style
	barEmpty   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:      lipgloss.NewStyle().Bold(true),
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		user:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		warning:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section:    lipgloss.NewStyle().MarginTop(1),
		empty:      lipgloss.NewStyle().Faint(true),
		logTime:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		barBracket: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		barFill:    lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}

var statusColors = map[domain.Status]lipgloss.Color{
	domain.StatusIdle:        lipgloss.Color("245"),
	domain.StatusConnecting:  lipgloss.Color("221"),
	domain.StatusHandshaking: lipgloss.Color("214"),
	domain.StatusOnline:      lipgloss.Color("42"),
	domain.StatusOffline:     lipgloss.Color("241"),
	domain.StatusKicked:      lipgloss.Color("203"),
}

var logColors = map[domain.LogKind]lipgloss.Color{
	domain.LogTx:   lipgloss.Color("111"),
	domain.LogRx:   lipgloss.Color("151"),
	domain.LogErr:  lipgloss.Color("203"),
	domain.LogWarn: lipgloss.Color("221"),
	domain.LogSys:  lipgloss.Color("250"),
}
