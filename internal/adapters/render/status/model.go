package status

import (
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bnema/imsim/internal/domain"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

// snapshotMsg delivers the session table the program should draw.
type snapshotMsg struct {
	sessions []domain.SessionStatus
}

// model draws exactly one snapshot, taken when the program starts, and quits.
type model struct {
	take   func() []domain.SessionStatus
	opts   RenderOptions
	styles styles
	output string
}

func (m model) Init() tea.Cmd {
	take := m.take
	return func() tea.Msg {
		return snapshotMsg{sessions: take()}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	snap, ok := msg.(snapshotMsg)
	if !ok {
		return m, nil
	}
	m.output = renderView(snap.sessions, m.opts, m.styles)
	return m, tea.Quit
}

func (m model) View() string {
	return m.output
}

// Render draws a session snapshot once and returns it as a string.
func Render(sessions []domain.SessionStatus, opts RenderOptions) (string, error) {
	return renderOnce(func() []domain.SessionStatus { return sessions }, opts)
}

func renderOnce(take func() []domain.SessionStatus, opts RenderOptions) (string, error) {
	p := tea.NewProgram(
		model{take: take, opts: opts, styles: newStyles()},
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	final, err := p.Run()
	if err != nil {
		return "", err
	}
	drawn, ok := final.(model)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}
	return drawn.View(), nil
}
