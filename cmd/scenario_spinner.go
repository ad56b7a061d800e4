package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type taskDoneMsg struct{}

type taskSpinnerModel struct {
	spinner spinner.Model
	label   string
	status  func() string
	wait    tea.Cmd
	done    bool
}

func newTaskSpinnerModel(label string, status func() string, wait tea.Cmd) taskSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return taskSpinnerModel{
		spinner: s,
		label:   label,
		status:  status,
		wait:    wait,
	}
}

func (m taskSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.wait)
}

func (m taskSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case taskDoneMsg:
		m.done = true
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m taskSpinnerModel) View() string {
	if m.done {
		return ""
	}

	line := fmt.Sprintf("%s %s", m.spinner.View(), m.label)
	if m.status != nil {
		if status := m.status(); status != "" {
			line += "  " + status
		}
	}
	return line
}

// runWithSpinner runs task while a spinner animates on output, followed by
// the live status line when status is set. The task always runs to
// completion, even when ctx ends the spinner early.
func runWithSpinner(ctx context.Context, output io.Writer, label string, status func() string, task func(context.Context) error) error {
	var taskErr error
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		taskErr = task(ctx)
	}()

	waitCmd := func() tea.Msg {
		<-finished
		return taskDoneMsg{}
	}

	p := tea.NewProgram(
		newTaskSpinnerModel(label, status, waitCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	_, runErr := p.Run()
	<-finished

	if taskErr != nil {
		return taskErr
	}
	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("run spinner: %w", runErr)
	}
	return nil
}
