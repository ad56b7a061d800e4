package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/imsim/internal/domain"
)

type RenderOptions struct {
	Now time.Time
	// StaleAfter marks non-terminal sessions whose status has not changed for
	// this long. Zero disables the check.
	StaleAfter time.Duration
	// LogLines is the number of newest log entries shown per session.
	LogLines int
}

func renderView(sessions []domain.SessionStatus, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("IM Gateway Sessions"),
		s.header.Render(summaryLine(sessions)),
	}

	if len(sessions) == 0 {
		lines = append(lines, s.empty.Render("No sessions."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	lines = append(lines, onlineLine(sessions, s))
	for _, session := range sessions {
		lines = append(lines, s.section.Render(renderSession(session, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func summaryLine(sessions []domain.SessionStatus) string {
	counts := domain.CountByStatus(sessions)
	parts := []string{fmt.Sprintf("sessions: %d", len(sessions))}
	for _, status := range domain.AllStatuses {
		if n := counts[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", status, n))
		}
	}
	return strings.Join(parts, "  ")
}

func onlineLine(sessions []domain.SessionStatus, s styles) string {
	online := domain.CountByStatus(sessions)[domain.StatusOnline]
	percent := 100 * float64(online) / float64(len(sessions))
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.detail.Render("online:"),
		" ",
		renderProgressBar(percent, 24, s),
		" ",
		lipgloss.NewStyle().Foreground(interpolateColor(percent, 0, 100)).Render(fmt.Sprintf("%3.0f%%", percent)),
	)
}

func renderSession(session domain.SessionStatus, opts RenderOptions, s styles) string {
	statusStyle := lipgloss.NewStyle().Bold(true).Foreground(statusColor(session.Status))
	title := lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.user.Render(fmt.Sprintf("User %s", session.UserID)),
		" ",
		statusStyle.Render(fmt.Sprintf("[%s]", session.Status)),
	)
	if isStale(session, opts) {
		title += " " + s.warning.Render("[stale]")
	}

	parts := []string{title, s.detail.Render(detailLine(session, opts.Now))}
	for _, entry := range newestLogs(session.Logs, opts.LogLines) {
		parts = append(parts, logLine(entry, s))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func detailLine(session domain.SessionStatus, now time.Time) string {
	parts := []string{
		fmt.Sprintf("device: %s", deviceLabel(session.DeviceType)),
		fmt.Sprintf("seq: %d", session.Cursor),
	}
	if session.Gateway != "" {
		parts = append(parts, fmt.Sprintf("gateway: %s", session.Gateway))
	}
	if session.LastGroupID != 0 {
		parts = append(parts, fmt.Sprintf("group: %d", session.LastGroupID))
	}
	if !now.IsZero() && !session.UpdatedAt.IsZero() {
		parts = append(parts, "updated "+formatAge(session.UpdatedAt, now))
	}
	return strings.Join(parts, "  ")
}

func deviceLabel(device domain.DeviceType) string {
	if device == domain.DeviceUnknown {
		return "n/a"
	}
	return device.String()
}

func isStale(session domain.SessionStatus, opts RenderOptions) bool {
	if opts.StaleAfter <= 0 || opts.Now.IsZero() || session.UpdatedAt.IsZero() {
		return false
	}
	if session.Status.Terminal() || session.Status == domain.StatusOnline || session.Status == domain.StatusIdle {
		return false
	}
	return opts.Now.Sub(session.UpdatedAt) > opts.StaleAfter
}

func newestLogs(entries []domain.LogEntry, n int) []domain.LogEntry {
	if n <= 0 {
		return nil
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func logLine(entry domain.LogEntry, s styles) string {
	textStyle := lipgloss.NewStyle().Foreground(logColor(entry.Kind))
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		"  ",
		s.logTime.Render(entry.Time.Format("15:04:05")),
		" ",
		textStyle.Render(fmt.Sprintf("%-4s %s", entry.Kind, entry.Text)),
	)
}

func statusColor(status domain.Status) lipgloss.Color {
	if c, ok := statusColors[status]; ok {
		return c
	}
	return lipgloss.Color("255")
}

func logColor(kind domain.LogKind) lipgloss.Color {
	if c, ok := logColors[kind]; ok {
		return c
	}
	return lipgloss.Color("252")
}

func formatAge(at, now time.Time) string {
	if at.After(now) {
		return "just now"
	}
	age := now.Sub(at)
	switch {
	case age < time.Second:
		return "just now"
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	}
}

func renderProgressBar(filledPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampPercent(filledPercent) / 100.0))
	filled = max(0, min(filled, width))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// interpolateColor maps value onto the 240..255 greyscale ramp.
func interpolateColor(value, lo, hi float64) lipgloss.Color {
	if hi == lo {
		return lipgloss.Color("255")
	}

	normalized := (value - lo) / (hi - lo)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	return lipgloss.Color(fmt.Sprintf("%d", int(240.0+15.0*normalized)))
}
