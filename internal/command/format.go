package command

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/kingrea/rolechain/internal/history"
	"github.com/kingrea/rolechain/internal/rolestate"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	statusStyles = map[string]lipgloss.Style{
		string(rolestate.StatusPending):   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		string(rolestate.StatusRunning):   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		string(rolestate.StatusCompleted): lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		string(rolestate.StatusFailed):    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		string(rolestate.StatusSkipped):   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		history.StatusWakeupTriggered:     lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	}
)

// styleStatus pads the status to width before colouring so columns align.
func styleStatus(status string, width int) string {
	padded := fmt.Sprintf("%-*s", width, status)
	if style, ok := statusStyles[status]; ok {
		return style.Render(padded)
	}
	return padded
}

// relative renders t against now ("3 minutes ago", "2 minutes from now").
func relative(t *time.Time, now time.Time, placeholder string) string {
	if t == nil {
		return placeholder
	}
	if t.Equal(now) {
		return "now"
	}
	return humanize.RelTime(*t, now, "ago", "from now")
}

func writeRoleTable(w io.Writer, rows []rolestate.RoleRow, skip func(string) bool, now time.Time) {
	nameWidth := len("ROLE")
	for _, row := range rows {
		if len(row.Name) > nameWidth {
			nameWidth = len(row.Name)
		}
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-*s  %-10s  %-18s  %-18s  %-6s  %s",
		nameWidth, "ROLE", "STATUS", "LAST RUN", "NEXT RUN", "ERRORS", "SKIP")))
	for _, row := range rows {
		var flags []string
		if skip != nil && skip(row.Name) {
			flags = append(flags, "marked")
		}
		if row.Deferred(now) {
			flags = append(flags, "deferred "+relative(row.SkipUntil, now, ""))
		}
		fmt.Fprintf(w, "%-*s  %s  %-18s  %-18s  %-6d  %s\n",
			nameWidth, row.Name,
			styleStatus(string(row.Status), 10),
			relative(row.LastRun, now, "never"),
			relative(row.NextRun, now, "unscheduled"),
			row.ErrorCount,
			strings.Join(flags, ", "))
	}
}

func writeHistory(w io.Writer, events []history.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no history yet"))
		return
	}
	for _, e := range events {
		line := fmt.Sprintf("%s  %-32s %s", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Role, styleStatus(e.Status, 16))
		if e.Output != "" {
			line += "  " + mutedStyle.Render(e.Output)
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}
