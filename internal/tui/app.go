// internal/tui/app.go
//
// Read-only dashboard for the role chain. It renders the persisted snapshot
// rather than a live engine so it can sit next to `rolechain serve` or any
// CLI invocation that writes state.
//
// The board reloads whenever the snapshot file changes and on a slow tick
// as a fallback (SQLite writes land in the WAL, not the watched file).

package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/kingrea/rolechain/internal/history"
	"github.com/kingrea/rolechain/internal/rolestate"
	"github.com/kingrea/rolechain/internal/snapshot"
)

const boardRefreshInterval = 3 * time.Second

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).MarginTop(1)
)

type snapshotMsg struct {
	snap snapshot.Snapshot
	err  error
}

type changedMsg struct{}

type tickMsg time.Time

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithChanges feeds file-change notifications into the board.
func WithChanges(ch <-chan struct{}) AppOption {
	return func(a *App) {
		a.changes = ch
	}
}

// WithClock controls relative time rendering.
func WithClock(clock func() time.Time) AppOption {
	return func(a *App) {
		if clock != nil {
			a.now = clock
		}
	}
}

// WithWindow sets how many history events are listed.
func WithWindow(n int) AppOption {
	return func(a *App) {
		if n > 0 {
			a.window = n
		}
	}
}

// App is the bubbletea model for the dashboard.
type App struct {
	repo    snapshot.Repository
	changes <-chan struct{}
	now     func() time.Time
	window  int

	table  table.Model
	snap   snapshot.Snapshot
	loaded bool
	err    error
	width  int
}

// NewApp builds a dashboard that reads snapshots from repo.
func NewApp(repo snapshot.Repository, opts ...AppOption) *App {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Role", Width: 34},
			{Title: "Status", Width: 10},
			{Title: "Last run", Width: 18},
			{Title: "Next run", Width: 18},
			{Title: "Errors", Width: 6},
			{Title: "Skip", Width: 22},
		}),
		table.WithFocused(true),
		table.WithHeight(22),
	)
	a := &App{
		repo:   repo,
		now:    time.Now,
		window: snapshot.DefaultHistoryWindow,
		table:  t,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the dashboard for repo, watching statePath for changes.
func Run(ctx context.Context, repo snapshot.Repository, statePath string, opts ...AppOption) error {
	changes, err := snapshot.Watch(ctx, statePath)
	if err != nil {
		return err
	}
	opts = append(opts, WithChanges(changes))
	p := tea.NewProgram(NewApp(repo, opts...), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.load(), a.waitForChange(), tick())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return a, tea.Quit
		case "r":
			return a, a.load()
		}
	case tea.WindowSizeMsg:
		a.width = msg.Width
		if h := msg.Height - a.window - 10; h > 5 {
			a.table.SetHeight(h)
		}
	case snapshotMsg:
		a.err = msg.err
		if msg.err == nil {
			a.snap = msg.snap
			a.loaded = true
			a.table.SetRows(a.rows())
		}
		return a, nil
	case changedMsg:
		return a, tea.Batch(a.load(), a.waitForChange())
	case tickMsg:
		return a, tea.Batch(a.load(), tick())
	}
	var cmd tea.Cmd
	a.table, cmd = a.table.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("rolechain"))
	sb.WriteString("\n")
	if !a.loaded {
		if a.err != nil {
			sb.WriteString(errorStyle.Render(a.err.Error()))
		} else {
			sb.WriteString(mutedStyle.Render("loading snapshot..."))
		}
		sb.WriteString("\n")
		return sb.String()
	}
	s := a.snap
	fmt.Fprintf(&sb, "completed %d  running %d  failed %d  skip-marked %d  history %d  %s\n\n",
		s.Count(rolestate.StatusCompleted), s.Count(rolestate.StatusRunning), s.Count(rolestate.StatusFailed),
		len(s.SkipMarkers), len(s.History),
		mutedStyle.Render("updated "+humanize.RelTime(s.GeneratedAt, a.now(), "ago", "from now")))
	sb.WriteString(a.table.View())
	sb.WriteString("\n\n")
	sb.WriteString(titleStyle.Render("Recent activity"))
	sb.WriteString("\n")
	recent := s.RecentHistory(a.window)
	if len(recent) == 0 {
		sb.WriteString(mutedStyle.Render("no history yet"))
		sb.WriteString("\n")
	}
	for _, e := range recent {
		sb.WriteString(formatEvent(e))
		sb.WriteString("\n")
	}
	if a.err != nil {
		sb.WriteString(errorStyle.Render("reload failed: " + a.err.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString(footerStyle.Render("q quit • r reload • ↑/↓ scroll"))
	return sb.String()
}

func (a *App) rows() []table.Row {
	now := a.now()
	rows := make([]table.Row, 0, len(a.snap.Roles))
	for _, r := range a.snap.Roles {
		var skip []string
		if a.snap.Skipped(r.Name) {
			skip = append(skip, "marked")
		}
		if r.Deferred(now) {
			skip = append(skip, "until "+r.SkipUntil.Local().Format("15:04:05"))
		}
		rows = append(rows, table.Row{
			r.Name,
			string(r.Status),
			when(r.LastRun, now, "never"),
			when(r.NextRun, now, "unscheduled"),
			fmt.Sprintf("%d", r.ErrorCount),
			strings.Join(skip, ", "),
		})
	}
	return rows
}

func (a *App) load() tea.Cmd {
	repo := a.repo
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		snap, err := repo.Load(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (a *App) waitForChange() tea.Cmd {
	if a.changes == nil {
		return nil
	}
	ch := a.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(boardRefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func when(t *time.Time, now time.Time, placeholder string) string {
	if t == nil {
		return placeholder
	}
	return humanize.RelTime(*t, now, "ago", "from now")
}

func formatEvent(e history.Event) string {
	line := fmt.Sprintf("%s  %-34s %s", e.Timestamp.Local().Format("15:04:05"), e.Role, e.Status)
	if e.Output != "" {
		line += "  " + mutedStyle.Render(e.Output)
	}
	return line
}
