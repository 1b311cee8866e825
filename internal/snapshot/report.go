package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/rolechain/internal/rolestate"
)

// RenderMarkdown produces the human readable status report.
func RenderMarkdown(s Snapshot, window int) string {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	var b strings.Builder
	b.WriteString("# Role Scheduling Status\n\n")
	fmt.Fprintf(&b, "**Generated**: %s\n", s.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	state := "not initialized"
	if s.Initialized {
		state = "running"
	}
	fmt.Fprintf(&b, "**System**: %s\n\n", state)

	b.WriteString("## Roles\n\n")
	b.WriteString("| Role | Status | Last run | Next run | Errors | Skip |\n")
	b.WriteString("|------|--------|----------|----------|--------|------|\n")
	for _, row := range s.Roles {
		skip := ""
		if s.Skipped(row.Name) {
			skip = "skip-marked"
		}
		if row.Deferred(s.GeneratedAt) {
			if skip != "" {
				skip += ", "
			}
			skip += "deferred until " + row.SkipUntil.Format("15:04:05")
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d | %s |\n",
			row.Name,
			row.Status,
			clock(row.LastRun, "never"),
			clock(row.NextRun, "unscheduled"),
			row.ErrorCount,
			skip,
		)
	}

	b.WriteString("\n## Totals\n\n")
	fmt.Fprintf(&b, "- **Completed**: %d\n", s.Count(rolestate.StatusCompleted))
	fmt.Fprintf(&b, "- **Running**: %d\n", s.Count(rolestate.StatusRunning))
	fmt.Fprintf(&b, "- **Failed**: %d\n", s.Count(rolestate.StatusFailed))
	fmt.Fprintf(&b, "- **Skip-marked**: %d\n", len(s.SkipMarkers))
	fmt.Fprintf(&b, "- **History entries**: %d\n", len(s.History))

	b.WriteString("\n## Recent activity\n\n")
	recent := s.RecentHistory(window)
	if len(recent) == 0 {
		b.WriteString("_none yet_\n")
	}
	for _, event := range recent {
		fmt.Fprintf(&b, "- %s - %s: %s\n", event.Timestamp.Format("15:04:05"), event.Role, event.Status)
	}
	return b.String()
}

func clock(t *time.Time, fallback string) string {
	if t == nil {
		return fallback
	}
	return t.Format("15:04:05")
}

// Reporter saves snapshots to a repository and, when configured, refreshes
// the Markdown report next to it.
type Reporter struct {
	repo       Repository
	reportPath string
	window     int
}

// ReporterOption customizes a Reporter.
type ReporterOption func(*Reporter)

// WithReportFile writes the Markdown report to path after every save.
func WithReportFile(path string) ReporterOption {
	return func(r *Reporter) {
		r.reportPath = strings.TrimSpace(path)
	}
}

// WithWindow sets how many history entries the report shows.
func WithWindow(n int) ReporterOption {
	return func(r *Reporter) {
		if n > 0 {
			r.window = n
		}
	}
}

// NewReporter wires a reporter to repo.
func NewReporter(repo Repository, opts ...ReporterOption) (*Reporter, error) {
	if repo == nil {
		return nil, fmt.Errorf("snapshot: repository is required")
	}
	r := &Reporter{repo: repo, window: DefaultHistoryWindow}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Repository returns the backing repository.
func (r *Reporter) Repository() Repository {
	return r.repo
}

// Persist saves s and rewrites the report. Both writes are attempted; their
// errors are joined.
func (r *Reporter) Persist(ctx context.Context, s Snapshot) error {
	saveErr := r.repo.Save(ctx, s)
	var reportErr error
	if r.reportPath != "" {
		var data []byte
		if data, reportErr = RenderReport(s, r.window); reportErr == nil {
			reportErr = writeFileAtomic(r.reportPath, data)
		}
	}
	return errors.Join(saveErr, reportErr)
}
