package command

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/rolechain/internal/rolestate"
	"github.com/kingrea/rolechain/internal/snapshot"
)

type completeResult struct {
	Role      string          `json:"role"`
	State     rolestate.State `json:"state"`
	Triggered string          `json:"triggered,omitempty"`
}

// NewCompleteCmd creates the complete command.
func NewCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <role>",
		Short: "Record a finished run and wake the next eligible role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			role := args[0]
			failed, _ := cmd.Flags().GetBool("failed")
			output, _ := cmd.Flags().GetString("output")

			engine := ctx.App.Engine
			before := engine.Snapshot()
			if err := engine.MarkRoleCompleted(role, !failed, output); err != nil {
				return writeCommandError(cmd, err)
			}
			state, err := engine.Role(role)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			result := completeResult{Role: role, State: state, Triggered: newlyMarked(before, engine.Snapshot())}
			if ctx.JSONMode {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", role, styleStatus(string(state.Status), 0))
			if result.Triggered != "" {
				fmt.Fprintf(out, "woke %s\n", result.Triggered)
			} else if !failed {
				fmt.Fprintln(out, mutedStyle.Render("no eligible role after "+role))
			}
			return nil
		},
	}
	cmd.Flags().Bool("failed", false, "record the run as failed")
	cmd.Flags().String("output", "", "output excerpt to store with the event")
	return cmd
}

// newlyMarked returns the role that gained a skip marker between two snapshots.
func newlyMarked(before, after snapshot.Snapshot) string {
	for _, name := range after.SkipMarkers {
		if !before.Skipped(name) {
			return name
		}
	}
	return ""
}

// NewSetStatusCmd creates the set-status command.
func NewSetStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <role> <status>",
		Short: "Override a role's status (pending, running, completed, failed, skipped)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := rolestate.ParseStatus(args[1])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if err := ctx.App.Engine.UpdateStatus(args[0], status); err != nil {
				return writeCommandError(cmd, err)
			}
			state, err := ctx.App.Engine.Role(args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if ctx.JSONMode {
				return writeJSON(cmd, rolestate.RoleRow{Name: args[0], State: state})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], styleStatus(string(state.Status), 0))
			return nil
		},
	}
}

// NewDeferCmd creates the defer command.
func NewDeferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "defer <role>",
		Short: "Keep a role ineligible for a while (--for 0 clears)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, _ := cmd.Flags().GetDuration("for")
			if d < 0 {
				return writeCommandError(cmd, fmt.Errorf("--for must not be negative"))
			}
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			var until time.Time
			if d > 0 {
				until = time.Now().Add(d)
			}
			if err := ctx.App.Engine.Defer(args[0], until); err != nil {
				return writeCommandError(cmd, err)
			}
			state, err := ctx.App.Engine.Role(args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if ctx.JSONMode {
				return writeJSON(cmd, rolestate.RoleRow{Name: args[0], State: state})
			}
			if until.IsZero() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s no longer deferred\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s deferred until %s\n", args[0], until.Format("15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().Duration("for", time.Hour, "how long to defer the role")
	return cmd
}

// NewTriggerCmd creates the trigger command.
func NewTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Wake the first eligible role from the head of the chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			result := ctx.App.Engine.Kickoff()
			if ctx.JSONMode {
				return writeJSON(cmd, result)
			}
			if result.Triggered == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no eligible role")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "woke %s\n", result.Triggered)
			return nil
		},
	}
}

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the Markdown status report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if verify, _ := cmd.Flags().GetBool("verify"); verify {
				return verifyReport(cmd, ctx)
			}
			window, _ := cmd.Flags().GetInt("window")
			if window <= 0 {
				window = ctx.Config.HistoryWindow()
			}
			fmt.Fprint(cmd.OutOrStdout(), snapshot.RenderMarkdown(ctx.App.Engine.Snapshot(), window))
			return nil
		},
	}
	cmd.Flags().Int("window", 0, "history entries to include (defaults to history.window)")
	cmd.Flags().Bool("verify", false, "check the on-disk report against its checksum instead of rendering")
	return cmd
}

func verifyReport(cmd *cobra.Command, ctx *CommandContext) error {
	path := ctx.Config.ReportPath()
	if path == "" {
		return writeCommandError(cmd, fmt.Errorf("report file is disabled (state.report is empty)"))
	}
	meta, _, err := snapshot.ReadReport(path)
	if err != nil {
		return writeCommandError(cmd, err)
	}
	if ctx.JSONMode {
		return writeJSON(cmd, map[string]any{
			"path":      path,
			"generated": meta.GeneratedAt,
			"roles":     meta.Roles,
			"checksum":  meta.Checksum,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s ok (%d roles, generated %s)\n",
		path, meta.Roles, meta.GeneratedAt.Format(time.RFC3339))
	return nil
}
