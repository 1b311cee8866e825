package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show aggregate counts and the role table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			engine := ctx.App.Engine
			status := engine.SystemStatus()
			if ctx.JSONMode {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render("Role scheduling status"))
			fmt.Fprintf(out, "roles %d  completed %d  running %d  failed %d  skip-marked %d  history %d\n",
				status.TotalRoles, status.CompletedRoles, status.RunningRoles, status.FailedRoles,
				status.SkippedRoles, status.TotalExecutions)
			ready := "none"
			if len(status.ReadyRoles) > 0 {
				ready = strings.Join(status.ReadyRoles, ", ")
			}
			fmt.Fprintf(out, "ready: %s\n\n", ready)
			writeRoleTable(out, engine.Roles(), engine.SkipMarked, time.Now())
			return nil
		},
	}
}

// NewReadyCmd creates the ready command.
func NewReadyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "List roles that are due and eligible to run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			ready := ctx.App.Engine.ReadyRoles()
			if ctx.JSONMode {
				return writeJSON(cmd, ready)
			}
			for _, role := range ready {
				fmt.Fprintln(cmd.OutOrStdout(), role)
			}
			return nil
		},
	}
}

// NewRolesCmd creates the roles command.
func NewRolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "Show every role's runtime state in chain order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			rows := ctx.App.Engine.Roles()
			if ctx.JSONMode {
				return writeJSON(cmd, rows)
			}
			writeRoleTable(cmd.OutOrStdout(), rows, ctx.App.Engine.SkipMarked, time.Now())
			return nil
		},
	}
}

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent completion and wake-up events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			if journal, _ := cmd.Flags().GetBool("journal"); journal {
				lines, total := ctx.App.Journal.Tail(limit)
				if ctx.JSONMode {
					return writeJSON(cmd, map[string]any{"lines": lines, "total": total})
				}
				out := cmd.OutOrStdout()
				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintf(out, "(%d of %d entries in %s)\n", len(lines), total, ctx.App.Journal.Path())
				return nil
			}
			events := ctx.App.Engine.History(limit)
			if ctx.JSONMode {
				return writeJSON(cmd, events)
			}
			writeHistory(cmd.OutOrStdout(), events)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "number of events to show")
	cmd.Flags().Bool("journal", false, "tail the plain-text journal instead of the in-memory history")
	return cmd
}
