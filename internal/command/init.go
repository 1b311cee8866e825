package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/rolechain/internal/config"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create .rolechain and write the initial schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := projectDir(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if err := config.InitDir(dir); err != nil {
				return writeCommandError(cmd, fmt.Errorf("initialize %s: %w", config.ProjectDirName, err))
			}
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			reset, _ := cmd.Flags().GetBool("reset")
			if reset {
				ctx.App.Engine.Initialize()
			}
			status := ctx.App.Engine.SystemStatus()
			if ctx.JSONMode {
				return writeJSON(cmd, map[string]any{
					"project": dir,
					"roles":   status.TotalRoles,
					"state":   ctx.Config.StatePath(),
					"reset":   reset,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s in %s (%d roles, state %s)\n",
				config.ProjectDirName, dir, status.TotalRoles, ctx.Config.StatePath())
			return nil
		},
	}
	cmd.Flags().Bool("reset", false, "reset every role to pending even if a snapshot exists")
	return cmd
}
