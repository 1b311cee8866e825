package command

import (
	"github.com/spf13/cobra"

	"github.com/kingrea/rolechain/internal/tui"
)

// NewDashboardCmd creates the dashboard command.
func NewDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Live terminal view of the role chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			err = tui.Run(cmd.Context(), ctx.App.Repository(), ctx.Config.StatePath(),
				tui.WithWindow(ctx.Config.HistoryWindow()))
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return nil
		},
	}
}
