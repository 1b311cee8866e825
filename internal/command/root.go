package command

import (
	"os"

	"github.com/spf13/cobra"
)

const AppName = "rolechain"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "rolechain - sequential role scheduler",
		Long:          "rolechain tracks a fixed chain of roles, records their runs and wakes the next eligible role when one finishes.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("project", "", "project directory (defaults to the working directory)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "debug-level logging")

	cmd.AddCommand(
		NewInitCmd(),
		NewStatusCmd(),
		NewReadyCmd(),
		NewRolesCmd(),
		NewHistoryCmd(),
		NewCompleteCmd(),
		NewSetStatusCmd(),
		NewDeferCmd(),
		NewTriggerCmd(),
		NewReportCmd(),
		NewServeCmd(),
		NewDashboardCmd(),
	)

	return cmd
}

func Execute() error {
	return NewRootCmd(Version).Execute()
}
