// cmd/role-runner/main.go
//
// role-runner attaches one role to a running `rolechain serve` bridge:
//
//	role-runner --role qa-engineer -- make test
//
// Each wake marks the role running, runs the command and reports the result,
// which in turn lets the scheduler wake the next role in the chain.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/rolechain/internal/eventbridge"
	"github.com/kingrea/rolechain/internal/runner"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "role-runner --role <role> [flags] -- <command> [args...]",
		Short:         "Run a command every time the scheduler wakes a role",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().String("role", "", "role to run (required)")
	cmd.Flags().String("bridge", eventbridge.SettingsFromConfig(nil).URL(), "bridge base URL (defaults honor ROLECHAIN_BRIDGE_HOST/PORT)")
	cmd.Flags().Duration("poll", eventbridge.DefaultWakeTimeout, "long-poll timeout per wake request")
	cmd.Flags().Duration("retry", 5*time.Second, "pause after a bridge error")
	cmd.Flags().Bool("once", false, "exit after handling one wake")
	cmd.Flags().String("dir", "", "working directory for the command")
	cmd.Flags().BoolP("verbose", "v", false, "debug-level logging")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	role, _ := cmd.Flags().GetString("role")
	bridgeURL, _ := cmd.Flags().GetString("bridge")
	poll, _ := cmd.Flags().GetDuration("poll")
	retry, _ := cmd.Flags().GetDuration("retry")
	once, _ := cmd.Flags().GetBool("once")
	dir, _ := cmd.Flags().GetString("dir")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := eventbridge.NewClient(bridgeURL, nil)
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("bridge unreachable at %s: %w", bridgeURL, err)
	}
	opts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithPollTimeout(poll),
		runner.WithRetryDelay(retry),
	}
	if once {
		opts = append(opts, runner.Once())
	}
	exec := runner.Command{Args: args, Dir: dir, Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
	r, err := runner.New(role, client, exec, opts...)
	if err != nil {
		return err
	}
	logger.Info("waiting for wakes", zap.String("role", role), zap.String("bridge", bridgeURL))
	return r.Run(ctx)
}
