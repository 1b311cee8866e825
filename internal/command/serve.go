package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/rolechain/internal/eventbridge"
)

const shutdownGrace = 5 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP bridge in front of the scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cctx.Close()

			settings := eventbridge.SettingsFromConfig(cctx.Config)
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				settings.Port = port
			}
			if !settings.Enabled {
				return writeCommandError(cmd, errors.New("bridge disabled in config (bridge.enabled or ROLECHAIN_BRIDGE_ENABLED)"))
			}
			tick, _ := cmd.Flags().GetDuration("tick")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := cctx.Logger.Named("serve")
			srv := eventbridge.NewServer(settings, cctx.App.Engine,
				eventbridge.WithRouter(cctx.App.Router),
				eventbridge.WithLogger(cctx.Logger.Named("bridge")))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := srv.Start(gctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "bridge listening on %s\n", srv.BaseURL())
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if tick > 0 {
				g.Go(func() error {
					ticker := time.NewTicker(tick)
					defer ticker.Stop()
					for {
						select {
						case <-gctx.Done():
							return nil
						case <-ticker.C:
							status := cctx.App.Engine.SystemStatus()
							logger.Info("heartbeat",
								zap.Strings("ready", status.ReadyRoles),
								zap.Int("running", status.RunningRoles),
								zap.Int("completed", status.CompletedRoles))
						}
					}
				})
			}
			if err := g.Wait(); err != nil {
				return writeCommandError(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().Int("port", 0, "override the bridge port")
	cmd.Flags().Duration("tick", time.Minute, "heartbeat interval for logging ready roles (0 disables)")
	return cmd
}
