package command

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/rolechain/internal/app"
	"github.com/kingrea/rolechain/internal/config"
	"github.com/kingrea/rolechain/internal/logging"
)

// CommandContext provides shared command resources.
type CommandContext struct {
	ProjectDir string
	Config     *config.Config
	Logger     *zap.Logger
	App        *app.App
	JSONMode   bool
}

// projectDir resolves --project, falling back to the working directory.
func projectDir(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("project")
	if dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(dir)
}

// GetContext loads config, logging and the wired engine for a command.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	dir, err := projectDir(cmd)
	if err != nil {
		return nil, err
	}
	jsonMode, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.NewConfig(dir)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(dir, verbose)
	if err != nil {
		return nil, err
	}
	a, err := app.Open(cfg, logger.With(zap.String("command", cmd.Name())))
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &CommandContext{
		ProjectDir: dir,
		Config:     cfg,
		Logger:     logger,
		App:        a,
		JSONMode:   jsonMode,
	}, nil
}

// Close releases the app and flushes the logger.
func (c *CommandContext) Close() {
	if c == nil {
		return
	}
	if c.App != nil {
		if err := c.App.Close(); err != nil {
			c.Logger.Warn("close app", zap.Error(err))
		}
	}
	_ = c.Logger.Sync()
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
	return err
}
