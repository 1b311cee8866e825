package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/rolechain/internal/config"
)

// FileName is the log file created under .rolechain/logs.
const FileName = "rolechain.log"

// Path returns the log file location for projectDir.
func Path(projectDir string) string {
	return filepath.Join(projectDir, config.ProjectDirName, "logs", FileName)
}

// New builds a JSON zap logger appending to .rolechain/logs/rolechain.log so
// users can inspect scheduling decisions after the process exits. Verbose
// lowers the level to debug.
func New(projectDir string, verbose bool) (*zap.Logger, error) {
	path := Path(projectDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger, nil
}
