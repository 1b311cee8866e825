// internal/config/config.go
//
// This package handles configuration and the .rolechain directory structure.
// Every project that schedules roles gets a .rolechain/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/rolechain/internal/roles"
)

const (
	// ProjectDirName is the name of the directory we create in each project
	ProjectDirName = ".rolechain"

	BackendFile   = "file"
	BackendSQLite = "sqlite"

	RestoreFull  = "full"
	RestoreFresh = "fresh"

	NotifierLog     = "log"
	NotifierWebhook = "webhook"
	NotifierNone    = "none"

	defaultStagger       = "1m"
	defaultReportFile    = "SCHEDULING_STATE.md"
	defaultHistoryWindow = 10
)

const defaultProjectConfigYAML = `# rolechain project configuration
version: 1

# Ordered role roster. Leave empty to use the built-in 21-role chain.
# roles:
#   - name: github-credentials
#     frequency_minutes: 2
#   - name: devops-engineer
#     frequency_minutes: 3
roles: []
# More roles can be appended from .rolechain/roles.d/*.yaml or *.go files.

schedule:
  # Offset between consecutive roles' first next_run.
  stagger: 1m

state:
  # file writes .rolechain/state/state.json, sqlite writes .rolechain/state/state.db
  backend: file
  # full restores roles, skip markers and history; fresh resets every role on start
  restore: full
  # Markdown status report, relative to the project root. Empty disables it.
  report: SCHEDULING_STATE.md

history:
  window: 10

bridge:
  enabled: true
  host: 127.0.0.1
  port: 8765
  # How long GET /roles/{role}/wake waits when the caller sends no timeout.
  wake_timeout: 30s

notifier:
  # log, webhook or none
  kind: log
  webhook_url: ""
  timeout: 10s
`

// RoleConfig declares one entry of the ordered roster.
type RoleConfig struct {
	Name             string `yaml:"name"`
	FrequencyMinutes int    `yaml:"frequency_minutes,omitempty"`
}

// ScheduleConfig controls initial next_run placement.
type ScheduleConfig struct {
	Stagger string `yaml:"stagger"`
}

// StateConfig selects the snapshot backend and restore policy.
type StateConfig struct {
	Backend string `yaml:"backend"`
	Restore string `yaml:"restore"`
	Report  string `yaml:"report"`
}

// HistoryConfig controls how much history the report shows.
type HistoryConfig struct {
	Window int `yaml:"window"`
}

// BridgeConfig captures the HTTP bridge section.
type BridgeConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`

	// WakeTimeout is a Go duration string.
	WakeTimeout string `yaml:"wake_timeout,omitempty"`
}

// NotifierConfig selects how triggered roles are woken.
type NotifierConfig struct {
	Kind       string `yaml:"kind"`
	WebhookURL string `yaml:"webhook_url,omitempty"`
	Timeout    string `yaml:"timeout,omitempty"`
}

// ProjectConfig models .rolechain/config.yaml.
type ProjectConfig struct {
	Version  int            `yaml:"version"`
	Roles    []RoleConfig   `yaml:"roles"`
	Schedule ScheduleConfig `yaml:"schedule"`
	State    StateConfig    `yaml:"state"`
	History  HistoryConfig  `yaml:"history"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Notifier NotifierConfig `yaml:"notifier"`
}

// Config holds the runtime configuration for one project.
type Config struct {
	// ProjectDir is the directory rolechain was run from
	ProjectDir string

	// StateRoot is ProjectDir/.rolechain
	StateRoot string

	Project ProjectConfig
}

// InitDir creates the .rolechain directory structure in the given project
// directory and writes a default config.yaml when none exists.
//
// Structure created:
// .rolechain/
// ├── config.yaml
// ├── logs/     <- rolechain.log and history.log
// └── state/    <- state.json or state.db
func InitDir(projectDir string) error {
	root := filepath.Join(projectDir, ProjectDirName)
	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig loads .rolechain/config.yaml (if present) for projectDir and
// applies environment overrides.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir: projectDir,
		StateRoot:  filepath.Join(projectDir, ProjectDirName),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateRoot, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.StateRoot, "state")
}

// RolesDir returns the roster extension directory.
func (c *Config) RolesDir() string {
	return filepath.Join(c.StateRoot, "roles.d")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateRoot, "config.yaml")
}

// JournalPath is the plain-text history journal.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "history.log")
}

// StatePath returns the snapshot location for the configured backend.
func (c *Config) StatePath() string {
	if c.Project.State.Backend == BackendSQLite {
		return filepath.Join(c.StateDir(), "state.db")
	}
	return filepath.Join(c.StateDir(), "state.json")
}

// ReportPath returns the Markdown report location, or "" when disabled.
func (c *Config) ReportPath() string {
	return c.Project.State.Report
}

// Backend returns the snapshot backend name.
func (c *Config) Backend() string {
	return c.Project.State.Backend
}

// RestorePolicy returns full or fresh.
func (c *Config) RestorePolicy() string {
	return c.Project.State.Restore
}

// HistoryWindow is the number of history entries shown in reports.
func (c *Config) HistoryWindow() int {
	return c.Project.History.Window
}

// Stagger parses schedule.stagger. Validation guarantees it parses.
func (c *Config) Stagger() time.Duration {
	d, _ := time.ParseDuration(c.Project.Schedule.Stagger)
	return d
}

// NotifierTimeout parses notifier.timeout, returning 0 when unset.
func (c *Config) NotifierTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Project.Notifier.Timeout)
	return d
}

// Registry builds the role registry from the configured roster, falling back
// to the built-in chain when no roles are listed.
func (c *Config) Registry() (*roles.Registry, error) {
	if len(c.Project.Roles) == 0 {
		return roles.Default(), nil
	}
	defs := make([]roles.Role, 0, len(c.Project.Roles))
	for _, rc := range c.Project.Roles {
		defs = append(defs, roles.Role{
			Name:      rc.Name,
			Frequency: time.Duration(rc.FrequencyMinutes) * time.Minute,
		})
	}
	reg, err := roles.New(defs)
	if err != nil {
		return nil, fmt.Errorf("config: roles: %w", err)
	}
	return reg, nil
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.Project.normalize(c.ProjectDir)
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func (c *Config) applyEnvOverrides() {
	if backend := strings.TrimSpace(os.Getenv("ROLECHAIN_STATE_BACKEND")); backend != "" {
		c.Project.State.Backend = normalizeKeyword(backend)
	}
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:  1,
		Schedule: ScheduleConfig{Stagger: defaultStagger},
		State: StateConfig{
			Backend: BackendFile,
			Restore: RestoreFull,
			Report:  defaultReportFile,
		},
		History:  HistoryConfig{Window: defaultHistoryWindow},
		Notifier: NotifierConfig{Kind: NotifierLog},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Schedule.Stagger) == "" {
		pc.Schedule.Stagger = defaultStagger
	}
	if strings.TrimSpace(pc.State.Backend) == "" {
		pc.State.Backend = BackendFile
	}
	if strings.TrimSpace(pc.State.Restore) == "" {
		pc.State.Restore = RestoreFull
	}
	if pc.History.Window <= 0 {
		pc.History.Window = defaultHistoryWindow
	}
	if strings.TrimSpace(pc.Notifier.Kind) == "" {
		pc.Notifier.Kind = NotifierLog
	}
}

func (pc *ProjectConfig) normalize(base string) {
	for i := range pc.Roles {
		pc.Roles[i].Name = strings.TrimSpace(pc.Roles[i].Name)
	}
	pc.Schedule.Stagger = strings.TrimSpace(pc.Schedule.Stagger)
	pc.State.Backend = normalizeKeyword(pc.State.Backend)
	pc.State.Restore = normalizeKeyword(pc.State.Restore)
	pc.State.Report = resolvePath(base, pc.State.Report)
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
	pc.Bridge.WakeTimeout = strings.TrimSpace(pc.Bridge.WakeTimeout)
	pc.Notifier.Kind = normalizeKeyword(pc.Notifier.Kind)
	pc.Notifier.WebhookURL = strings.TrimSpace(pc.Notifier.WebhookURL)
	pc.Notifier.Timeout = strings.TrimSpace(pc.Notifier.Timeout)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	seen := map[string]struct{}{}
	for i, rc := range pc.Roles {
		if rc.Name == "" {
			return fmt.Errorf("roles[%d]: name is required", i)
		}
		if _, dup := seen[rc.Name]; dup {
			return fmt.Errorf("roles[%d]: duplicate role %q", i, rc.Name)
		}
		seen[rc.Name] = struct{}{}
		if rc.FrequencyMinutes < 0 {
			return fmt.Errorf("roles[%d]: frequency_minutes must be >= 0", i)
		}
	}
	if d, err := time.ParseDuration(pc.Schedule.Stagger); err != nil || d < 0 {
		return fmt.Errorf("schedule.stagger must be a non-negative duration, got %q", pc.Schedule.Stagger)
	}
	switch pc.State.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("state.backend must be 'file' or 'sqlite'")
	}
	switch pc.State.Restore {
	case RestoreFull, RestoreFresh:
	default:
		return fmt.Errorf("state.restore must be 'full' or 'fresh'")
	}
	if pc.Bridge.Port < 0 || pc.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port out of range: %d", pc.Bridge.Port)
	}
	if pc.Bridge.WakeTimeout != "" {
		if d, err := time.ParseDuration(pc.Bridge.WakeTimeout); err != nil || d <= 0 {
			return fmt.Errorf("bridge.wake_timeout must be a positive duration, got %q", pc.Bridge.WakeTimeout)
		}
	}
	switch pc.Notifier.Kind {
	case NotifierLog, NotifierNone:
	case NotifierWebhook:
		if pc.Notifier.WebhookURL == "" {
			return fmt.Errorf("notifier.webhook_url is required for webhook notifiers")
		}
	default:
		return fmt.Errorf("notifier.kind must be 'log', 'webhook' or 'none'")
	}
	if pc.Notifier.Timeout != "" {
		if _, err := time.ParseDuration(pc.Notifier.Timeout); err != nil {
			return fmt.Errorf("notifier.timeout: %w", err)
		}
	}
	return nil
}

func normalizeKeyword(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
