package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, projectDir, body string) {
	t.Helper()
	dir := filepath.Join(projectDir, ProjectDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(strings.TrimSpace(body)), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestNewConfigDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if c.Backend() != BackendFile || c.RestorePolicy() != RestoreFull {
		t.Fatalf("unexpected state defaults: %+v", c.Project.State)
	}
	if c.Stagger() != time.Minute {
		t.Fatalf("expected 1m stagger, got %s", c.Stagger())
	}
	if want := filepath.Join(projectDir, defaultReportFile); c.ReportPath() != want {
		t.Fatalf("expected report %s, got %s", want, c.ReportPath())
	}
	reg, err := c.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if reg.Len() != 21 {
		t.Fatalf("expected built-in roster, got %d roles", reg.Len())
	}
}

func TestInitDirWritesParseableDefaults(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitDir(projectDir); err != nil {
		t.Fatalf("InitDir: %v", err)
	}
	for _, sub := range []string{"logs", "state"} {
		if _, err := os.Stat(filepath.Join(projectDir, ProjectDirName, sub)); err != nil {
			t.Fatalf("expected %s dir: %v", sub, err)
		}
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("default config should load: %v", err)
	}
	if c.Project.Bridge.Port != 8765 {
		t.Fatalf("expected bridge port 8765, got %d", c.Project.Bridge.Port)
	}
	if c.HistoryWindow() != 10 {
		t.Fatalf("expected window 10, got %d", c.HistoryWindow())
	}
}

func TestNewConfigParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	writeConfig(t, projectDir, `
version: 1
roles:
  - name: planner
    frequency_minutes: 5
  - name: " builder "
schedule:
  stagger: 30s
state:
  backend: SQLite
  restore: fresh
  report: ""
history:
  window: 4
notifier:
  kind: webhook
  webhook_url: http://localhost:9000/wake
  timeout: 2s
`)
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	reg, err := c.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if got := reg.Names(); len(got) != 2 || got[0] != "planner" || got[1] != "builder" {
		t.Fatalf("unexpected roster: %v", got)
	}
	if r, _ := reg.Role("planner"); r.Frequency != 5*time.Minute {
		t.Fatalf("expected 5m frequency, got %s", r.Frequency)
	}
	if c.Stagger() != 30*time.Second {
		t.Fatalf("expected 30s stagger, got %s", c.Stagger())
	}
	if c.Backend() != BackendSQLite || !strings.HasSuffix(c.StatePath(), "state.db") {
		t.Fatalf("expected sqlite backend, got %s at %s", c.Backend(), c.StatePath())
	}
	if c.RestorePolicy() != RestoreFresh {
		t.Fatalf("expected fresh restore, got %s", c.RestorePolicy())
	}
	if c.ReportPath() != "" {
		t.Fatalf("expected report disabled, got %q", c.ReportPath())
	}
	if c.HistoryWindow() != 4 {
		t.Fatalf("expected window 4, got %d", c.HistoryWindow())
	}
	if c.NotifierTimeout() != 2*time.Second {
		t.Fatalf("expected 2s timeout, got %s", c.NotifierTimeout())
	}
}

func TestNewConfigValidation(t *testing.T) {
	cases := map[string]string{
		"duplicate role":  "roles:\n  - name: a\n  - name: a\n",
		"bad backend":     "state:\n  backend: redis\n",
		"bad restore":     "state:\n  restore: partial\n",
		"bad stagger":     "schedule:\n  stagger: soon\n",
		"webhook missing": "notifier:\n  kind: webhook\n",
		"bad kind":        "notifier:\n  kind: carrier-pigeon\n",
		"bad wake":        "bridge:\n  wake_timeout: -5s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			projectDir := t.TempDir()
			writeConfig(t, projectDir, body)
			if _, err := NewConfig(projectDir); err == nil {
				t.Fatalf("expected validation error but got none")
			}
		})
	}
}

func TestStateBackendEnvOverride(t *testing.T) {
	t.Setenv("ROLECHAIN_STATE_BACKEND", "sqlite")
	c, err := NewConfig(t.TempDir())
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if c.Backend() != BackendSQLite {
		t.Fatalf("expected env override to select sqlite, got %s", c.Backend())
	}
}
