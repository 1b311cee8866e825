package command

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/kingrea/rolechain/internal/config"
	"github.com/kingrea/rolechain/internal/history"
	"github.com/kingrea/rolechain/internal/rolestate"
	"github.com/kingrea/rolechain/internal/scheduler"
	"github.com/kingrea/rolechain/internal/snapshot"
)

const testProjectConfig = `version: 1
roles:
  - name: alpha
  - name: beta
  - name: gamma
schedule:
  stagger: 0s
notifier:
  kind: none
`

func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

// run executes a fresh root command against projectDir.
func run(t *testing.T, projectDir string, args ...string) (string, error) {
	t.Helper()
	return executeCommand(NewRootCmd("test"), append([]string{"--project", projectDir}, args...)...)
}

func setupProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, config.ProjectDirName)
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "config.yaml"), []byte(testProjectConfig), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := run(t, dir, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	return dir
}

func TestRootCommandVersion(t *testing.T) {
	output, err := executeCommand(NewRootCmd("test"), "--version")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(output, "rolechain version test") {
		t.Fatalf("expected version output, got %q", output)
	}
}

func TestInitCreatesProject(t *testing.T) {
	dir := t.TempDir()
	output, err := run(t, dir, "init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(output, "Initialized .rolechain") {
		t.Fatalf("unexpected output %q", output)
	}
	for _, path := range []string{
		filepath.Join(dir, ".rolechain", "config.yaml"),
		filepath.Join(dir, ".rolechain", "state", "state.json"),
		filepath.Join(dir, "SCHEDULING_STATE.md"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
	}
}

func TestReadyListsDueRoles(t *testing.T) {
	dir := setupProject(t)
	output, err := run(t, dir, "--json", "ready")
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	var ready []string
	if err := json.Unmarshal([]byte(output), &ready); err != nil {
		t.Fatalf("decode %q: %v", output, err)
	}
	if strings.Join(ready, ",") != "alpha,beta,gamma" {
		t.Fatalf("expected all roles ready, got %v", ready)
	}
}

func TestCompleteTriggersNextRoleAndPersists(t *testing.T) {
	dir := setupProject(t)

	output, err := run(t, dir, "complete", "alpha", "--output", "shipped")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !strings.Contains(output, "woke beta") {
		t.Fatalf("expected beta to be woken, got %q", output)
	}

	output, err = run(t, dir, "--json", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status scheduler.SystemStatus
	if err := json.Unmarshal([]byte(output), &status); err != nil {
		t.Fatalf("decode %q: %v", output, err)
	}
	if status.CompletedRoles != 1 || status.SkippedRoles != 1 || status.TotalExecutions != 2 {
		t.Fatalf("unexpected status %+v", status)
	}
	if strings.Join(status.ReadyRoles, ",") != "gamma" {
		t.Fatalf("expected only gamma ready, got %v", status.ReadyRoles)
	}

	output, err = run(t, dir, "--json", "history", "-n", "1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var events []history.Event
	if err := json.Unmarshal([]byte(output), &events); err != nil {
		t.Fatalf("decode %q: %v", output, err)
	}
	if len(events) != 1 || events[0].Role != "beta" || events[0].Status != history.StatusWakeupTriggered {
		t.Fatalf("expected newest event to be beta's wake-up, got %+v", events)
	}
}

func TestTriggerScansFromHead(t *testing.T) {
	dir := setupProject(t)
	if _, err := run(t, dir, "complete", "alpha"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	output, err := run(t, dir, "--json", "trigger")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	var result scheduler.TriggerResult
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("decode %q: %v", output, err)
	}
	if result.Triggered != "gamma" {
		t.Fatalf("expected gamma, got %+v", result)
	}
	if result.Skipped["alpha"].Reason != scheduler.SkipReasonCompleted {
		t.Fatalf("expected alpha skipped as completed, got %+v", result.Skipped)
	}
	if result.Skipped["beta"].Reason != scheduler.SkipReasonMarker {
		t.Fatalf("expected beta marker consumed, got %+v", result.Skipped)
	}
}

func TestSetStatusValidatesInput(t *testing.T) {
	dir := setupProject(t)

	output, err := run(t, dir, "set-status", "alpha", "exploded")
	if err == nil {
		t.Fatalf("expected invalid status to fail")
	}
	if !strings.Contains(output, "Error:") {
		t.Fatalf("expected error output, got %q", output)
	}

	if _, err := run(t, dir, "set-status", "ghost", "running"); err == nil {
		t.Fatalf("expected unknown role to fail")
	}

	output, err = run(t, dir, "--json", "set-status", "beta", "running")
	if err != nil {
		t.Fatalf("set-status: %v", err)
	}
	var row rolestate.RoleRow
	if err := json.Unmarshal([]byte(output), &row); err != nil {
		t.Fatalf("decode %q: %v", output, err)
	}
	if row.Name != "beta" || row.Status != rolestate.StatusRunning {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestDeferRemovesRoleFromReadySet(t *testing.T) {
	dir := setupProject(t)
	if _, err := run(t, dir, "defer", "alpha", "--for", "2h"); err != nil {
		t.Fatalf("defer: %v", err)
	}
	output, err := run(t, dir, "ready")
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if strings.Contains(output, "alpha") {
		t.Fatalf("deferred role should not be ready, got %q", output)
	}

	if _, err := run(t, dir, "defer", "alpha", "--for", "0s"); err != nil {
		t.Fatalf("clear defer: %v", err)
	}
	output, err = run(t, dir, "ready")
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if !strings.Contains(output, "alpha") {
		t.Fatalf("cleared role should be ready again, got %q", output)
	}
}

func TestReportRendersMarkdown(t *testing.T) {
	dir := setupProject(t)
	if _, err := run(t, dir, "complete", "alpha", "--failed", "--output", "boom"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	output, err := run(t, dir, "report")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	for _, want := range []string{"# Role Scheduling Status", "| alpha | failed |", "- **Failed**: 1"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected report to contain %q, got:\n%s", want, output)
		}
	}
}

func TestNewlyMarked(t *testing.T) {
	before := snapshot.Snapshot{SkipMarkers: []string{"beta"}}
	after := snapshot.Snapshot{SkipMarkers: []string{"beta", "delta"}}
	if got := newlyMarked(before, after); got != "delta" {
		t.Fatalf("expected delta, got %q", got)
	}
	if got := newlyMarked(after, after); got != "" {
		t.Fatalf("expected no new marker, got %q", got)
	}
}

func TestReportVerifyChecksOnDiskReport(t *testing.T) {
	dir := setupProject(t)
	output, err := run(t, dir, "report", "--verify")
	if err != nil {
		t.Fatalf("verify: %v (%s)", err, output)
	}
	if !strings.Contains(output, "ok (3 roles") {
		t.Fatalf("unexpected verify output %q", output)
	}
}

func TestHistoryJournalTailsLogFile(t *testing.T) {
	dir := setupProject(t)
	if _, err := run(t, dir, "complete", "alpha", "--failed", "--output", "boom"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	output, err := run(t, dir, "history", "--journal", "-n", "1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(output, "role=alpha status=failed") || !strings.Contains(output, "(1 of ") {
		t.Fatalf("unexpected journal output %q", output)
	}

	output, err = run(t, dir, "--json", "history", "--journal")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var tail struct {
		Lines []string `json:"lines"`
		Total int      `json:"total"`
	}
	if err := json.Unmarshal([]byte(output), &tail); err != nil {
		t.Fatalf("decode %q: %v", output, err)
	}
	if tail.Total != len(tail.Lines) || tail.Total < 2 {
		t.Fatalf("expected whole journal, got %+v", tail)
	}
	if !strings.Contains(tail.Lines[0], "initialized with 3 roles") {
		t.Fatalf("expected journal to open with the initial reset, got %q", tail.Lines[0])
	}
}
