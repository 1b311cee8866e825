package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/rolechain/internal/eventbridge"
	"github.com/kingrea/rolechain/internal/roles"
	"github.com/kingrea/rolechain/internal/rolestate"
	"github.com/kingrea/rolechain/internal/scheduler"
)

type waitResult struct {
	event eventbridge.WakeEvent
	woke  bool
	err   error
}

type fakeBridge struct {
	mu        sync.Mutex
	waits     []waitResult
	statuses  []rolestate.Status
	completed []completion
}

type completion struct {
	success bool
	output  string
}

func (f *fakeBridge) WaitForWake(ctx context.Context, role string, _ time.Duration) (eventbridge.WakeEvent, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.waits) == 0 {
		return eventbridge.WakeEvent{}, false, ctx.Err()
	}
	next := f.waits[0]
	f.waits = f.waits[1:]
	return next.event, next.woke, next.err
}

func (f *fakeBridge) SetStatus(_ context.Context, role string, status rolestate.Status) (rolestate.RoleRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return rolestate.RoleRow{Name: role, State: rolestate.State{Status: status}}, nil
}

func (f *fakeBridge) Complete(_ context.Context, role string, success bool, output string) (rolestate.RoleRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, completion{success: success, output: output})
	return rolestate.RoleRow{Name: role}, nil
}

func TestRunHandlesOneWake(t *testing.T) {
	bridge := &fakeBridge{waits: []waitResult{
		{woke: false},
		{event: eventbridge.WakeEvent{Role: "qa-engineer", EventID: "evt-1"}, woke: true},
	}}
	var seen []string
	exec := ExecutorFunc(func(_ context.Context, e eventbridge.WakeEvent) (string, error) {
		seen = append(seen, e.EventID)
		return "all green\n", nil
	})
	r, err := New("qa-engineer", bridge, exec, Once())
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, []string{"evt-1"}, seen)
	assert.Equal(t, []rolestate.Status{rolestate.StatusRunning}, bridge.statuses)
	assert.Equal(t, []completion{{success: true, output: "all green"}}, bridge.completed)
}

func TestRunReportsFailure(t *testing.T) {
	bridge := &fakeBridge{waits: []waitResult{{event: eventbridge.WakeEvent{Role: "qa-engineer"}, woke: true}}}
	exec := ExecutorFunc(func(context.Context, eventbridge.WakeEvent) (string, error) {
		return "", errors.New("exit status 2")
	})
	r, err := New("qa-engineer", bridge, exec, Once())
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []completion{{success: false, output: "exit status 2"}}, bridge.completed)
}

func TestRunRetriesTransientErrorsAndStopsOnUnknownRole(t *testing.T) {
	bridge := &fakeBridge{waits: []waitResult{
		{err: errors.New("connection refused")},
		{err: fmt.Errorf("%w: unknown role", eventbridge.ErrNotFound)},
	}}
	exec := ExecutorFunc(func(context.Context, eventbridge.WakeEvent) (string, error) { return "", nil })
	r, err := New("ghost", bridge, exec, WithRetryDelay(time.Millisecond))
	require.NoError(t, err)
	err = r.Run(context.Background())
	require.ErrorIs(t, err, eventbridge.ErrNotFound)
	assert.Empty(t, bridge.completed)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := New("qa-engineer", &fakeBridge{}, ExecutorFunc(func(context.Context, eventbridge.WakeEvent) (string, error) { return "", nil }))
	require.NoError(t, err)
	assert.NoError(t, r.Run(ctx))
}

func TestNewValidates(t *testing.T) {
	_, err := New(" ", &fakeBridge{}, ExecutorFunc(nil))
	assert.Error(t, err)
}

func TestTailKeepsEnd(t *testing.T) {
	assert.Equal(t, "cdef", Tail("  abcdef\n", 4))
	assert.Equal(t, "short", Tail("short", 200))
	assert.Equal(t, "éè", Tail("aéè", 2))
}

func TestCommandCapturesOutputAndEnv(t *testing.T) {
	var stdout bytes.Buffer
	cmd := Command{
		Args:   []string{"sh", "-c", `echo "role=$ROLECHAIN_ROLE"; echo oops >&2; exit 3`},
		Stdout: &stdout,
	}
	out, err := cmd.Execute(context.Background(), eventbridge.WakeEvent{Role: "devops-engineer", EventID: "e1"})
	require.Error(t, err)
	assert.Contains(t, out, "role=devops-engineer")
	assert.Contains(t, out, "oops")
	assert.Equal(t, "role=devops-engineer\n", stdout.String())
}

func TestTailBufferBoundsCapture(t *testing.T) {
	buf := &tailBuffer{limit: 4}
	_, _ = buf.Write([]byte("abc"))
	_, _ = buf.Write([]byte("defg"))
	assert.Equal(t, "defg", buf.String())
}

func TestRunnerAgainstBridge(t *testing.T) {
	reg := roles.MustNew([]roles.Role{{Name: "alpha"}, {Name: "beta"}, {Name: "gamma"}})
	store, err := rolestate.NewStore(reg, nil)
	require.NoError(t, err)
	router := eventbridge.NewRouter()
	engine, err := scheduler.New(reg, store, scheduler.WithNotifier(router))
	require.NoError(t, err)
	engine.Initialize()
	settings := eventbridge.Settings{Enabled: true, Host: "127.0.0.1", MaxBodyBytes: 1 << 20, WriteTimeout: 5 * time.Second}
	ts := httptest.NewServer(eventbridge.NewServer(settings, engine, eventbridge.WithRouter(router)).Handler())
	defer ts.Close()
	client := eventbridge.NewClient(ts.URL, ts.Client())

	require.NoError(t, engine.MarkRoleCompleted("alpha", true, ""))
	exec := ExecutorFunc(func(_ context.Context, e eventbridge.WakeEvent) (string, error) {
		return strings.Repeat("x", 300), nil
	})
	r, err := New("beta", client, exec, Once(), WithPollTimeout(time.Second))
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	beta, err := engine.Role("beta")
	require.NoError(t, err)
	assert.Equal(t, rolestate.StatusCompleted, beta.Status)
	assert.NotNil(t, beta.LastRun)
	assert.True(t, engine.SkipMarked("gamma"))
	events := engine.History(2)
	require.Len(t, events, 2)
	assert.Len(t, events[0].Output, 200)
}
