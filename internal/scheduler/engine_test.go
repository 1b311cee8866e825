package scheduler

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/kingrea/rolechain/internal/history"
	"github.com/kingrea/rolechain/internal/roles"
	"github.com/kingrea/rolechain/internal/rolestate"
	"github.com/kingrea/rolechain/internal/snapshot"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	engine   *Engine
	store    *rolestate.Store
	notified []string
	persists []snapshot.Snapshot
	now      time.Time
}

func newHarness(t *testing.T, names ...string) *harness {
	t.Helper()
	defs := make([]roles.Role, len(names))
	for i, name := range names {
		defs[i] = roles.Role{Name: name, Frequency: time.Duration(i+2) * time.Minute}
	}
	reg, err := roles.New(defs)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	store, err := rolestate.NewStore(reg, history.New(nil))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	h := &harness{store: store, now: epoch}
	eng, err := New(reg, store,
		WithClock(func() time.Time { return h.now }),
		WithNotifier(NotifierFunc(func(role string) { h.notified = append(h.notified, role) })),
		WithReporter(reporterFunc(func(_ context.Context, s snapshot.Snapshot) error {
			h.persists = append(h.persists, s)
			return nil
		})),
	)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	eng.Initialize()
	h.engine = eng
	h.persists = nil
	return h
}

type reporterFunc func(context.Context, snapshot.Snapshot) error

func (f reporterFunc) Persist(ctx context.Context, s snapshot.Snapshot) error { return f(ctx, s) }

func (h *harness) state(t *testing.T, role string) rolestate.State {
	t.Helper()
	state, err := h.engine.Role(role)
	if err != nil {
		t.Fatalf("role %s: %v", role, err)
	}
	return state
}

func TestInitializeDefaultsEveryRole(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	for _, row := range h.engine.Roles() {
		if row.Status != rolestate.StatusPending || row.ErrorCount != 0 {
			t.Fatalf("unexpected initial state for %s: %+v", row.Name, row.State)
		}
	}
	if !h.engine.SystemStatus().Initialized {
		t.Fatalf("expected initialized flag")
	}
}

func TestCompletionTriggersNextRole(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	h.now = epoch.Add(10 * time.Second)
	if err := h.engine.MarkRoleCompleted("A", true, "done"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	b := h.state(t, "B")
	if b.Status != rolestate.StatusPending {
		t.Fatalf("expected B pending, got %s", b.Status)
	}
	if b.NextRun == nil || !b.NextRun.Equal(h.now) {
		t.Fatalf("expected B next run = now, got %v", b.NextRun)
	}
	if !h.engine.SkipMarked("B") {
		t.Fatalf("expected B skip-marked")
	}
	if !reflect.DeepEqual(h.notified, []string{"B"}) {
		t.Fatalf("expected notifier called with B, got %v", h.notified)
	}
	c := h.state(t, "C")
	if !c.NextRun.Equal(epoch.Add(2*time.Minute)) || h.engine.SkipMarked("C") {
		t.Fatalf("expected C untouched, got %+v", c)
	}
	events := h.engine.History(10)
	if len(events) != 2 || events[0].Role != "A" || events[1].Status != history.StatusWakeupTriggered || events[1].Role != "B" {
		t.Fatalf("unexpected history: %+v", events)
	}
	if len(h.persists) != 1 {
		t.Fatalf("expected a single persist, got %d", len(h.persists))
	}
	if got := h.persists[0].SkipMarkers; !reflect.DeepEqual(got, []string{"B"}) {
		t.Fatalf("persisted skip markers = %v", got)
	}
}

func TestCompletionSkipsCompletedRoles(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	if err := h.engine.UpdateStatus("B", rolestate.StatusCompleted); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := h.engine.MarkRoleCompleted("A", true, ""); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if !reflect.DeepEqual(h.notified, []string{"C"}) {
		t.Fatalf("expected C triggered, got %v", h.notified)
	}
}

func TestTriggerSkipsRunningAndDeferredRoles(t *testing.T) {
	h := newHarness(t, "A", "B", "C", "D")
	if err := h.engine.UpdateStatus("B", rolestate.StatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.Defer("C", epoch.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	result, err := h.engine.TriggerNextRole("A")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if result.Triggered != "D" {
		t.Fatalf("expected D, got %+v", result)
	}
	if result.Skipped["B"].Reason != SkipReasonRunning || result.Skipped["C"].Reason != SkipReasonDeferred {
		t.Fatalf("unexpected skip reasons: %+v", result.Skipped)
	}
}

func TestSkipMarkerIsOneShot(t *testing.T) {
	h := newHarness(t, "A", "B")
	if err := h.engine.MarkRoleCompleted("A", true, ""); err != nil {
		t.Fatal(err)
	}
	if !h.engine.SkipMarked("B") {
		t.Fatalf("expected B marked after trigger")
	}
	// B is marked: the next pass consumes the marker and triggers nothing.
	h.notified = nil
	if err := h.engine.MarkRoleCompleted("A", true, ""); err != nil {
		t.Fatal(err)
	}
	if h.engine.SkipMarked("B") {
		t.Fatalf("expected marker consumed")
	}
	if len(h.notified) != 0 {
		t.Fatalf("expected no trigger while marked, got %v", h.notified)
	}
	// With the marker gone B is eligible again.
	if err := h.engine.MarkRoleCompleted("A", true, ""); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(h.notified, []string{"B"}) {
		t.Fatalf("expected B triggered again, got %v", h.notified)
	}
}

func TestSkipMarkedTailEndsScanWithoutTrigger(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.engine.mu.Lock()
	h.engine.skip["B"] = struct{}{}
	h.engine.mu.Unlock()
	if err := h.engine.MarkRoleCompleted("A", true, ""); err != nil {
		t.Fatal(err)
	}
	if h.engine.SkipMarked("B") {
		t.Fatalf("expected B removed from skip markers")
	}
	if len(h.notified) != 0 {
		t.Fatalf("expected no trigger, got %v", h.notified)
	}
	if b := h.state(t, "B"); b.Status != rolestate.StatusPending || !b.NextRun.Equal(epoch.Add(time.Minute)) {
		t.Fatalf("expected B untouched, got %+v", b)
	}
}

func TestTriggerNeverSelectsEarlierRoles(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	if err := h.engine.MarkRoleCompleted("C", true, ""); err != nil {
		t.Fatal(err)
	}
	if len(h.notified) != 0 {
		t.Fatalf("scan must not wrap around, got %v", h.notified)
	}
	if err := h.engine.MarkRoleCompleted("B", true, ""); err != nil {
		t.Fatal(err)
	}
	if len(h.notified) != 0 {
		t.Fatalf("C is completed and A precedes B; expected no trigger, got %v", h.notified)
	}
}

func TestFailedCompletionCountsErrorWithoutTrigger(t *testing.T) {
	h := newHarness(t, "A", "B")
	if err := h.engine.MarkRoleCompleted("A", false, "exit 1"); err != nil {
		t.Fatal(err)
	}
	a := h.state(t, "A")
	if a.Status != rolestate.StatusFailed || a.ErrorCount != 1 || a.CompletionTime == nil {
		t.Fatalf("unexpected failed state: %+v", a)
	}
	if len(h.notified) != 0 || h.engine.SkipMarked("B") {
		t.Fatalf("failure must not trigger the next role")
	}
	if len(h.persists) != 1 {
		t.Fatalf("expected snapshot persisted after failure, got %d", len(h.persists))
	}
}

func TestFailedDownstreamRoleIsReselected(t *testing.T) {
	h := newHarness(t, "A", "B")
	if err := h.engine.MarkRoleCompleted("B", false, ""); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.MarkRoleCompleted("A", true, ""); err != nil {
		t.Fatal(err)
	}
	b := h.state(t, "B")
	if !reflect.DeepEqual(h.notified, []string{"B"}) || b.Status != rolestate.StatusPending {
		t.Fatalf("expected failed B re-selected as pending, got %v %+v", h.notified, b)
	}
	if b.ErrorCount != 1 || b.CompletionTime != nil {
		t.Fatalf("expected error count kept and completion cleared, got %+v", b)
	}
}

func TestUnknownRoleLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, "A", "B")
	before := h.engine.Snapshot()
	if err := h.engine.MarkRoleCompleted("ghost", true, ""); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if err := h.engine.UpdateStatus("ghost", rolestate.StatusRunning); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if _, err := h.engine.Role("ghost"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	after := h.engine.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed after unknown role calls")
	}
	if len(h.persists) != 0 || len(h.notified) != 0 {
		t.Fatalf("unknown role must not persist or notify")
	}
}

func TestTriggerNextRoleOrderLookupFailure(t *testing.T) {
	h := newHarness(t, "A")
	if _, err := h.engine.TriggerNextRole("ghost"); !errors.Is(err, ErrOrderLookup) {
		t.Fatalf("expected ErrOrderLookup, got %v", err)
	}
}

func TestReadyRolesHonorsTimeMarkersAndStatus(t *testing.T) {
	h := newHarness(t, "A", "B", "C", "D", "E")
	// A due at epoch, B at +1m, C at +2m ...
	h.now = epoch.Add(3 * time.Minute)
	if err := h.engine.UpdateStatus("B", rolestate.StatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.MarkRoleCompleted("C", false, ""); err != nil {
		t.Fatal(err)
	}
	h.engine.mu.Lock()
	h.engine.skip["D"] = struct{}{}
	h.engine.mu.Unlock()
	got := h.engine.ReadyRoles()
	// A pending+due, C failed+due, D marked, E not yet due.
	if !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Fatalf("ready roles = %v", got)
	}
	if err := h.engine.Defer("A", h.now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if got := h.engine.ReadyRoles(); !reflect.DeepEqual(got, []string{"C"}) {
		t.Fatalf("ready roles after defer = %v", got)
	}
}

func TestSystemStatusCounts(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	if err := h.engine.MarkRoleCompleted("A", true, ""); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.UpdateStatus("B", rolestate.StatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.MarkRoleCompleted("C", false, ""); err != nil {
		t.Fatal(err)
	}
	status := h.engine.SystemStatus()
	want := SystemStatus{
		Initialized:     true,
		TotalRoles:      3,
		CompletedRoles:  1,
		RunningRoles:    1,
		FailedRoles:     1,
		SkippedRoles:    1,
		TotalExecutions: 3,
		ReadyRoles:      []string{},
	}
	if !reflect.DeepEqual(status, want) {
		t.Fatalf("system status = %+v, want %+v", status, want)
	}
}

func TestKickoffTriggersFirstEligibleRole(t *testing.T) {
	h := newHarness(t, "A", "B")
	if err := h.engine.UpdateStatus("A", rolestate.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	result := h.engine.Kickoff()
	if result.Triggered != "B" || !reflect.DeepEqual(h.notified, []string{"B"}) {
		t.Fatalf("expected kickoff to trigger B, got %+v", result)
	}
}

func TestKickoffRetriesFailedHead(t *testing.T) {
	h := newHarness(t, "A", "B")
	if err := h.engine.MarkRoleCompleted("A", false, "boom"); err != nil {
		t.Fatal(err)
	}
	if len(h.notified) != 0 {
		t.Fatalf("failure must not wake anyone, got %v", h.notified)
	}
	result := h.engine.Kickoff()
	if result.Triggered != "A" || !reflect.DeepEqual(h.notified, []string{"A"}) {
		t.Fatalf("expected kickoff to retry failed A, got %+v", result)
	}
	if !h.engine.SkipMarked("A") {
		t.Fatalf("retried role should carry a skip marker")
	}
}

func TestPersistFailureDoesNotAbortScheduling(t *testing.T) {
	reg := roles.MustNew([]roles.Role{{Name: "A"}, {Name: "B"}})
	store, err := rolestate.NewStore(reg, nil)
	if err != nil {
		t.Fatal(err)
	}
	var notified []string
	eng, err := New(reg, store,
		WithNotifier(NotifierFunc(func(role string) { notified = append(notified, role) })),
		WithReporter(reporterFunc(func(context.Context, snapshot.Snapshot) error { return errors.New("disk full") })),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.MarkRoleCompleted("A", true, ""); err != nil {
		t.Fatalf("persist failures must be swallowed, got %v", err)
	}
	if !reflect.DeepEqual(notified, []string{"B"}) {
		t.Fatalf("expected B triggered despite persist failure, got %v", notified)
	}
}

func TestRestoreRebuildsState(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	if err := h.engine.MarkRoleCompleted("A", true, "ok"); err != nil {
		t.Fatal(err)
	}
	saved := h.engine.Snapshot()

	other := newHarness(t, "A", "B", "C")
	other.engine.Restore(saved)
	restored := other.engine.Snapshot()
	if !reflect.DeepEqual(saved.Roles, restored.Roles) {
		t.Fatalf("roles differ after restore:\n%+v\n%+v", saved.Roles, restored.Roles)
	}
	if !reflect.DeepEqual(saved.SkipMarkers, restored.SkipMarkers) || !reflect.DeepEqual(saved.History, restored.History) {
		t.Fatalf("markers/history differ after restore")
	}
}
