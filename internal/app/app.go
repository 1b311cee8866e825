// Package app assembles a scheduler engine from project configuration and
// restores the last persisted snapshot.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/rolechain/internal/config"
	"github.com/kingrea/rolechain/internal/eventbridge"
	"github.com/kingrea/rolechain/internal/history"
	"github.com/kingrea/rolechain/internal/logbook"
	"github.com/kingrea/rolechain/internal/notify"
	"github.com/kingrea/rolechain/internal/roles"
	"github.com/kingrea/rolechain/internal/rolestate"
	"github.com/kingrea/rolechain/internal/scheduler"
	"github.com/kingrea/rolechain/internal/snapshot"
	"github.com/kingrea/rolechain/plugins"
)

// StartMode describes how the engine state was established by Open.
type StartMode string

const (
	// StartInitialized means no snapshot existed and defaults were written.
	StartInitialized StartMode = "initialized"
	// StartRestored means the snapshot was loaded in full.
	StartRestored StartMode = "restored"
	// StartFresh means a snapshot existed but the fresh policy reset it.
	StartFresh StartMode = "fresh"
	// StartRecovered means the snapshot could not be read and defaults were used.
	StartRecovered StartMode = "recovered"
)

const loadTimeout = 5 * time.Second

// App bundles the wired components for one project.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *roles.Registry
	Engine   *scheduler.Engine
	Router   *eventbridge.Router
	Journal  *logbook.Logbook
	Mode     StartMode

	repo    snapshot.Repository
	webhook *notify.Webhook
	closers []io.Closer
}

type options struct {
	clock    func() time.Time
	notifier scheduler.Notifier
}

// Option customizes Open.
type Option func(*options)

// WithClock injects the clock used by the engine and router.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithExtraNotifier adds a notifier alongside the configured ones.
func WithExtraNotifier(n scheduler.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// Open builds the engine for cfg and restores persisted state according to
// the configured restore policy.
func Open(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	base, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	reg, err := plugins.Extend(base, cfg.RolesDir())
	if err != nil {
		return nil, fmt.Errorf("app: load roster extensions: %w", err)
	}
	if reg.Len() > base.Len() {
		logger.Info("roster extended", zap.Int("configured", base.Len()), zap.Int("total", reg.Len()))
	}
	a := &App{Config: cfg, Logger: logger, Registry: reg}

	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		return nil, fmt.Errorf("app: open journal: %w", err)
	}
	a.Journal = journal
	store, err := rolestate.NewStore(reg, history.New(journal), rolestate.WithStagger(cfg.Stagger()))
	if err != nil {
		return nil, err
	}

	repo, err := a.openRepository()
	if err != nil {
		return nil, err
	}
	reporter, err := snapshot.NewReporter(repo,
		snapshot.WithReportFile(cfg.ReportPath()),
		snapshot.WithWindow(cfg.HistoryWindow()))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Router = eventbridge.NewRouter(
		eventbridge.RouterWithLogger(logger.Named("router")),
		eventbridge.RouterWithClock(o.clock))
	notifiers := notify.Multi{a.Router}
	configured, err := a.configuredNotifier()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if configured != nil {
		notifiers = append(notifiers, configured)
	}
	if o.notifier != nil {
		notifiers = append(notifiers, o.notifier)
	}

	engine, err := scheduler.New(reg, store,
		scheduler.WithClock(o.clock),
		scheduler.WithLogger(logger.Named("scheduler")),
		scheduler.WithNotifier(notifiers),
		scheduler.WithReporter(reporter))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Engine = engine
	a.restore()
	return a, nil
}

// Close waits for in-flight webhook deliveries and releases storage handles.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.webhook != nil {
		a.webhook.Wait()
	}
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Repository exposes the snapshot store backing the engine.
func (a *App) Repository() snapshot.Repository {
	return a.repo
}

func (a *App) openRepository() (snapshot.Repository, error) {
	switch a.Config.Backend() {
	case config.BackendSQLite:
		repo, err := snapshot.OpenSQLite(a.Config.StatePath())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo)
		a.repo = repo
	default:
		a.repo = snapshot.NewFileRepository(a.Config.StatePath())
	}
	return a.repo, nil
}

func (a *App) configuredNotifier() (scheduler.Notifier, error) {
	nc := a.Config.Project.Notifier
	switch nc.Kind {
	case config.NotifierNone:
		return nil, nil
	case config.NotifierWebhook:
		hook, err := notify.NewWebhook(nc.WebhookURL,
			notify.WithWebhookLogger(a.Logger.Named("webhook")),
			notify.WithTimeout(a.Config.NotifierTimeout()))
		if err != nil {
			return nil, err
		}
		a.webhook = hook
		return hook, nil
	default:
		return notify.NewLog(a.Logger.Named("notify")), nil
	}
}

func (a *App) restore() {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	snap, err := a.repo.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		a.Engine.Initialize()
		a.Mode = StartInitialized
	case err != nil:
		a.Logger.Warn("snapshot unreadable, starting from defaults", zap.Error(err))
		a.Journal.Warn("state %s unreadable, reset to defaults: %v", a.Config.StatePath(), err)
		a.Engine.Initialize()
		a.Mode = StartRecovered
	case a.Config.RestorePolicy() == config.RestoreFresh:
		a.Engine.Initialize()
		a.Mode = StartFresh
	default:
		a.Engine.Restore(snap)
		a.Mode = StartRestored
	}
	// Restores happen on every CLI call; only state resets are journaled.
	if a.Mode != StartRestored && a.Mode != StartRecovered {
		a.Journal.Info("state %s %s with %d roles", a.Config.StatePath(), a.Mode, a.Registry.Len())
	}
	a.Logger.Info("engine ready", zap.String("mode", string(a.Mode)), zap.String("state", a.Config.StatePath()))
}
