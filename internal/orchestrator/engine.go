package orchestrator

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/turtacn/wmswitch/internal/arbiter"
	"github.com/turtacn/wmswitch/internal/candidate"
	"github.com/turtacn/wmswitch/internal/eventloop"
	"github.com/turtacn/wmswitch/internal/monitor"
	"github.com/turtacn/wmswitch/internal/notify"
	"github.com/turtacn/wmswitch/internal/store"
	"github.com/turtacn/wmswitch/internal/supervisor"
	"github.com/turtacn/wmswitch/internal/trigger"
	"github.com/turtacn/wmswitch/pkg/consts"
	wmerrors "github.com/turtacn/wmswitch/pkg/errors"
	"github.com/turtacn/wmswitch/pkg/logger"
	"github.com/turtacn/wmswitch/pkg/protocol"
	"golang.org/x/sync/errgroup"
)

// Engine wires arbitration, supervision and the toggle sources around one
// event loop.
type Engine struct {
	cfg      *protocol.Config
	store    *store.Store
	registry *candidate.Registry
	pipeline *arbiter.Pipeline
	loop     *eventloop.Loop
	sup      *supervisor.Supervisor
	sources  []trigger.Source
	watcher  *store.Watcher
	log      logger.Logger
}

type options struct {
	launcher   supervisor.Launcher
	executable func(string) bool
	notifier   notify.Notifier
	rules      func(*arbiter.Deps) arbiter.Factory
	sources    []trigger.Source
	custom     bool
}

// Option overrides one of the host-facing collaborators.
type Option func(*options)

func WithLauncher(l supervisor.Launcher) Option { return func(o *options) { o.launcher = l } }

func WithExecutable(f func(string) bool) Option { return func(o *options) { o.executable = f } }

func WithNotifier(n notify.Notifier) Option { return func(o *options) { o.notifier = n } }

// WithRules replaces the arbitration chain.
func WithRules(f func(*arbiter.Deps) arbiter.Factory) Option {
	return func(o *options) { o.rules = f }
}

// WithSources replaces the toggle sources named in the settings.
func WithSources(s ...trigger.Source) Option {
	return func(o *options) {
		o.sources = s
		o.custom = true
	}
}

func NewEngine(cfg *protocol.Config, opts ...Option) (*Engine, error) {
	timing, err := cfg.Timing.Durations()
	if err != nil {
		return nil, wmerrors.New(wmerrors.ErrCodeSettingsInvalid, "engine", "bad timing", err)
	}

	userPath := cfg.Store.UserPath
	if userPath == "" {
		if userPath, err = store.DefaultUserPath(); err != nil {
			return nil, wmerrors.New(wmerrors.ErrCodeSettingsInvalid, "engine", "no user config path", err)
		}
	}

	o := options{
		launcher: supervisor.NewProcessManager(timing.StartupDelay),
		notifier: notify.Silent{},
		rules:    arbiter.DefaultRules,
	}
	if cfg.Notify.Enabled {
		o.notifier = notify.NewOSD(cfg.Notify.Command)
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		cfg:   cfg,
		store: store.New(userPath, cfg.Store.GlobalPath),
		registry: candidate.NewRegistry(
			candidate.Candidate{Name: cfg.Candidates.Primary.Name, ExecName: cfg.Candidates.Primary.Exec},
			candidate.Candidate{Name: cfg.Candidates.Fallback.Name, ExecName: cfg.Candidates.Fallback.Exec},
		),
		loop: eventloop.New(),
		log:  logger.Log.With("component", "engine"),
	}

	deps := arbiter.NewDeps(cfg, e.registry, e.store, timing.ProbeTimeout)
	e.pipeline = arbiter.NewPipeline(o.rules(deps))
	e.sup = supervisor.New(supervisor.Config{
		Registry:   e.registry,
		Scheduler:  e.loop,
		Launcher:   o.launcher,
		Executable: o.executable,
		Selections: e.store,
		Notifier:   o.notifier,
		Options: supervisor.Options{
			CheckPeriod:  timing.CheckPeriod,
			RespawnDelay: timing.RespawnDelay,
			NotifyDelay:  timing.NotifyDelay,
		},
	})

	if o.custom {
		e.sources = o.sources
	} else {
		e.sources = sourcesFor(cfg.Trigger, e.statusReport)
	}
	if cfg.Store.Watch {
		e.watcher = store.NewWatcher(userPath, consts.DefaultWatchDebounce)
	}
	return e, nil
}

func sourcesFor(t protocol.TriggerConfig, status trigger.StatusFunc) []trigger.Source {
	var out []trigger.Source
	if t.DBus {
		out = append(out, trigger.NewDBusService())
	}
	if t.Signal {
		out = append(out, trigger.NewSignalSource())
	}
	if t.SocketPath != "" {
		out = append(out, trigger.NewSocketListener(t.SocketPath, consts.DefaultSocketTimeout).WithStatus(status))
	}
	return out
}

// Run arbitrates, starts the winner and serves toggle requests until ctx is
// done or SIGINT/SIGTERM arrives.
func (e *Engine) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor.Register()
	res := e.pipeline.Run(ctx)
	e.loop.Post(func() { e.sup.Start(res) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.loop.Run(gctx) })

	toggle := func() { e.loop.Post(e.sup.RequestToggle) }
	for _, src := range e.sources {
		src := src
		g.Go(func() error {
			// A missing bus or taken socket costs one way to toggle, not the daemon.
			if err := src.Run(gctx, toggle); err != nil {
				e.log.Warn("Toggle source unavailable", "source", src.Name(), "err", err)
			}
			return nil
		})
	}

	if e.watcher != nil {
		g.Go(func() error {
			if err := e.watcher.Run(gctx, func() { e.rearbitrate(gctx) }); err != nil {
				e.log.Warn("Config watch disabled", "err", err)
			}
			return nil
		})
	}

	if addr := e.cfg.Observability.MetricsAddr; addr != "" {
		g.Go(func() error {
			if err := monitor.Serve(gctx, addr); err != nil {
				e.log.Warn("Metrics disabled", "err", err)
			}
			return nil
		})
	}

	err := g.Wait()
	// The loop has stopped, so the supervisor can be driven from here.
	e.sup.Shutdown()
	e.log.Info("Stopped", "dropped_tasks", e.loop.Len())
	return err
}

// rearbitrate re-runs the rules after an external edit of the user config
// and hands the result to the supervisor. The running process is kept.
func (e *Engine) rearbitrate(ctx context.Context) {
	if !e.store.ChangedOnDisk() {
		e.log.Debug("Config event from our own write, ignored")
		return
	}
	e.log.Info("User config changed, re-arbitrating")
	res := e.pipeline.Run(ctx)
	e.loop.Post(func() { e.sup.Apply(res) })
}

// Status asks the loop for a supervisor snapshot. It blocks until the loop
// answers or ctx is done.
func (e *Engine) Status(ctx context.Context) (supervisor.Status, error) {
	ch := make(chan supervisor.Status, 1)
	e.loop.Post(func() { ch <- e.sup.Status() })
	select {
	case st := <-ch:
		return st, nil
	case <-ctx.Done():
		return supervisor.Status{}, ctx.Err()
	}
}

// statusReport renders Status for the socket's status action.
func (e *Engine) statusReport(ctx context.Context) (trigger.StatusReport, error) {
	st, err := e.Status(ctx)
	if err != nil {
		return trigger.StatusReport{}, err
	}
	rep := trigger.StatusReport{
		State:       string(st.State),
		Current:     st.Current.String(),
		InitialVote: st.InitialVote.String(),
		Permission:  st.Permission.String(),
		Pid:         st.Pid,
		Spawns:      st.Spawns,
	}
	if c := e.registry.Get(st.Current); c != nil {
		rep.Exec = c.ExecName
	}
	return rep, nil
}

// Personal.AI order the ending
