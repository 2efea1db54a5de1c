package supervisor

import (
	"time"

	"github.com/turtacn/wmswitch/internal/arbiter"
	"github.com/turtacn/wmswitch/internal/candidate"
	"github.com/turtacn/wmswitch/internal/eventloop"
	"github.com/turtacn/wmswitch/internal/monitor"
	"github.com/turtacn/wmswitch/internal/notify"
	"github.com/turtacn/wmswitch/pkg/consts"
	"github.com/turtacn/wmswitch/pkg/fsm"
	"github.com/turtacn/wmswitch/pkg/logger"
)

// SelectionRecorder persists the executable chosen by a toggle.
type SelectionRecorder interface {
	RecordSelection(execName string) error
}

// Options are the supervisor timings.
type Options struct {
	CheckPeriod  time.Duration
	RespawnDelay time.Duration
	NotifyDelay  time.Duration
}

// Status is a snapshot for logging and diagnostics.
type Status struct {
	State       consts.SupervisorState
	Current     candidate.Choice
	InitialVote candidate.Choice
	Permission  arbiter.Permission
	Pid         int
	ProcessID   string
	Spawns      int
}

// Supervisor owns the single window manager process. Every method must be
// called from the scheduler's goroutine; process exits are posted back to it.
type Supervisor struct {
	reg        *candidate.Registry
	sched      eventloop.Scheduler
	launcher   Launcher
	executable func(string) bool
	selections SelectionRecorder
	notifier   notify.Notifier
	opts       Options
	sm         *fsm.StateMachine
	log        logger.Logger

	permission  arbiter.Permission
	current     candidate.Choice
	initialVote candidate.Choice
	pending     notify.Kind
	proc        *Process
	spawns      int

	notifyTask  eventloop.Handle
	respawnTask eventloop.Handle
	healthTask  eventloop.Handle
}

// Config wires a Supervisor to its collaborators. Executable defaults to a
// $PATH lookup.
type Config struct {
	Registry   *candidate.Registry
	Scheduler  eventloop.Scheduler
	Launcher   Launcher
	Executable func(string) bool
	Selections SelectionRecorder
	Notifier   notify.Notifier
	Options    Options
}

func New(cfg Config) *Supervisor {
	s := &Supervisor{
		reg:        cfg.Registry,
		sched:      cfg.Scheduler,
		launcher:   cfg.Launcher,
		executable: cfg.Executable,
		selections: cfg.Selections,
		notifier:   cfg.Notifier,
		opts:       cfg.Options,
		log:        logger.Log.With("component", "supervisor"),
	}
	if s.executable == nil {
		s.executable = Executable
	}
	if s.notifier == nil {
		s.notifier = notify.Silent{}
	}
	s.sm = newMachine()
	return s
}

func newMachine() *fsm.StateMachine {
	idle := fsm.State(consts.StateIdle)
	running := fsm.State(consts.StateRunning)
	respawning := fsm.State(consts.StateRespawning)

	sm := fsm.New(idle)
	for _, from := range []fsm.State{idle, running, respawning} {
		sm.AddTransition(from, running, consts.EventSpawned, nil)
		sm.AddTransition(from, idle, consts.EventExhausted, nil)
		sm.AddTransition(from, respawning, consts.EventToggled, nil)
		sm.AddTransition(from, respawning, consts.EventExited, nil)
	}
	sm.AddTransition(idle, respawning, consts.EventRevived, nil)
	return sm
}

func (s *Supervisor) fire(ev fsm.Event) {
	if !s.sm.Can(ev) {
		s.log.Debug("State transition skipped", "event", ev, "state", s.sm.Current())
		return
	}
	if err := s.sm.Fire(ev); err != nil {
		s.log.Debug("State transition skipped", "event", ev, "err", err)
	}
}

// Start adopts an arbitration result and launches its winner. The winner
// becomes the initial vote used by health-check relaunches.
func (s *Supervisor) Start(res arbiter.Result) {
	s.Apply(res)
	s.initialVote = res.Winner
	s.current = res.Winner
	s.log.Info("Starting", "candidate", s.current.String(), "permission", s.permission.String())
	s.spawn(notify.KindNone)
	s.healthTask = s.sched.After(s.opts.CheckPeriod, s.onHealthTick)
}

// Apply replaces the permission and environment overlays without touching
// the current candidate or the running process.
func (s *Supervisor) Apply(res arbiter.Result) {
	s.permission = res.Permission
	for _, c := range []candidate.Choice{candidate.Primary, candidate.Fallback} {
		s.reg.SetEnv(c, res.EnvFor(c))
	}
}

// RequestToggle switches to the other candidate if the permission allows it.
func (s *Supervisor) RequestToggle() {
	if s.current.IsNone() {
		s.log.Warn("Toggle ignored, no candidate selected")
		monitor.ToggleTotal.WithLabelValues("ignored").Inc()
		return
	}
	if !s.toggleAllowed() {
		s.log.Info("Toggle rejected", "current", s.current.String(), "permission", s.permission.String())
		monitor.ToggleTotal.WithLabelValues("rejected").Inc()
		return
	}

	s.current = s.current.Other()
	cand := s.reg.Get(s.current)
	if s.selections != nil {
		if err := s.selections.RecordSelection(cand.ExecName); err != nil {
			s.log.Warn("Failed to persist selection", "exec", cand.ExecName, "err", err)
		}
	}
	monitor.ToggleTotal.WithLabelValues("accepted").Inc()
	s.log.Info("Toggling", "to", s.current.String(), "exec", cand.ExecName)

	s.fire(consts.EventToggled)
	s.spawn(startingKind(s.current))
}

func (s *Supervisor) toggleAllowed() bool {
	if s.permission == arbiter.SwitchNone {
		// Stuck on the fallback: tell the user why nothing happens.
		if s.current == candidate.Fallback {
			notify.Deliver(s.notifier, notify.KindSwitchError)
		}
		return false
	}
	return s.permission.Allows(s.current)
}

func startingKind(c candidate.Choice) notify.Kind {
	if c == candidate.Fallback {
		return notify.KindFallbackStarting
	}
	return notify.KindPrimaryStarting
}

// sanityCheck moves away from a current candidate whose executable is gone.
// Any queued notification is dropped since it no longer describes what starts.
func (s *Supervisor) sanityCheck() {
	if s.current.IsNone() || s.executable(s.reg.Get(s.current).ExecName) {
		return
	}
	missing := s.current
	other := missing.Other()
	if s.executable(s.reg.Get(other).ExecName) {
		s.current = other
	} else {
		s.current = candidate.None
	}
	s.pending = notify.KindNone
	monitor.FailoverTotal.WithLabelValues("missing").Inc()
	s.log.Warn("Candidate not executable", "missing", s.reg.Get(missing).ExecName, "now", s.current.String())
}

// spawn launches the current candidate. A notification still queued from an
// earlier spawn is dropped; announce replaces it.
func (s *Supervisor) spawn(announce notify.Kind) {
	cancel(&s.respawnTask)
	cancel(&s.notifyTask)
	s.pending = announce
	if s.proc != nil {
		// Left running; the new process replaces it through --replace.
		s.log.Info("Detaching previous process", "pid", s.proc.Pid(), "id", s.proc.ID)
		s.proc = nil
	}

	s.sanityCheck()
	if s.current.IsNone() {
		s.log.Error("No executable candidate, waiting for health check")
		s.setRunning(candidate.None)
		s.fire(consts.EventExhausted)
		return
	}

	cand := s.reg.Get(s.current)
	launched := s.current
	spec := Spec{Exec: cand.ExecName, Args: []string{consts.ReplaceFlag}, Env: cand.EnvList()}
	s.spawns++
	monitor.SpawnTotal.WithLabelValues(launched.String()).Inc()

	var proc *Process
	proc, err := s.launcher.Launch(spec, func(st ExitStatus) {
		s.sched.Post(func() { s.onProcessExited(proc, launched, st) })
	})
	if err != nil {
		s.log.Warn("Launch did not complete", "exec", spec.Exec, "err", err)
		if s.permission != arbiter.SwitchBoth && launched == candidate.Primary {
			s.pending = notify.KindSwitchError
		}
	}

	if proc != nil {
		s.proc = proc
		s.setRunning(launched)
		s.fire(consts.EventSpawned)
		s.log.Info("Spawned", "candidate", launched.String(), "exec", spec.Exec, "pid", proc.Pid(), "id", proc.ID)
	} else {
		s.handleExit(launched, ExitStatus{Code: -1, Crashed: true})
	}

	s.notifyTask = s.sched.After(s.opts.NotifyDelay, s.deliverPending)
}

func (s *Supervisor) deliverPending() {
	s.notifyTask = nil
	k := s.pending
	s.pending = notify.KindNone
	notify.Deliver(s.notifier, k)
}

func (s *Supervisor) onProcessExited(proc *Process, launched candidate.Choice, st ExitStatus) {
	if proc == nil || proc != s.proc {
		s.log.Debug("Ignoring exit of detached process", "candidate", launched.String(), "code", st.Code)
		return
	}
	s.proc = nil
	s.setRunning(candidate.None)
	s.handleExit(launched, st)
}

func (s *Supervisor) handleExit(launched candidate.Choice, st ExitStatus) {
	reason := "clean"
	switch {
	case st.Crashed:
		reason = "crashed"
	case st.Code != 0:
		reason = "failed"
	}
	monitor.ExitTotal.WithLabelValues(launched.String(), reason).Inc()
	s.log.Warn("Window manager exited", "candidate", launched.String(), "code", st.Code, "reason", reason)

	if st.Failed() && s.permission.Allows(s.current) {
		s.current = s.current.Other()
		monitor.FailoverTotal.WithLabelValues("crash").Inc()
		s.log.Info("Failing over", "to", s.current.String())
	}

	s.fire(consts.EventExited)
	cancel(&s.respawnTask)
	s.respawnTask = s.sched.After(s.opts.RespawnDelay, func() {
		s.respawnTask = nil
		s.spawn(notify.KindNone)
	})
}

func (s *Supervisor) onHealthTick() {
	if s.current.IsNone() {
		s.log.Warn("Nothing running, relaunching initial choice", "candidate", s.initialVote.String())
		s.current = s.initialVote
		s.fire(consts.EventRevived)
		s.spawn(notify.KindNone)
	}
	s.healthTask = s.sched.After(s.opts.CheckPeriod, s.onHealthTick)
}

func (s *Supervisor) setRunning(c candidate.Choice) {
	for _, k := range []candidate.Choice{candidate.Primary, candidate.Fallback} {
		v := 0.0
		if k == c {
			v = 1
		}
		monitor.Running.WithLabelValues(k.String()).Set(v)
	}
}

// Shutdown stops every timer and asks the owned process to terminate.
func (s *Supervisor) Shutdown() {
	cancel(&s.healthTask)
	cancel(&s.respawnTask)
	cancel(&s.notifyTask)
	if s.proc != nil {
		if err := s.proc.Terminate(); err != nil {
			s.log.Warn("Terminate failed", "pid", s.proc.Pid(), "err", err)
		}
		s.proc = nil
	}
	s.setRunning(candidate.None)
}

// Status reports the current supervision state.
func (s *Supervisor) Status() Status {
	st := Status{
		State:       consts.SupervisorState(s.sm.Current()),
		Current:     s.current,
		InitialVote: s.initialVote,
		Permission:  s.permission,
		Spawns:      s.spawns,
	}
	if s.proc != nil {
		st.Pid = s.proc.Pid()
		st.ProcessID = s.proc.ID
	}
	return st
}

func cancel(h *eventloop.Handle) {
	if *h != nil {
		(*h).Cancel()
		*h = nil
	}
}

// Personal.AI order the ending
