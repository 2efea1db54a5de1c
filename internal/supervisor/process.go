package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	wmerrors "github.com/turtacn/wmswitch/pkg/errors"
	"github.com/turtacn/wmswitch/pkg/logger"
	"golang.org/x/sys/unix"
)

// Spec describes one launch.
type Spec struct {
	Exec string
	Args []string
	Env  []string // KEY=VALUE overlay on the inherited environment
}

// ExitStatus is how a process ended.
type ExitStatus struct {
	Code    int
	Crashed bool // killed by a signal or never started
}

// Failed reports whether the exit should count as a failure.
func (e ExitStatus) Failed() bool { return e.Crashed || e.Code != 0 }

// Process is a handle on one launched candidate. A new handle is created
// for every launch; handles are never reused.
type Process struct {
	ID   string
	Exec string

	mu   sync.Mutex
	proc *os.Process // set once the fork/exec completed, possibly after Launch returned
}

func (p *Process) attach(proc *os.Process) {
	p.mu.Lock()
	p.proc = proc
	p.mu.Unlock()
}

// Pid is the OS process id, or 0 while the process has not started.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proc == nil {
		return 0
	}
	return p.proc.Pid
}

// Terminate asks the process to exit with SIGTERM.
func (p *Process) Terminate() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	proc := p.proc
	p.mu.Unlock()
	if proc == nil {
		return nil
	}
	logger.Log.Info("Supervisor: Sending SIGTERM", "pid", proc.Pid, "exec", p.Exec)
	return proc.Signal(syscall.SIGTERM)
}

// Launcher starts candidate processes. onExit is called exactly once from
// an arbitrary goroutine when a started process ends.
type Launcher interface {
	Launch(spec Spec, onExit func(ExitStatus)) (*Process, error)
}

// ProcessManager launches real OS processes.
type ProcessManager struct {
	startTimeout time.Duration
}

func NewProcessManager(startTimeout time.Duration) *ProcessManager {
	return &ProcessManager{startTimeout: startTimeout}
}

// Launch starts spec and waits up to the start timeout for the fork/exec to
// complete. On timeout the handle is still returned together with an
// ErrCodeStartTimeout error; the exit is reported later as usual. If the
// start finally fails after the timeout, onExit receives a crash status.
func (pm *ProcessManager) Launch(spec Spec, onExit func(ExitStatus)) (*Process, error) {
	if spec.Exec == "" {
		return nil, wmerrors.New(wmerrors.ErrCodeLaunchFailed, "launch", "empty command", nil)
	}

	cmd := exec.Command(spec.Exec, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	p := &Process{ID: uuid.NewString(), Exec: spec.Exec}

	var (
		mu        sync.Mutex
		abandoned bool
	)
	started := make(chan error, 1)

	logger.Log.Info("Supervisor: Forking process", "cmd", spec.Exec, "args", spec.Args, "id", p.ID)
	go func() {
		err := cmd.Start()
		if err == nil {
			p.attach(cmd.Process)
		}

		mu.Lock()
		late := abandoned
		if !late {
			started <- err
		}
		mu.Unlock()

		if err != nil {
			if late {
				onExit(ExitStatus{Code: -1, Crashed: true})
			}
			return
		}
		onExit(exitStatus(cmd.Wait()))
	}()

	timer := time.NewTimer(pm.startTimeout)
	defer timer.Stop()

	select {
	case err := <-started:
		return pm.started(p, err)
	case <-timer.C:
		mu.Lock()
		defer mu.Unlock()
		select {
		case err := <-started:
			return pm.started(p, err)
		default:
			abandoned = true
			return p, wmerrors.New(wmerrors.ErrCodeStartTimeout, "launch", spec.Exec+" did not start in time", nil)
		}
	}
}

func (pm *ProcessManager) started(p *Process, err error) (*Process, error) {
	if err != nil {
		return nil, wmerrors.New(wmerrors.ErrCodeLaunchFailed, "launch", p.Exec+" failed to start", err)
	}
	return p, nil
}

func exitStatus(err error) ExitStatus {
	if err == nil {
		return ExitStatus{}
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return ExitStatus{Code: -1, Crashed: true}
		}
		return ExitStatus{Code: ee.ExitCode()}
	}
	return ExitStatus{Code: -1, Crashed: true}
}

// Executable reports whether name resolves on $PATH to a file the current
// user may execute.
func Executable(name string) bool {
	path, err := exec.LookPath(name)
	if err != nil {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}

// Personal.AI order the ending
