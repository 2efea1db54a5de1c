package notify

import (
	"os/exec"

	"github.com/turtacn/wmswitch/internal/monitor"
	"github.com/turtacn/wmswitch/pkg/logger"
)

// Kind selects one of the user-visible notifications.
type Kind int

const (
	KindNone Kind = iota
	KindPrimaryStarting
	KindFallbackStarting
	KindSwitchError
)

func (k Kind) String() string {
	switch k {
	case KindPrimaryStarting:
		return "primary-starting"
	case KindFallbackStarting:
		return "fallback-starting"
	case KindSwitchError:
		return "switch-error"
	default:
		return "none"
	}
}

// Notifier delivers notifications. Every call is fire-and-forget.
type Notifier interface {
	PrimaryStarting()
	FallbackStarting()
	SwitchError()
}

// Deliver dispatches k on n. KindNone is a no-op.
func Deliver(n Notifier, k Kind) {
	switch k {
	case KindPrimaryStarting:
		n.PrimaryStarting()
	case KindFallbackStarting:
		n.FallbackStarting()
	case KindSwitchError:
		n.SwitchError()
	default:
		return
	}
	monitor.NotificationTotal.WithLabelValues(k.String()).Inc()
}

// OSD shows notifications through the desktop's on-screen display helper.
type OSD struct {
	command string
	start   func(cmd *exec.Cmd) error
	log     logger.Logger
}

func NewOSD(command string) *OSD {
	return &OSD{
		command: command,
		start:   func(cmd *exec.Cmd) error { return cmd.Start() },
		log:     logger.Log.With("component", "notify"),
	}
}

func (o *OSD) PrimaryStarting()  { o.exec("--SwitchWM3D") }
func (o *OSD) FallbackStarting() { o.exec("--SwitchWM2D") }
func (o *OSD) SwitchError()      { o.exec("--SwitchWMError") }

// exec starts the helper and reaps it in the background. The outcome is only logged.
func (o *OSD) exec(flag string) {
	cmd := exec.Command(o.command, flag)
	if err := o.start(cmd); err != nil {
		o.log.Warn("Notification helper failed to start", "cmd", o.command, "flag", flag, "err", err)
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			o.log.Debug("Notification helper exited with error", "flag", flag, "err", err)
		}
	}()
}

// Silent discards every notification.
type Silent struct{}

func (Silent) PrimaryStarting()  {}
func (Silent) FallbackStarting() {}
func (Silent) SwitchError()      {}

// Personal.AI order the ending
