package arbiter

import (
	"context"
	"os"
	"time"

	"github.com/turtacn/wmswitch/internal/candidate"
	"github.com/turtacn/wmswitch/internal/probe"
	"github.com/turtacn/wmswitch/pkg/consts"
	"github.com/turtacn/wmswitch/pkg/logger"
	"github.com/turtacn/wmswitch/pkg/protocol"
)

// ConfigSource is the part of the persisted store the rules read.
type ConfigSource interface {
	Load() error
	AllowSwitch() bool
	CurrentSelection() string
}

// Deps carries everything the rules probe. Fields left nil fall back to the
// real host in NewDeps.
type Deps struct {
	Runner   probe.Runner
	FS       probe.SysFS
	Machine  func() (string, error)
	Detach   func(argv []string) // fire-and-forget command
	Registry *candidate.Registry // read for exec names only
	Config   ConfigSource

	Display string
	Home    string
	Probes  protocol.ProbesConfig
	Tuning  protocol.PlatformConfig
}

// NewDeps wires the host implementations from settings.
func NewDeps(cfg *protocol.Config, reg *candidate.Registry, src ConfigSource, probeTimeout time.Duration) *Deps {
	runner := probe.ExecRunner{Timeout: probeTimeout}
	home, _ := os.UserHomeDir()
	return &Deps{
		Runner:   runner,
		FS:       probe.OSFS{},
		Machine:  probe.Machine,
		Detach:   detachWith(runner),
		Registry: reg,
		Config:   src,
		Display:  os.Getenv(consts.EnvDisplay),
		Home:     home,
		Probes:   cfg.Probes,
		Tuning:   cfg.Platform,
	}
}

func detachWith(r probe.Runner) func(argv []string) {
	log := logger.Log.With("component", "arbiter")
	return func(argv []string) {
		if len(argv) == 0 {
			return
		}
		go func() {
			if _, err := r.Output(context.Background(), argv); err != nil {
				log.Warn("Detached command failed", "cmd", argv, "err", err)
				return
			}
			log.Info("Detached command done", "cmd", argv)
		}()
	}
}

// DefaultRules returns the arbitration chain in priority order.
func DefaultRules(d *Deps) Factory {
	return func() []Rule {
		return []Rule{
			&PlatformCheck{deps: d},
			&EnvironmentCheck{deps: d},
			&PlatformOverrideCheck{deps: d},
			&ConfigCheck{deps: d},
		}
	}
}

// Personal.AI order the ending
