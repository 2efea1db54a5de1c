package arbiter

import (
	"context"

	"github.com/turtacn/wmswitch/internal/candidate"
	"github.com/turtacn/wmswitch/pkg/logger"
)

// ConfigCheck applies the persisted user choice. It runs last so an explicit
// selection beats the hardware heuristics, while allow_switch=false still
// disables toggling.
type ConfigCheck struct {
	deps *Deps
	vote candidate.Choice
}

func (r *ConfigCheck) String() string { return "config" }

func (r *ConfigCheck) Evaluate(ctx context.Context, st *State) {
	log := logger.Log.With("rule", r.String())
	r.vote = st.Favored

	src := r.deps.Config
	if src == nil {
		return
	}
	if err := src.Load(); err != nil {
		log.Warn("Config load failed, using defaults", "err", err)
	}

	if !src.AllowSwitch() {
		log.Info("Switching disabled by config")
		st.Permission = SwitchNone
	}

	saved := src.CurrentSelection()
	if c := r.deps.Registry.Lookup(saved); !c.IsNone() {
		log.Info("Using last selection", "exec", saved)
		r.vote = c
	}
}

func (r *ConfigCheck) Vote() candidate.Choice { return r.vote }

func (r *ConfigCheck) AdditionalEnv() map[string]string { return nil }

// Personal.AI order the ending
